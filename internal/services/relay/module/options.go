package module

import (
	"strings"
	"time"

	"otprelay/internal/core/ledger"
	"otprelay/internal/core/message"
	"otprelay/internal/core/sms"
	"otprelay/internal/platform/config"
	perr "otprelay/internal/platform/errors"
	"otprelay/internal/platform/store"
	"otprelay/internal/platform/validate"
	"otprelay/internal/services/relay/repo"
)

// Options is the full relay configuration; env tags name the variables in validation messages
type Options struct {
	PanelURL       string        `env:"PANEL_URL" validate:"required,url"`
	PanelSessionID string        `env:"PANEL_PHPSESSID" validate:"required"`
	PanelSessKey   string        `env:"PANEL_SESSKEY"`
	Profile        string        `env:"PANEL_PROFILE" validate:"oneof=client agent numberpanel"`
	DateRange      string        `env:"PANEL_DATE_RANGE" validate:"omitempty,oneof=today since"`
	Since          string        `env:"PANEL_SINCE"`
	PageSize       int           `env:"PANEL_PAGE_SIZE" validate:"gte=0,lte=500"`
	Referer        string        `env:"PANEL_REFERER" validate:"omitempty,url"`
	UserAgent      string        `env:"PANEL_USER_AGENT"`
	PanelTimeout   time.Duration `env:"PANEL_TIMEOUT" validate:"gte=1s"`
	FetchAttempts  int           `env:"PANEL_FETCH_ATTEMPTS" validate:"gte=1,lte=10"`
	TZ             string        `env:"PANEL_TZ"`
	StrictTime     bool          `env:"PANEL_STRICT_TIMESTAMP"`

	BotToken    string        `env:"TELEGRAM_BOT_TOKEN" validate:"required"`
	ChatIDs     []string      `env:"TELEGRAM_CHAT_IDS" validate:"required,min=1,dive,chat_id"`
	ParseMode   string        `env:"TELEGRAM_PARSE_MODE" validate:"oneof=HTML Markdown"`
	APIEndpoint string        `env:"TELEGRAM_API_ENDPOINT"`
	BotTimeout  time.Duration `env:"TELEGRAM_TIMEOUT" validate:"gte=1s"`
	Buttons     string        `env:"TELEGRAM_BUTTONS"`
	Title       string        `env:"TELEGRAM_TITLE"`
	Footer      string        `env:"TELEGRAM_FOOTER"`

	Source         string        `env:"RELAY_SOURCE"`
	Interval       time.Duration `env:"RELAY_INTERVAL" validate:"gte=1s"`
	MaskNumbers    bool          `env:"RELAY_MASK_NUMBERS"`
	LedgerCapacity int           `env:"RELAY_LEDGER_CAPACITY" validate:"gte=1,lte=100000"`
	ErrorThreshold int           `env:"RELAY_ERROR_THRESHOLD" validate:"gte=1"`
	ErrorBackoff   time.Duration `env:"RELAY_ERROR_BACKOFF" validate:"gte=0"`
	SendAttempts   int           `env:"RELAY_SEND_ATTEMPTS" validate:"gte=1,lte=10"`
	SendRetryDelay time.Duration `env:"RELAY_SEND_RETRY_DELAY" validate:"gte=0"`
	DestinationGap time.Duration `env:"RELAY_DESTINATION_GAP" validate:"gte=0"`
	CycleTimeout   time.Duration `env:"RELAY_CYCLE_TIMEOUT" validate:"gte=1s"`
	SkipWithoutOTP bool          `env:"RELAY_SKIP_WITHOUT_OTP"`
	Baseline       bool          `env:"RELAY_BASELINE"`
	ExtraServices  []string      `env:"RELAY_OTP_EXTRA_SERVICES"`

	LedgerBackend string `env:"LEDGER_BACKEND" validate:"oneof=file pg redis"`
	LedgerPath    string `env:"LEDGER_PATH"`
}

// FromConfig reads Options from the environment with the documented defaults
func FromConfig(cfg config.Conf) Options {
	profile := strings.ToLower(cfg.MayString("PANEL_PROFILE", sms.Client.Name))
	return Options{
		PanelURL:       cfg.MayString("PANEL_URL", ""),
		PanelSessionID: cfg.MayString("PANEL_PHPSESSID", ""),
		PanelSessKey:   cfg.MayString("PANEL_SESSKEY", ""),
		Profile:        profile,
		DateRange:      strings.ToLower(cfg.MayString("PANEL_DATE_RANGE", "")),
		Since:          cfg.MayString("PANEL_SINCE", ""),
		PageSize:       cfg.MayInt("PANEL_PAGE_SIZE", 0),
		Referer:        cfg.MayString("PANEL_REFERER", ""),
		UserAgent:      cfg.MayString("PANEL_USER_AGENT", ""),
		PanelTimeout:   cfg.MayDuration("PANEL_TIMEOUT", 20*time.Second),
		FetchAttempts:  cfg.MayInt("PANEL_FETCH_ATTEMPTS", 2),
		TZ:             cfg.MayString("PANEL_TZ", ""),
		StrictTime:     cfg.MayBool("PANEL_STRICT_TIMESTAMP", true),

		BotToken:    cfg.MayString("TELEGRAM_BOT_TOKEN", ""),
		ChatIDs:     cfg.MayCSVFirst(nil, "TELEGRAM_CHAT_IDS", "TELEGRAM_CHAT_ID"),
		ParseMode:   normalizeMode(cfg.MayString("TELEGRAM_PARSE_MODE", string(message.HTML))),
		APIEndpoint: cfg.MayString("TELEGRAM_API_ENDPOINT", ""),
		BotTimeout:  cfg.MayDuration("TELEGRAM_TIMEOUT", 15*time.Second),
		Buttons:     cfg.MayString("TELEGRAM_BUTTONS", ""),
		Title:       cfg.MayString("TELEGRAM_TITLE", ""),
		Footer:      cfg.MayString("TELEGRAM_FOOTER", ""),

		Source:         cfg.MayString("RELAY_SOURCE", profile),
		Interval:       cfg.MayDuration("RELAY_INTERVAL", 10*time.Second),
		MaskNumbers:    cfg.MayBool("RELAY_MASK_NUMBERS", true),
		LedgerCapacity: cfg.MayInt("RELAY_LEDGER_CAPACITY", ledger.DefaultCapacity),
		ErrorThreshold: cfg.MayInt("RELAY_ERROR_THRESHOLD", 5),
		ErrorBackoff:   cfg.MayDuration("RELAY_ERROR_BACKOFF", 60*time.Second),
		SendAttempts:   cfg.MayInt("RELAY_SEND_ATTEMPTS", 3),
		SendRetryDelay: cfg.MayDuration("RELAY_SEND_RETRY_DELAY", 2*time.Second),
		DestinationGap: cfg.MayDuration("RELAY_DESTINATION_GAP", time.Second),
		CycleTimeout:   cfg.MayDuration("RELAY_CYCLE_TIMEOUT", 2*time.Minute),
		SkipWithoutOTP: cfg.MayBool("RELAY_SKIP_WITHOUT_OTP", false),
		Baseline:       cfg.MayBool("RELAY_BASELINE", false),
		ExtraServices:  cfg.MayCSV("RELAY_OTP_EXTRA_SERVICES", nil),

		LedgerBackend: strings.ToLower(cfg.MayString("LEDGER_BACKEND", repo.BackendFile)),
		LedgerPath:    cfg.MayString("LEDGER_PATH", repo.DefaultPath),
	}
}

// Validate checks every field and the cross-field rules the tags cannot express
// The returned error carries the offending variable as its field
func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return err
	}
	if _, err := o.Location(); err != nil {
		return err
	}
	if o.Since != "" {
		if _, err := time.Parse(sms.TimestampLayout, o.Since); err != nil {
			return perr.WithField(perr.Wrap(err, perr.ErrorCodeValidation, "PANEL_SINCE must look like 2006-01-02 15:04:05"), "PANEL_SINCE")
		}
	}
	if _, err := message.ParseButtons(o.Buttons); err != nil {
		return perr.WithField(perr.Wrap(err, perr.ErrorCodeValidation, "TELEGRAM_BUTTONS is malformed"), "TELEGRAM_BUTTONS")
	}
	p, _ := sms.ProfileByName(o.Profile)
	if p.NeedsSessKey && o.PanelSessKey == "" {
		return perr.WithField(perr.Newf(perr.ErrorCodeValidation, "PANEL_SESSKEY is required for the %s profile", p.Name), "PANEL_SESSKEY")
	}
	if o.ErrorBackoff > 0 && o.ErrorBackoff < o.Interval {
		return perr.WithField(perr.Newf(perr.ErrorCodeValidation, "RELAY_ERROR_BACKOFF must not be shorter than RELAY_INTERVAL"), "RELAY_ERROR_BACKOFF")
	}
	return nil
}

// Location resolves PANEL_TZ; empty means the process local zone
func (o Options) Location() (*time.Location, error) {
	if strings.TrimSpace(o.TZ) == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(strings.TrimSpace(o.TZ))
	if err != nil {
		return nil, perr.WithField(perr.Wrap(err, perr.ErrorCodeValidation, "PANEL_TZ is not a known time zone"), "PANEL_TZ")
	}
	return loc, nil
}

// PanelProfile is the named layout with PANEL_DATE_RANGE applied
func (o Options) PanelProfile() sms.Profile {
	p, err := sms.ProfileByName(o.Profile)
	if err != nil {
		p = sms.Client
	}
	if o.DateRange != "" {
		p.DateRange = sms.DateRange(o.DateRange)
	}
	return p
}

// StoreConfig enables the backends the ledger and journal settings ask for
func StoreConfig(cfg config.Conf, o Options, appName, version string) store.Config {
	chURL := cfg.MayString("JOURNAL_CH_URL", "")
	return store.Config{
		AppName: appName,
		Version: version,
		PG: store.PGConfig{
			Enabled:     o.LedgerBackend == repo.BackendPG,
			URL:         cfg.MayString("LEDGER_PG_URL", ""),
			MaxConns:    int32(cfg.MayInt("LEDGER_PG_MAX_CONNS", 2)),
			LogSQL:      cfg.MayBool("LEDGER_PG_LOG_SQL", false),
			SlowQueryMs: cfg.MayInt("LEDGER_PG_SLOW_MS", 200),
		},
		CH: store.CHConfig{
			Enabled: chURL != "",
			URL:     chURL,
		},
		RDS: store.RedisConfig{
			Enabled:  o.LedgerBackend == repo.BackendRedis,
			Addr:     cfg.MayString("LEDGER_REDIS_ADDR", ""),
			DB:       cfg.MayInt("LEDGER_REDIS_DB", 0),
			Password: cfg.MayString("LEDGER_REDIS_PASSWORD", ""),
		},
	}
}

func normalizeMode(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "markdown":
		return string(message.Markdown)
	case "html", "":
		return string(message.HTML)
	}
	return s
}
