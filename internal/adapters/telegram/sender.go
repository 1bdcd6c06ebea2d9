// Package telegram delivers notifications through the Telegram Bot API
package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"otprelay/internal/core/message"
	perr "otprelay/internal/platform/errors"
	"otprelay/internal/platform/logger"
	"otprelay/internal/platform/validate"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const defaultTimeout = 15 * time.Second

// Options configures the Sender
type Options struct {
	Token    string `env:"TELEGRAM_BOT_TOKEN" validate:"required"`
	Endpoint string `env:"TELEGRAM_API_ENDPOINT" validate:"omitempty,contains=%s"`
	Timeout  time.Duration
	Mode     message.ParseMode `env:"TELEGRAM_PARSE_MODE" validate:"omitempty,oneof=HTML Markdown"`
	Buttons  []message.Button `validate:"-"`
}

// Sender sends one text to one destination per call
// Calls are serialized; the Bot API client has no per-call context so the
// current one is parked on the transport for the duration of a send
type Sender struct {
	mu     sync.Mutex
	bot    *tgbotapi.BotAPI
	client *ctxClient
	opts   Options
	log    *logger.Logger
}

// New builds a Sender without contacting Telegram
func New(o Options, hc *http.Client) (*Sender, error) {
	if err := validate.Struct(o); err != nil {
		return nil, err
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.Mode == "" {
		o.Mode = message.HTML
	}
	if hc == nil {
		hc = &http.Client{Timeout: o.Timeout}
	}
	cc := &ctxClient{hc: hc, ctx: context.Background()}
	bot := &tgbotapi.BotAPI{Token: o.Token, Client: cc, Buffer: 100}
	if o.Endpoint != "" {
		bot.SetAPIEndpoint(o.Endpoint)
	} else {
		bot.SetAPIEndpoint(tgbotapi.APIEndpoint)
	}
	return &Sender{bot: bot, client: cc, opts: o, log: logger.Named("telegram")}, nil
}

// Send posts text to dest, a numeric chat id or an @channel name
func (s *Sender) Send(ctx context.Context, dest, text string) error {
	msg, err := s.compose(dest, text)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.client.ctx = ctx
	defer func() { s.client.ctx = context.Background() }()

	start := time.Now()
	sent, err := s.bot.Send(msg)
	if err != nil {
		return s.classify(ctx, dest, err)
	}
	logger.From(s.log, ctx).Debug().
		Str("chat", dest).
		Int("message_id", sent.MessageID).
		Dur("latency", time.Since(start)).
		Msg("telegram message sent")
	return nil
}

// Probe calls getMe and returns the bot username
func (s *Sender) Probe(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client.ctx = ctx
	defer func() { s.client.ctx = context.Background() }()

	me, err := s.bot.GetMe()
	if err != nil {
		return "", s.classify(ctx, "", err)
	}
	s.bot.Self = me
	return me.UserName, nil
}

func (s *Sender) compose(dest, text string) (tgbotapi.MessageConfig, error) {
	dest = strings.TrimSpace(dest)
	var msg tgbotapi.MessageConfig
	switch {
	case strings.HasPrefix(dest, "@"):
		msg = tgbotapi.NewMessageToChannel(dest, text)
	default:
		id, err := strconv.ParseInt(dest, 10, 64)
		if err != nil {
			return msg, perr.WithField(perr.InvalidArgf("telegram chat %q is neither an id nor an @channel", dest), "TELEGRAM_CHAT_IDS")
		}
		msg = tgbotapi.NewMessage(id, text)
	}
	msg.ParseMode = string(s.opts.Mode)
	msg.DisableWebPagePreview = true
	if len(s.opts.Buttons) > 0 {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(s.opts.Buttons))
		for _, b := range s.opts.Buttons {
			row = append(row, tgbotapi.NewInlineKeyboardButtonURL(b.Label, b.URL))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(row)
	}
	return msg, nil
}

// classify maps a Bot API failure to a coded error
// chat-level rejections and bad credentials are permanent, everything else is retryable
func (s *Sender) classify(ctx context.Context, dest string, err error) error {
	if ctx.Err() != nil {
		return perr.Wrap(ctx.Err(), perr.ErrorCodeTimeout, "telegram send aborted")
	}

	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		desc := strings.ToLower(apiErr.Message)
		switch {
		case apiErr.Code == http.StatusTooManyRequests || apiErr.RetryAfter > 0:
			return &floodError{
				error: perr.TooManyRequestsf("telegram flood control: %s", apiErr.Message),
				after: time.Duration(apiErr.RetryAfter) * time.Second,
			}
		case apiErr.Code == http.StatusUnauthorized:
			return perr.WithField(perr.Configf("telegram rejected the bot token: %s", apiErr.Message), "TELEGRAM_BOT_TOKEN")
		case permanent(desc):
			return perr.WithField(perr.InvalidArgf("telegram chat %s: %s", dest, apiErr.Message), "TELEGRAM_CHAT_IDS")
		default:
			return perr.Deliveryf("telegram api error %d: %s", apiErr.Code, apiErr.Message)
		}
	}

	// the request URL carries the bot token, so only the inner cause is kept
	var uerr *url.Error
	if errors.As(err, &uerr) {
		err = uerr.Err
	}
	return perr.Wrap(err, perr.ErrorCodeDelivery, "telegram request failed")
}

func permanent(desc string) bool {
	for _, s := range []string{
		"chat not found",
		"bot was blocked",
		"bot was kicked",
		"user is deactivated",
		"not enough rights",
		"bot is not a member",
		"can't parse entities",
		"message is too long",
	} {
		if strings.Contains(desc, s) {
			return true
		}
	}
	return false
}

// floodError carries Telegram's retry_after into the retry policy
type floodError struct {
	error
	after time.Duration
}

func (e *floodError) Unwrap() error             { return e.error }
func (e *floodError) RetryAfter() time.Duration { return e.after }

// ctxClient attaches the in-flight send's context to Bot API requests
type ctxClient struct {
	hc  *http.Client
	ctx context.Context
}

func (c *ctxClient) Do(req *http.Request) (*http.Response, error) {
	return c.hc.Do(req.WithContext(c.ctx))
}
