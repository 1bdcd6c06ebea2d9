// Package panel fetches SMS rows from a panel's DataTables AJAX endpoint
package panel

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"otprelay/internal/core/sms"
	perr "otprelay/internal/platform/errors"
	"otprelay/internal/platform/logger"
	"otprelay/internal/platform/retry"
	"otprelay/internal/platform/validate"
)

const (
	defaultTimeout  = 20 * time.Second
	defaultUA       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultAttempts = 2
	defaultDelay    = time.Second
	maxBody         = 8 << 20
	probePageSize   = 5
)

// Options configures the Client
type Options struct {
	URL       string `env:"PANEL_URL" validate:"required,url"`
	SessionID string `env:"PANEL_PHPSESSID" validate:"required"`
	SessKey   string `env:"PANEL_SESSKEY" validate:"required_if=NeedsSessKey true"`
	Since     string `env:"PANEL_SINCE"`
	PageSize  int    `env:"PANEL_PAGE_SIZE" validate:"gte=0,lte=500"`
	Referer   string `env:"PANEL_REFERER" validate:"omitempty,url"`
	UserAgent string `env:"PANEL_USER_AGENT"`
	Timeout   time.Duration
	Attempts  int `env:"PANEL_FETCH_ATTEMPTS" validate:"gte=0,lte=10"`

	// RetryDelay is the first wait of the exponential fetch policy
	RetryDelay time.Duration

	// Location is the panel's clock for the request window; nil means time.Local
	Location *time.Location `validate:"-"`

	Profile      sms.Profile `validate:"-"`
	NeedsSessKey bool        `validate:"-"`
}

// Result is one classified panel response
type Result struct {
	Outcome Outcome
	Rows    []any
	// Total is the panel's record count, -1 when absent
	Total   int
	Status  int
	Bytes   int
	Latency time.Duration
}

// Client issues DataTables queries with the configured session
type Client struct {
	http   *http.Client
	opts   Options
	policy retry.Policy
	log    *logger.Logger
	now    func() time.Time
}

// NewClient validates o and creates a Client with sane defaults
func NewClient(o Options, hc *http.Client) (*Client, error) {
	o.NeedsSessKey = o.Profile.NeedsSessKey
	if o.Profile.Name == "" {
		o.Profile = sms.Client
	}
	if err := validate.Struct(o); err != nil {
		return nil, err
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.Attempts <= 0 {
		o.Attempts = defaultAttempts
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = defaultDelay
	}
	if o.PageSize <= 0 {
		o.PageSize = o.Profile.PageSize
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if hc == nil {
		hc = &http.Client{Timeout: o.Timeout}
	}
	loc := o.Location
	return &Client{
		http:   hc,
		opts:   o,
		policy: retry.Exponential(o.Attempts, o.RetryDelay, 5*o.RetryDelay),
		log:    logger.Named("panel"),
		now:    func() time.Time { return time.Now().In(loc) },
	}, nil
}

// Profile is the layout this client requests
func (c *Client) Profile() sms.Profile { return c.opts.Profile }

// Fetch queries the panel once per attempt and classifies the response
// Transport faults, 5xx and 429 are retried by the fetch policy; every other
// non-OK outcome returns at once with a coded error and the outcome set
func (c *Client) Fetch(ctx context.Context) (Result, error) {
	return c.fetch(ctx, c.opts.PageSize)
}

// Probe runs a small fetch to check the session at startup
func (c *Client) Probe(ctx context.Context) (Result, error) {
	return c.fetch(ctx, probePageSize)
}

func (c *Client) fetch(ctx context.Context, pageSize int) (Result, error) {
	var res Result
	err := c.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		var err error
		res, err = c.do(ctx, pageSize)
		return err
	}, func(attempt int, err error, wait time.Duration) {
		logger.From(c.log, ctx).Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("panel fetch failed, retrying")
	})
	if err != nil && res.Outcome == "" {
		res.Outcome = OutcomeTransport
	}
	return res, err
}

func (c *Client) do(ctx context.Context, pageSize int) (Result, error) {
	now := c.now()
	q := url.Values{}
	for k, v := range Params(c.opts.Profile, now, c.opts, pageSize) {
		q.Set(k, v)
	}
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return Result{}, perr.Wrap(err, perr.ErrorCodeConfig, "panel url invalid")
	}
	u.RawQuery = mergeQuery(u.Query(), q).Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Result{}, perr.Wrap(err, perr.ErrorCodeUnknown, "panel new request failed")
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	if c.opts.Referer != "" {
		req.Header.Set("Referer", c.opts.Referer)
	}
	req.AddCookie(&http.Cookie{Name: "PHPSESSID", Value: c.opts.SessionID})

	resp, err := c.http.Do(req)
	lat := c.now().Sub(now)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return Result{Latency: lat}, perr.Wrap(err, perr.ErrorCodeTimeout, "panel request aborted")
		}
		return Result{Latency: lat}, perr.Wrap(err, perr.ErrorCodeUnavailable, "panel request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return Result{Status: resp.StatusCode, Latency: lat}, perr.Wrap(err, perr.ErrorCodeUnavailable, "panel body read failed")
	}

	c.log.Debug().
		Str("profile", c.opts.Profile.Name).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("latency", lat).
		Msg("panel http response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{Outcome: OutcomeTransport, Status: resp.StatusCode, Bytes: len(body), Latency: lat}, statusError(resp.StatusCode, body)
	}

	res, err := classify(resp.Header.Get("Content-Type"), body)
	res.Status, res.Bytes, res.Latency = resp.StatusCode, len(body), lat
	return res, err
}

// mergeQuery keeps params already on the configured URL unless the request sets them
func mergeQuery(base, over url.Values) url.Values {
	for k, v := range over {
		base[k] = v
	}
	return base
}
