// Package reporter is the outlet-side client: while it runs, the outlet has
// power, so it tells the monitor so once per slot.
package reporter

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/sweeney/outlet-monitor/internal/logic"
)

// Response is the monitor's reply to a power report.
type Response struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Slot      string `json:"slot,omitempty"`
	Changes   int    `json:"changes"`
	Persisted bool   `json:"persisted"`
}

// Options configures a Client.
type Options struct {
	Timeout   time.Duration
	Retries   int
	RetryWait time.Duration
	// ClientIP is sent as client_ip when set.
	ClientIP string
}

// Client posts power reports to a monitor.
type Client struct {
	http     *resty.Client
	clientIP string
	log      *zap.Logger
}

// NewClient creates a client for the monitor at baseURL. Transport errors and
// 5xx replies are retried.
func NewClient(baseURL string, o Options, log *zap.Logger) *Client {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.RetryWait <= 0 {
		o.RetryWait = time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	hc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(o.Timeout).
		SetRetryCount(o.Retries).
		SetRetryWaitTime(o.RetryWait).
		SetRetryMaxWaitTime(5 * o.RetryWait).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	return &Client{http: hc, clientIP: o.ClientIP, log: log.Named("reporter")}
}

// Report tells the monitor the outlet had power at at.
func (c *Client) Report(ctx context.Context, at time.Time) (Response, error) {
	form := map[string]string{"timestamp": at.UTC().Format(time.RFC3339)}
	if c.clientIP != "" {
		form["client_ip"] = c.clientIP
	}

	var ok, failed Response
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&ok).
		SetError(&failed).
		Post("/power_status")
	if err != nil {
		return Response{}, fmt.Errorf("post report: %w", err)
	}
	if resp.IsError() {
		msg := failed.Message
		if msg == "" {
			msg = resp.Status()
		}
		return failed, fmt.Errorf("monitor rejected report (%d): %s", resp.StatusCode(), msg)
	}
	if !ok.Persisted {
		c.log.Warn("monitor recorded report but could not save it", zap.String("slot", ok.Slot))
	}
	return ok, nil
}

// Reporter sends one report per interval, aligned to the interval grid.
type Reporter struct {
	Client   *Client
	Interval time.Duration
	// Offset delays each report past the grid mark so it lands inside the slot.
	Offset time.Duration
	Log    *zap.Logger

	// Now and After default to time.Now and time.After.
	Now   func() time.Time
	After func(d time.Duration) <-chan time.Time
}

func (r *Reporter) interval() time.Duration {
	if r.Interval <= 0 {
		return logic.SlotWidth
	}
	return r.Interval
}

// Delay returns how long to wait from now until the next report.
func (r *Reporter) Delay(now time.Time) time.Duration {
	iv := r.interval()
	next := now.Truncate(iv).Add(r.Offset)
	if !next.After(now) {
		next = next.Add(iv)
	}
	return next.Sub(now)
}

// Run reports immediately and then at every mark until ctx is cancelled.
// Failed reports are logged and do not stop the loop.
func (r *Reporter) Run(ctx context.Context) error {
	now := r.Now
	if now == nil {
		now = time.Now
	}
	after := r.After
	if after == nil {
		after = time.After
	}
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}

	for {
		r.once(ctx, now(), log)
		select {
		case <-ctx.Done():
			return nil
		case <-after(r.Delay(now())):
		}
	}
}

func (r *Reporter) once(ctx context.Context, at time.Time, log *zap.Logger) {
	res, err := r.Client.Report(ctx, at)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("report failed", zap.Time("at", at), zap.Error(err))
		}
		return
	}
	log.Debug("reported", zap.String("slot", res.Slot), zap.Int("changes", res.Changes))
}
