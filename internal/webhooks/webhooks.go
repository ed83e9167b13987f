// Package webhooks delivers risk update events to external HTTP endpoints.
//
// Each event is POSTed as JSON to every configured URL. When a secret is
// set the body is signed with HMAC-SHA256 over "<timestamp>.<body>" so
// receivers can check origin and freshness.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbd888/riskoracle/internal/circuitbreaker"
	"github.com/mbd888/riskoracle/internal/events"
	"github.com/mbd888/riskoracle/internal/retry"
)

// Delivery headers.
const (
	HeaderEvent     = "X-Oracle-Event"
	HeaderEventID   = "X-Oracle-Event-ID"
	HeaderTimestamp = "X-Oracle-Webhook-Timestamp"
	HeaderSignature = "X-Oracle-Webhook-Signature"
)

var (
	deliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riskoracle",
		Subsystem: "webhook",
		Name:      "deliveries_total",
		Help:      "Webhook deliveries by result (delivered, failed, skipped).",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(deliveriesTotal)
}

// EndpointStatus is the delivery state of one webhook URL.
type EndpointStatus struct {
	URL         string     `json:"url"`
	Circuit     string     `json:"circuit"`
	LastSuccess *time.Time `json:"lastSuccess,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
}

type endpoint struct {
	url         string
	lastSuccess *time.Time
	lastError   string
}

// Publisher sends events to webhook endpoints. It implements
// events.Publisher.
type Publisher struct {
	mu        sync.Mutex
	endpoints []*endpoint
	secret    string
	client    *http.Client
	breaker   *circuitbreaker.Breaker
	policy    retry.Policy
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(p *Publisher) { p.client = c }
}

// WithRetry replaces the per-endpoint retry policy.
func WithRetry(policy retry.Policy) Option {
	return func(p *Publisher) { p.policy = policy }
}

// WithBreaker replaces the default breaker (5 failures, 1 minute).
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(p *Publisher) { p.breaker = b }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) { p.logger = l }
}

// New creates a publisher for urls. secret may be empty.
func New(urls []string, secret string, opts ...Option) *Publisher {
	p := &Publisher{
		secret:  secret,
		client:  &http.Client{Timeout: 10 * time.Second},
		breaker: circuitbreaker.New(5, time.Minute),
		policy:  retry.Policy{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second},
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, u := range urls {
		p.endpoints = append(p.endpoints, &endpoint{url: u})
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ events.Publisher = (*Publisher)(nil)

// Publish delivers ev to every endpoint whose circuit is not open. It
// returns the joined errors of the endpoints that failed.
func (p *Publisher) Publish(ctx context.Context, ev events.RiskUpdated) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var errs []error
	for _, ep := range p.endpoints {
		err := p.breaker.Execute(ep.url, func() error {
			return p.policy.Do(ctx, func(ctx context.Context) error {
				return p.send(ctx, ep.url, ev, payload)
			})
		})

		switch {
		case err == nil:
			deliveriesTotal.WithLabelValues("delivered").Inc()
			p.markSuccess(ep)
		case errors.Is(err, circuitbreaker.ErrOpen):
			deliveriesTotal.WithLabelValues("skipped").Inc()
			p.logger.Debug("webhook skipped, circuit open", "url", ep.url, "event_id", ev.ID)
		default:
			deliveriesTotal.WithLabelValues("failed").Inc()
			p.markError(ep, err)
			errs = append(errs, fmt.Errorf("webhook %s: %w", ep.url, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Publisher) send(ctx context.Context, url string, ev events.RiskUpdated, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(err)
	}

	ts := p.now().Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, ev.Type)
	req.Header.Set(HeaderEventID, ev.ID)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	if p.secret != "" {
		req.Header.Set(HeaderSignature, Sign(p.secret, ts, payload))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("status %d", resp.StatusCode)
	default:
		return retry.Permanent(fmt.Errorf("status %d", resp.StatusCode))
	}
}

func (p *Publisher) markSuccess(ep *endpoint) {
	now := p.now()
	p.mu.Lock()
	ep.lastSuccess = &now
	ep.lastError = ""
	p.mu.Unlock()
}

func (p *Publisher) markError(ep *endpoint, err error) {
	p.mu.Lock()
	ep.lastError = err.Error()
	p.mu.Unlock()
}

// Status reports every endpoint in configuration order.
func (p *Publisher) Status() []EndpointStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]EndpointStatus, len(p.endpoints))
	for i, ep := range p.endpoints {
		out[i] = EndpointStatus{
			URL:         ep.url,
			Circuit:     p.breaker.State(ep.url).String(),
			LastSuccess: ep.lastSuccess,
			LastError:   ep.lastError,
		}
	}
	return out
}

// Close is a no-op; deliveries are synchronous.
func (p *Publisher) Close() error { return nil }

// Sign returns the hex HMAC-SHA256 of "<ts>.<payload>" under secret.
func Sign(secret string, ts int64, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(strconv.FormatInt(ts, 10)))
	h.Write([]byte{'.'})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify checks a delivery signature in constant time.
func Verify(secret string, ts int64, payload []byte, signature string) bool {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	got, _ := hex.DecodeString(Sign(secret, ts, payload))
	return hmac.Equal(got, want)
}
