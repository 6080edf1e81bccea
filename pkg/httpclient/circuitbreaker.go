package httpclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"

	apperrors "github.com/utafrali/PriceTracker/pkg/errors"
)

// CircuitBreakerConfig holds the settings applied to every per-host breaker.
type CircuitBreakerConfig struct {
	// Name labels the breaker family in metrics and logs.
	Name string

	// MaxRequests is how many requests pass while half-open. 0 means 1.
	MaxRequests uint32

	// Interval clears the closed-state counts. 0 never clears them.
	Interval time.Duration

	// Timeout is how long a host stays open before going half-open.
	Timeout time.Duration

	// FailureRatio trips the breaker once MinRequests have been seen.
	FailureRatio float64
	MinRequests  uint32

	// MaxHosts bounds the number of tracked hosts; past it the table is reset.
	MaxHosts int
}

// DefaultCircuitBreakerConfig returns defaults for probing third-party hosts.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  3,
		MaxHosts:     1024,
	}
}

var (
	breakersOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pricetracker_circuit_breaker_open_hosts",
			Help: "Number of hosts whose circuit breaker is open.",
		},
		[]string{"name"},
	)

	breakerRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricetracker_circuit_breaker_rejected_total",
			Help: "Requests rejected because the host's circuit was open.",
		},
		[]string{"name"},
	)
)

// ErrCircuitOpen is returned when the target host's breaker rejects a request.
var ErrCircuitOpen = gobreaker.ErrOpenState

// CircuitBreakerClient wraps a Client with one breaker per target host, so
// an unreachable host does not open the circuit for the others.
type CircuitBreakerClient struct {
	client *Client
	cfg    CircuitBreakerConfig
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*http.Response]
}

// NewCircuitBreakerClient wraps client.
func NewCircuitBreakerClient(client *Client, cfg CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerClient {
	if cfg.MaxHosts <= 0 {
		cfg.MaxHosts = DefaultCircuitBreakerConfig(cfg.Name).MaxHosts
	}
	breakersOpen.WithLabelValues(cfg.Name).Set(0)
	return &CircuitBreakerClient{
		client:   client,
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker[*http.Response]),
	}
}

func (c *CircuitBreakerClient) breaker(host string) *gobreaker.CircuitBreaker[*http.Response] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[host]; ok {
		return cb
	}
	if len(c.breakers) >= c.cfg.MaxHosts {
		c.breakers = make(map[string]*gobreaker.CircuitBreaker[*http.Response])
		breakersOpen.WithLabelValues(c.cfg.Name).Set(0)
	}

	cfg := c.cfg
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        cfg.Name + ":" + host,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change",
				slog.String("breaker", cfg.Name),
				slog.String("host", host),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			switch {
			case to == gobreaker.StateOpen:
				breakersOpen.WithLabelValues(cfg.Name).Inc()
			case from == gobreaker.StateOpen:
				breakersOpen.WithLabelValues(cfg.Name).Dec()
			}
		},
	})
	c.breakers[host] = cb
	return cb
}

// Do executes req through the breaker of req.URL.Host. A 5xx answer counts
// as a failure and comes back as an Unavailable error; 4xx answers are
// returned to the caller untouched.
func (c *CircuitBreakerClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	host := req.URL.Host
	resp, err := c.breaker(host).Execute(func() (*http.Response, error) {
		resp, err := c.client.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
			_ = resp.Body.Close()
			return nil, apperrors.Unavailable(fmt.Sprintf("%s returned status %d", host, resp.StatusCode), nil)
		}
		return resp, nil
	})
	if err != nil {
		if err == ErrCircuitOpen || err == gobreaker.ErrTooManyRequests {
			breakerRejected.WithLabelValues(c.cfg.Name).Inc()
		}
		return nil, err
	}
	return resp, nil
}

// State returns the breaker state for host; unknown hosts are closed.
func (c *CircuitBreakerClient) State(host string) gobreaker.State {
	c.mu.Lock()
	cb, ok := c.breakers[host]
	c.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}

// Hosts returns how many hosts currently have a breaker.
func (c *CircuitBreakerClient) Hosts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.breakers)
}
