// Package imageprobe checks product image URLs server-side so cards whose
// image cannot load switch to their placeholder without a client report.
package imageprobe

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/utafrali/PriceTracker/pkg/errors"
	"github.com/utafrali/PriceTracker/pkg/httpclient"
)

var probeResults = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pricetracker_image_probe_total",
		Help: "Image probes by outcome.",
	},
	[]string{"outcome"},
)

// Doer executes a request; satisfied by *httpclient.CircuitBreakerClient.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Prober checks that a URL serves an image.
type Prober struct {
	client Doer
	logger *slog.Logger
}

// New creates a Prober over client.
func New(client Doer, logger *slog.Logger) *Prober {
	return &Prober{client: client, logger: logger}
}

// NewDefault builds a Prober on a circuit-broken pkg/httpclient client.
func NewDefault(cfg httpclient.Config, logger *slog.Logger) *Prober {
	cb := httpclient.NewCircuitBreakerClient(
		httpclient.New(cfg),
		httpclient.DefaultCircuitBreakerConfig("image-probe"),
		logger,
	)
	return New(cb, logger)
}

// Check returns nil when rawURL answers with a 2xx image/* response.
// Hosts that reject HEAD are retried once with GET.
func (p *Prober) Check(ctx context.Context, rawURL string) (err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "failed"
		}
		probeResults.WithLabelValues(outcome).Inc()
	}()

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperrors.InvalidInput(fmt.Sprintf("image url %q is not an absolute http(s) url", rawURL))
	}

	resp, err := p.send(ctx, http.MethodHead, rawURL)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		_ = resp.Body.Close()
		if resp, err = p.send(ctx, http.MethodGet, rawURL); err != nil {
			return err
		}
	}

	if err := httpclient.CheckResponse(resp, rawURL); err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%s returned status %d", rawURL, resp.StatusCode)
	}
	if !isImage(resp.Header.Get("Content-Type")) {
		return apperrors.InvalidInput(fmt.Sprintf("%s is not an image (content type %q)", rawURL, resp.Header.Get("Content-Type")))
	}
	return nil
}

func (p *Prober) send(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Accept", "image/*")
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}

	resp, err := p.client.Do(ctx, req)
	if err != nil {
		p.logger.DebugContext(ctx, "image probe request failed",
			slog.String("url", rawURL),
			slog.String("method", method),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("probe %s: %w", rawURL, err)
	}
	return resp, nil
}

func isImage(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/")
}
