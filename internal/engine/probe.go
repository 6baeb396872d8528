package engine

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"uwave/internal/httputil"
	"uwave/internal/mediautil"
	"uwave/internal/models"
)

// ProbeEngine is a headless engine: it checks that every source of a plan is
// reachable and reports readiness with the dimensions implied by the video
// label. It renders nothing.
type ProbeEngine struct {
	client  *http.Client
	log     *zap.SugaredLogger
	timeout time.Duration
}

type ProbeOption func(*ProbeEngine)

func WithHTTPClient(c *http.Client) ProbeOption {
	return func(e *ProbeEngine) {
		e.client = c
	}
}

// NewProbeEngine returns an engine whose probes give up after timeout. A
// non-positive timeout means httputil.DefaultTimeout.
func NewProbeEngine(log *zap.SugaredLogger, timeout time.Duration, opts ...ProbeOption) *ProbeEngine {
	e := &ProbeEngine{log: log, timeout: timeout}
	if timeout > 0 {
		e.client = httputil.NewClientWithTimeout(timeout)
	} else {
		e.client = httputil.NewClient()
		e.timeout = httputil.DefaultTimeout
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *ProbeEngine) Prepare(_ context.Context, req PrepareRequest) (Playback, error) {
	if req.Plan == nil || (req.Plan.Video == nil && req.Plan.Audio == nil) {
		return nil, models.NewError(models.KindEngineError, "empty media plan")
	}
	if req.Events == nil {
		return nil, models.NewError(models.KindEngineError, "no event listener")
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	p := &probePlayback{cancel: cancel}
	go e.probe(ctx, req)
	return p, nil
}

func (e *ProbeEngine) probe(ctx context.Context, req PrepareRequest) {
	var sources []*models.MediaSource
	if req.Plan.Video != nil {
		sources = append(sources, req.Plan.Video)
	}
	if req.Plan.Audio != nil {
		sources = append(sources, req.Plan.Audio)
	}

	for _, src := range sources {
		if err := e.check(ctx, src.Candidate.URL); err != nil {
			if ctx.Err() == context.Canceled {
				return
			}
			req.Events.OnError(err)
			return
		}
	}
	if ctx.Err() == context.Canceled {
		return
	}

	var w, h int
	if req.Plan.Video != nil {
		w, h = mediautil.DimensionsForLabel(req.Plan.Video.Candidate.Resolution)
	}
	e.log.Debugw("plan ready", "merged", req.Plan.Merged(), "width", w, "height", h, "position", req.Position)
	req.Events.OnReady(w, h)
}

func (e *ProbeEngine) check(ctx context.Context, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating probe request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("probing %s: %w", req.URL.Host, err)
	}
	defer httputil.DrainBody(resp)

	// some CDNs reject HEAD but serve the stream
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusMethodNotAllowed {
		return fmt.Errorf("probing %s: status %d", req.URL.Host, resp.StatusCode)
	}
	return nil
}

type probePlayback struct {
	cancel context.CancelFunc
}

func (p *probePlayback) Stop() {
	p.cancel()
}
