// Package resolver turns a source descriptor into playable stream candidates
// using an external resolution service.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"uwave/internal/httputil"
	"uwave/internal/models"
)

// ErrTimeout is wrapped by the IOError returned when resolution exceeds its
// time bound.
var ErrTimeout = errors.New("resolver timed out")

// Resolver produces stream candidates for a source. Implementations make no
// promise about ordering, completeness or latency.
type Resolver interface {
	Resolve(ctx context.Context, desc models.SourceDescriptor) ([]models.StreamCandidate, error)
}

type Cache interface {
	GetCachedStreams(ctx context.Context, cacheKey string) ([]byte, error)
	SetCachedStreams(ctx context.Context, cacheKey string, data []byte) error
}

type HTTPResolver struct {
	baseURL string
	http    *http.Client
	cache   Cache
	limiter *rate.Limiter
	timeout time.Duration
	log     *zap.SugaredLogger
	group   singleflight.Group
}

type Option func(*HTTPResolver)

func WithCache(c Cache) Option {
	return func(r *HTTPResolver) { r.cache = c }
}

func WithRateLimit(perSecond float64, burst int) Option {
	return func(r *HTTPResolver) {
		if perSecond <= 0 {
			r.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		r.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithTimeout(d time.Duration) Option {
	return func(r *HTTPResolver) { r.timeout = d }
}

func WithHTTPClient(c *http.Client) Option {
	return func(r *HTTPResolver) { r.http = c }
}

func New(log *zap.SugaredLogger, baseURL string, opts ...Option) *HTTPResolver {
	r := &HTTPResolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httputil.NewClientWithTimeout(httputil.ResolverTimeout),
		limiter: rate.NewLimiter(5, 5),
		timeout: httputil.ResolverTimeout,
		log:     log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *HTTPResolver) Resolve(ctx context.Context, desc models.SourceDescriptor) ([]models.StreamCandidate, error) {
	service := desc.SourceName()
	if service == "" {
		return nil, models.NewError(models.KindExtractionError, fmt.Sprintf("Unsupported source type %q", desc.SourceType))
	}
	key := "streams:" + desc.Key()

	if cands, ok := r.cached(ctx, key); ok {
		r.log.Debugw("resolve cache hit", "source", desc.Key(), "candidates", len(cands))
		return cands, nil
	}

	ch := r.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		cands, err := r.fetch(fctx, service, desc.SourceURL())
		if err != nil {
			return nil, err
		}
		r.store(fctx, key, cands)
		return cands, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]models.StreamCandidate), nil
	case <-ctx.Done():
		return nil, models.Errorf(models.KindIOError, "resolving %s: %w", desc.Key(), ctx.Err())
	}
}

func (r *HTTPResolver) cached(ctx context.Context, key string) ([]models.StreamCandidate, bool) {
	if r.cache == nil {
		return nil, false
	}
	data, err := r.cache.GetCachedStreams(ctx, key)
	if err != nil {
		r.log.Warnw("resolve cache read failed", "key", key, "error", err)
		return nil, false
	}
	if data == nil {
		return nil, false
	}
	var cands []models.StreamCandidate
	if err := json.Unmarshal(data, &cands); err != nil {
		r.log.Warnw("discarding corrupt cache entry", "key", key, "error", err)
		return nil, false
	}
	return cands, true
}

func (r *HTTPResolver) store(ctx context.Context, key string, cands []models.StreamCandidate) {
	if r.cache == nil || len(cands) == 0 {
		return
	}
	data, err := json.Marshal(cands)
	if err != nil {
		return
	}
	if err := r.cache.SetCachedStreams(ctx, key, data); err != nil {
		r.log.Warnw("resolve cache write failed", "key", key, "error", err)
	}
}

type streamsResponse struct {
	AudioStreams []audioStream `json:"audioStreams"`
	VideoStreams []videoStream `json:"videoStreams"`
	HLSURL       string        `json:"hlsUrl"`
}

type audioStream struct {
	URL            string `json:"url"`
	AverageBitrate int    `json:"averageBitrate"`
	Format         string `json:"format"`
}

type videoStream struct {
	URL        string `json:"url"`
	Resolution string `json:"resolution"`
	VideoOnly  bool   `json:"videoOnly"`
	Format     string `json:"format"`
}

func (r *HTTPResolver) fetch(ctx context.Context, service, sourceURL string) ([]models.StreamCandidate, error) {
	query := url.Values{}
	query.Set("service", service)
	query.Set("url", sourceURL)

	body, err := r.get(ctx, r.baseURL+"/streams?"+query.Encode())
	if err != nil {
		return nil, err
	}

	var sr streamsResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, models.Errorf(models.KindExtractionError, "decoding streams for %s: %w", sourceURL, err)
	}

	var cands []models.StreamCandidate
	for _, a := range sr.AudioStreams {
		if a.URL == "" {
			continue
		}
		cands = append(cands, models.StreamCandidate{
			Kind:    models.MediaKindAudio,
			URL:     a.URL,
			Bitrate: a.AverageBitrate,
			Format:  a.Format,
		})
	}
	for _, v := range sr.VideoStreams {
		if v.URL == "" {
			continue
		}
		cands = append(cands, models.StreamCandidate{
			Kind:       models.MediaKindVideo,
			URL:        v.URL,
			Resolution: v.Resolution,
			VideoOnly:  v.VideoOnly,
			Format:     v.Format,
		})
	}

	if sr.HLSURL != "" {
		hls, err := r.expandHLS(ctx, sr.HLSURL)
		if err != nil {
			if len(cands) == 0 {
				return nil, err
			}
			r.log.Warnw("ignoring unusable HLS manifest", "url", sr.HLSURL, "error", err)
		}
		cands = append(cands, hls...)
	}

	r.log.Debugw("resolved streams", "source", sourceURL, "candidates", len(cands))
	return cands, nil
}

// get performs a rate-limited GET and classifies failures: transport errors
// and 5xx are IOError, other non-2xx statuses are ExtractionError.
func (r *HTTPResolver) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, r.transportError(ctx, "rate limit", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, models.Errorf(models.KindExtractionError, "creating request: %w", err)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, r.transportError(ctx, "connection failed", err)
	}
	defer httputil.DrainBody(resp)

	body, err := io.ReadAll(io.LimitReader(resp.Body, httputil.MaxResponseBody))
	if err != nil {
		return nil, r.transportError(ctx, "reading response", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, models.NewError(models.KindIOError,
			fmt.Sprintf("resolver returned status %d: %s", resp.StatusCode, httputil.Truncate(body, 200)))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, models.NewError(models.KindExtractionError,
			fmt.Sprintf("resolver returned status %d: %s", resp.StatusCode, httputil.Truncate(body, 200)))
	}
	return body, nil
}

func (r *HTTPResolver) transportError(ctx context.Context, what string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.Errorf(models.KindIOError, "%s: %w", what, ErrTimeout)
	}
	return models.Errorf(models.KindIOError, "%s: %w", what, err)
}
