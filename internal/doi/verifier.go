package doi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ppiankov/bluebridge/internal/cache"
	"github.com/ppiankov/bluebridge/internal/logging"
	"github.com/ppiankov/bluebridge/internal/metrics"
	"github.com/ppiankov/bluebridge/internal/model"
	"github.com/ppiankov/bluebridge/internal/util"
	"github.com/ppiankov/bluebridge/internal/worker"
)

const (
	cacheNamespace     = "doi"
	maxConcurrentLooks = 8
)

// Result is the verification outcome for one DOI
type Result struct {
	DOI        string `json:"doi"`
	Normalized string `json:"normalized_doi"`
	Status     Status `json:"status"`
	Reason     string `json:"reason,omitempty"`
	Resolver   string `json:"resolver,omitempty"`
	Title      string `json:"title,omitempty"`
	Year       int    `json:"year,omitempty"`
	Cached     bool   `json:"cached,omitempty"`
}

// Valid reports whether the DOI is well-formed and not known to be unregistered
func (r Result) Valid() bool {
	return r.Status.CitationGrade()
}

// Verifier checks DOIs offline and, when enabled, against live resolvers
type Verifier struct {
	resolvers []Resolver
	cache     cache.Cache
	cacheTTL  time.Duration
	limiter   *worker.Limiter
	group     singleflight.Group
	live      bool
	timeout   time.Duration
	logger    *zap.Logger
}

// Option customizes a Verifier
type Option func(*Verifier)

// WithResolvers replaces the default resolvers, in failover order
func WithResolvers(resolvers ...Resolver) Option {
	return func(v *Verifier) { v.resolvers = resolvers }
}

// WithCache replaces the default layered cache
func WithCache(c cache.Cache) Option {
	return func(v *Verifier) { v.cache = c }
}

// WithLimiter replaces the default per-host limiter
func WithLimiter(l *worker.Limiter) Option {
	return func(v *Verifier) { v.limiter = l }
}

// NewVerifier builds a verifier from configuration
func NewVerifier(cfg model.DOIConfig, logger *zap.Logger, opts ...Option) *Verifier {
	v := &Verifier{
		cacheTTL: cfg.CacheTTL,
		live:     cfg.LiveResolution,
		timeout:  cfg.Timeout,
		logger:   logging.OrNop(logger),
	}
	if v.timeout <= 0 {
		v.timeout = 800 * time.Millisecond
	}

	for _, opt := range opts {
		opt(v)
	}

	if v.resolvers == nil {
		client := util.NewHTTPClient(v.timeout, cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy)
		v.resolvers = []Resolver{
			NewHandleResolver(cfg.HandleURL, client, cfg.UserAgent),
			NewCrossrefResolver(cfg.CrossrefURL, client, cfg.UserAgent),
		}
	}
	if v.cache == nil {
		v.cache = cache.NewLayeredCache(cfg.CacheTTL, cfg.CacheDir, cfg.CacheTTL)
	}
	if v.limiter == nil {
		v.limiter = worker.NewLimiter(cfg.RequestsPerSecond, cfg.BurstSize)
	}

	return v
}

// Live reports whether live resolution is enabled
func (v *Verifier) Live() bool {
	return v.live
}

// Verify classifies one DOI. It never returns an error: resolver failures
// downgrade the status to unverified.
func (v *Verifier) Verify(ctx context.Context, raw string) Result {
	normalized, status, reason := Check(raw)
	res := Result{DOI: raw, Normalized: normalized, Status: status, Reason: reason}

	if status == StatusUnverified && v.live {
		res = v.resolve(ctx, raw, normalized)
	}

	metrics.DOIVerifications.WithLabelValues(string(res.Status)).Inc()
	return res
}

// VerifyAll verifies DOIs concurrently and returns results in input order
func (v *Verifier) VerifyAll(ctx context.Context, raws []string) []Result {
	results := make([]Result, len(raws))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLooks)
	for i, raw := range raws {
		g.Go(func() error {
			results[i] = v.Verify(gctx, raw)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (v *Verifier) resolve(ctx context.Context, raw, normalized string) Result {
	// DOIs are case-insensitive
	lookupKey := strings.ToLower(normalized)
	key := cache.Key(cacheNamespace, lookupKey)

	var cached Result
	if cache.GetJSON(v.cache, key, &cached) {
		cached.DOI = raw
		cached.Cached = true
		return cached
	}

	// concurrent lookups of the same DOI share one resolution
	val, _, _ := v.group.Do(lookupKey, func() (any, error) {
		return v.lookup(ctx, normalized), nil
	})
	res := val.(Result)
	res.DOI = raw

	if res.Status.Definitive() {
		if err := cache.SetJSON(v.cache, key, res, v.cacheTTL); err != nil {
			v.logger.Warn("failed to cache DOI result", zap.String("doi", normalized), zap.Error(err))
		}
	}
	return res
}

func (v *Verifier) lookup(ctx context.Context, normalized string) Result {
	res := Result{Normalized: normalized}
	var failures []string
	notFound := 0

	for _, r := range v.resolvers {
		resolution, err := v.tryResolver(ctx, r, normalized)
		if err != nil {
			v.logger.Debug("resolver failed",
				zap.String("resolver", r.Name()),
				zap.String("doi", normalized),
				zap.Error(err),
			)
			failures = append(failures, fmt.Sprintf("%s: %v", r.Name(), err))
			continue
		}
		if resolution.Found {
			res.Status = StatusVerified
			res.Resolver = r.Name()
			res.Title = resolution.Title
			res.Year = resolution.Year
			res.Reason = "resolved by " + r.Name()
			return res
		}
		notFound++
	}

	if len(v.resolvers) > 0 && notFound == len(v.resolvers) {
		res.Status = StatusUnresolvable
		res.Reason = "not registered with any resolver"
		return res
	}

	res.Status = StatusUnverified
	if len(failures) > 0 {
		res.Reason = "resolution failed: " + strings.Join(failures, "; ")
	} else {
		res.Reason = "no resolver confirmed the DOI"
	}
	return res
}

func (v *Verifier) tryResolver(ctx context.Context, r Resolver, doi string) (Resolution, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	if err := v.limiter.Wait(ctx, r.Endpoint(doi)); err != nil {
		return Resolution{}, fmt.Errorf("rate limit: %w", err)
	}

	resolution, err := r.Resolve(ctx, doi)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Resolution{}, fmt.Errorf("timeout after %s: %w", v.timeout, err)
	}
	return resolution, err
}

// Evidence converts a verification result into an evidence item. Title and
// year fall back to what the citation already carried.
func (r Result) Evidence(title string, year int, tier model.EvidenceTier) model.EvidenceItem {
	item := model.EvidenceItem{
		DOI:           r.DOI,
		NormalizedDOI: r.Normalized,
		Valid:         r.Valid(),
		Status:        string(r.Status),
		Reason:        r.Reason,
		Resolver:      r.Resolver,
		Title:         title,
		Year:          year,
		Tier:          tier,
	}
	if item.Title == "" {
		item.Title = r.Title
	}
	if item.Year == 0 {
		item.Year = r.Year
	}
	return item
}
