package digest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/teemow/inboxdigest/internal/cache"
	"github.com/teemow/inboxdigest/internal/instrumentation"
	"github.com/teemow/inboxdigest/internal/logging"
)

var (
	// ErrNoSummaries is returned when a digest is requested for a date without
	// cached summaries. No backend call is made.
	ErrNoSummaries = errors.New("No email summaries found for this date. Please summarize some emails first.")

	// ErrInsufficientVideoData is returned when a digest lacks the narration
	// script or HTML needed for video rendering.
	ErrInsufficientVideoData = errors.New("Not enough data to generate video.")
)

// State is the lifecycle of digest generation for one date.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateReady
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// VideoRequest is the payload of the video-generation endpoint.
type VideoRequest struct {
	AudioScript string `json:"audioScript"`
	DigestHTML  string `json:"digestHtml"`
}

// Backend generates digests and videos.
type Backend interface {
	GenerateDigest(ctx context.Context, req DigestRequest) (cache.DailyDigest, error)
	GenerateVideo(ctx context.Context, req VideoRequest, w io.Writer) (int64, error)
}

// DigestCache persists generated digests by date.
type DigestCache interface {
	Get(ctx context.Context, date string) (*cache.DailyDigest, error)
	Save(ctx context.Context, date string, d cache.DailyDigest) (cache.DailyDigest, error)
}

// Result is the outcome of a successful Generate call.
type Result struct {
	Digest    cache.DailyDigest
	FromCache bool
}

// Orchestrator ties the assembler, the digest store and the backend together.
type Orchestrator struct {
	assembler *Assembler
	digests   DigestCache
	backend   Backend
	logger    *slog.Logger
	metrics   *instrumentation.Metrics

	mu     sync.Mutex
	states map[string]State

	// concurrent requests for the same date share one backend call
	inflight singleflight.Group
}

// NewOrchestrator creates an Orchestrator. logger and metrics may be nil.
func NewOrchestrator(assembler *Assembler, digests DigestCache, backend Backend, logger *slog.Logger, metrics *instrumentation.Metrics) *Orchestrator {
	return &Orchestrator{
		assembler: assembler,
		digests:   digests,
		backend:   backend,
		logger:    logging.WithComponent(logger, "digest_orchestrator"),
		metrics:   metrics,
		states:    make(map[string]State),
	}
}

// State returns the generation state recorded for date.
func (o *Orchestrator) State(date string) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.states[date]
}

func (o *Orchestrator) setState(date string, s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states[date] = s
}

// Generate returns the digest for date, generating it when the digest store
// has none. An empty date means today.
func (o *Orchestrator) Generate(ctx context.Context, date string) (Result, error) {
	if date == "" {
		date = o.assembler.Today()
	}
	if err := cache.ValidateDate(date); err != nil {
		return Result{}, err
	}

	ctx, span := instrumentation.StartDigestSpan(ctx, date)
	defer span.End()

	v, err, shared := o.inflight.Do(date, func() (interface{}, error) {
		return o.generate(ctx, date)
	})
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return Result{}, err
	}
	res := v.(Result)
	span.SetAttributes(instrumentation.NewSpanAttributeBuilder().
		WithCacheHit(res.FromCache).
		WithShared(shared).
		Build()...)
	instrumentation.SetSpanSuccess(span)
	return res, nil
}

func (o *Orchestrator) generate(ctx context.Context, date string) (Result, error) {
	logger := o.logger.With(logging.Date(date))

	existing, err := o.digests.Get(ctx, date)
	if err != nil {
		// storage faults degrade to a cache miss
		logger.Warn("failed to read saved digest", logging.Err(err))
	}
	if existing != nil {
		o.setState(date, StateReady)
		o.metrics.RecordDigestGeneration(ctx, instrumentation.DigestResultCacheHit, 0)
		logger.Debug("serving daily digest from cache")
		return Result{Digest: *existing, FromCache: true}, nil
	}

	req, err := o.assembler.BuildDigestRequest(ctx, date)
	if err != nil {
		o.setState(date, StateFailed)
		o.metrics.RecordDigestGeneration(ctx, instrumentation.DigestResultError, 0)
		return Result{}, err
	}
	if len(req.Summaries) == 0 {
		o.setState(date, StateFailed)
		o.metrics.RecordDigestGeneration(ctx, instrumentation.DigestResultNoSummaries, 0)
		return Result{}, ErrNoSummaries
	}

	o.setState(date, StateRequesting)
	logger.Info("generating daily digest", logging.Count(len(req.Summaries)))

	generated, err := o.backend.GenerateDigest(ctx, req)
	if err != nil {
		o.setState(date, StateFailed)
		o.metrics.RecordDigestGeneration(ctx, instrumentation.DigestResultError, len(req.Summaries))
		logger.Error("daily digest generation failed", logging.Err(err))
		return Result{}, err
	}

	saved, err := o.digests.Save(ctx, date, generated)
	if err != nil {
		logger.Warn("generated digest was not saved", logging.Err(err))
	}
	o.setState(date, StateReady)
	o.metrics.RecordDigestGeneration(ctx, instrumentation.DigestResultGenerated, len(req.Summaries))
	return Result{Digest: saved}, nil
}

// VideoFileName is the file name used for an exported digest video.
func VideoFileName(date string) string {
	return cache.DigestPrefix + date + ".mp4"
}

// ExportVideo renders d as a video and streams it to w, returning the
// number of bytes written.
func (o *Orchestrator) ExportVideo(ctx context.Context, d cache.DailyDigest, w io.Writer) (int64, error) {
	script := d.Script()
	if script == "" || d.DigestHTML == "" {
		return 0, ErrInsufficientVideoData
	}

	n, err := o.backend.GenerateVideo(ctx, VideoRequest{AudioScript: script, DigestHTML: d.DigestHTML}, w)
	if err != nil {
		o.logger.Error("video generation failed", logging.Date(d.Date), logging.Err(err))
		return n, err
	}
	o.logger.Info("exported digest video", logging.Date(d.Date), slog.Int64("bytes", n))
	return n, nil
}

// ExportVideoFile writes the video of d into dir (the working directory when
// empty) and returns the file path. A partial file is removed on failure.
func (o *Orchestrator) ExportVideoFile(ctx context.Context, d cache.DailyDigest, dir string) (string, int64, error) {
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, VideoFileName(d.Date))

	f, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}

	n, err := o.ExportVideo(ctx, d, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", n, err
	}
	return path, n, nil
}
