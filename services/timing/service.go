package timing

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/instantcocoa/perftrace/pkg/cache"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// NewAnalysis decodes records and runs the correlation and ranking steps.
// ID and CreatedAt are left for the caller to assign.
func NewAnalysis(name string, records []Record, defs []IntervalDefinition, rankLimit int) *Analysis {
	entries, skipped := DecodeEntries(records)
	corr := Correlate(entries, defs)

	return &Analysis{
		Name:        name,
		Definitions: defs,
		Entries:     entries,
		Skipped:     skipped,
		Results:     corr.Results,
		Ranked:      Top(RankByDuration(entries), rankLimit),
		Diagnostics: corr.Diagnostics,
	}
}

// Service runs, stores and renders analyses.
type Service struct {
	store   Store
	cache   *cache.CacheAside[*Analysis]
	metrics *Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// NewService creates an analysis service backed by store.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With("component", "timing"),
		tracer: otel.Tracer("perftrace/timing"),
		now:    time.Now,
	}
}

// WithCache serves repeated submissions of identical captures from kv.
func (s *Service) WithCache(kv cache.KV, ttl time.Duration) *Service {
	s.cache = cache.NewCacheAside[*Analysis](kv, ttl).
		WithKeyFunc(func(k string) string { return "analysis:" + k }).
		WithLogger(s.logger)
	return s
}

// WithMetrics records Prometheus metrics for every analysis.
func (s *Service) WithMetrics(m *Metrics) *Service {
	s.metrics = m
	return s
}

// Analyze validates the input, runs the analysis and stores it.
func (s *Service) Analyze(ctx context.Context, in AnalyzeInput) (*Analysis, error) {
	ctx, span := s.tracer.Start(ctx, "timing.Analyze", trace.WithAttributes(
		attribute.String("analysis.name", in.Name),
		attribute.Int("analysis.records", len(in.Records)),
	))
	defer span.End()

	if in.Name == "" {
		in.Name = "untitled"
	}
	defs, err := in.ResolveDefinitions()
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidInput, err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	started := time.Now()
	run := func(ctx context.Context) (*Analysis, error) {
		a := NewAnalysis(in.Name, in.Records, defs, in.RankLimit)
		a.ID = uuid.New().String()
		a.CreatedAt = s.now().UTC()
		if err := s.store.Save(ctx, a); err != nil {
			return nil, fmt.Errorf("failed to save analysis: %w", err)
		}
		return a, nil
	}

	var (
		a   *Analysis
		hit bool
	)
	if s.cache != nil {
		key, kerr := contentKey(in.Name, in.Records, defs, in.RankLimit)
		if kerr != nil {
			return nil, kerr
		}
		a, hit, err = s.cache.Get(ctx, key, run)
	} else {
		a, err = run(ctx)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.metrics.observe(a, hit, time.Since(started))
	span.SetAttributes(
		attribute.String("analysis.id", a.ID),
		attribute.Int("analysis.matched", a.MatchedCount()),
		attribute.Int("analysis.skipped", len(a.Skipped)),
		attribute.Bool("analysis.cached", hit),
	)

	s.logger.InfoContext(ctx, "analysis completed",
		"id", a.ID,
		"name", a.Name,
		"entries", len(a.Entries),
		"matched", a.MatchedCount(),
		"intervals", len(a.Results),
		"skipped", len(a.Skipped),
		"cached", hit,
	)
	for _, d := range a.Diagnostics {
		s.logger.DebugContext(ctx, d, "id", a.ID)
	}
	if a.Empty() {
		s.logger.WarnContext(ctx, "no interval matched", "id", a.ID)
	}

	return a, nil
}

// GetAnalysis returns a stored analysis. Unknown IDs yield ErrAnalysisNotFound.
func (s *Service) GetAnalysis(ctx context.Context, id string) (*Analysis, error) {
	ctx, span := s.tracer.Start(ctx, "timing.GetAnalysis", trace.WithAttributes(
		attribute.String("analysis.id", id),
	))
	defer span.End()

	a, err := s.store.Get(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return a, nil
}

// ListAnalyses returns stored analyses, newest first.
func (s *Service) ListAnalyses(ctx context.Context, query ListQuery) (*ListResult, error) {
	ctx, span := s.tracer.Start(ctx, "timing.ListAnalyses")
	defer span.End()

	if query.Limit <= 0 {
		query.Limit = defaultListLimit
	}
	if query.Limit > maxListLimit {
		query.Limit = maxListLimit
	}
	if query.Offset < 0 {
		query.Offset = 0
	}

	analyses, total, err := s.store.List(ctx, query)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	if analyses == nil {
		analyses = []*Analysis{}
	}
	return &ListResult{Analyses: analyses, Total: total}, nil
}

// RenderReport encodes one report table of a stored analysis.
// Interval reports of analyses with no match return ErrEmptyResultSet.
func (s *Service) RenderReport(ctx context.Context, id string, kind ReportKind, format ExportFormat) ([]byte, error) {
	a, err := s.GetAnalysis(ctx, id)
	if err != nil {
		return nil, err
	}
	if kind == ReportIntervals && a.Empty() {
		return nil, ErrEmptyResultSet
	}

	tw, err := NewTableWriter(format)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := tw.Write(&buf, a.Table(kind)); err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}
	return buf.Bytes(), nil
}

// contentKey identifies an analysis request by content.
func contentKey(name string, records []Record, defs []IntervalDefinition, rankLimit int) (string, error) {
	payload, err := json.Marshal(struct {
		Name        string               `json:"name"`
		Records     []Record             `json:"records"`
		Definitions []IntervalDefinition `json:"definitions"`
		RankLimit   int                  `json:"rank_limit"`
	}{name, records, defs, rankLimit})
	if err != nil {
		return "", fmt.Errorf("failed to hash analysis input: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
