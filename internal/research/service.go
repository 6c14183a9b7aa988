package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/llm"
	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/metrics"
	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/tracing"
)

const (
	// ResearchTemperature and ResearchMaxOutputTokens are fixed for every research call.
	ResearchTemperature     float32 = 0.7
	ResearchMaxOutputTokens int32   = 4096

	DefaultTimeout = 90 * time.Second
)

// Store persists reports and knowledge base entries under their episode.
// Get/List/Update return ErrNotFound when the episode or report is missing.
type Store interface {
	GetEpisodeContext(ctx context.Context, key EpisodeKey) (EpisodeContext, error)
	CreateReport(ctx context.Context, key EpisodeKey, r *Report) error
	GetReport(ctx context.Context, key EpisodeKey, reportID string) (*Report, error)
	ListReports(ctx context.Context, key EpisodeKey) ([]Report, error)
	UpdateReport(ctx context.Context, key EpisodeKey, r *Report) error
	AddKnowledgeEntry(ctx context.Context, key EpisodeKey, e *KnowledgeBaseEntry) error
	ListKnowledgeEntries(ctx context.Context, key EpisodeKey) ([]KnowledgeBaseEntry, error)
}

// Service runs the research pipeline and manages reports and knowledge bases.
type Service struct {
	store     Store
	generator llm.Generator
	logger    *zap.Logger
	timeout   time.Duration
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithTimeout bounds each generative call.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a research service.
func NewService(store Store, generator llm.Generator, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:     store,
		generator: generator,
		logger:    logger,
		timeout:   DefaultTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunResearch sends q to the model and parses the reply. It always returns a
// usable Result: upstream errors become a failure notice and malformed output
// becomes the degraded parse result.
func (s *Service) RunResearch(ctx context.Context, q ResearchQuery) Result {
	ctx, span := tracing.StartSpan(ctx, "research.run")
	defer span.End()

	start := time.Now()
	prompt := BuildPrompt(q)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.generator.Generate(callCtx, llm.Request{
		SystemInstruction: SystemInstruction,
		Prompt:            prompt,
		Temperature:       ResearchTemperature,
		MaxOutputTokens:   ResearchMaxOutputTokens,
	})

	var (
		res     Result
		outcome string
	)
	switch {
	case err != nil:
		res = FailureResult(err)
		outcome = metrics.OutcomeUpstreamError
		span.RecordError(err)
		s.logger.Error("Research call failed", zap.Error(err), zap.Int("prompt_chars", len(prompt)))
	default:
		res = ParseResponse(raw)
		outcome = metrics.OutcomeOK
		if res.Degraded() && len(res.KeyFindings) == 1 {
			outcome = metrics.OutcomeParseError
			s.logger.Warn("Research response could not be parsed",
				zap.String("error", res.KeyFindings[0].Description),
				zap.Int("response_chars", len(raw)),
			)
		}
	}

	span.SetAttributes(
		attribute.String("research.outcome", outcome),
		attribute.Int("research.findings", len(res.KeyFindings)),
		attribute.Int("research.kb_facts", len(q.ExistingKB)),
	)
	metrics.RecordResearch(outcome, time.Since(start).Seconds(), len(res.KeyFindings))
	return res
}

// CreateReportInput is the request to create a report for an episode.
type CreateReportInput struct {
	Query            string         `json:"query"`
	Type             ReportType     `json:"type"`
	Title            string         `json:"title"`
	ExecutiveSummary string         `json:"executive_summary"`
	ProducerNotes    string         `json:"producer_notes"`
	AttachedFiles    []AttachedFile `json:"attached_files"`
}

// CreateReport validates input, checks the episode exists, and then either runs
// the pipeline (ai_brief) or stores a producer-authored report (manual).
func (s *Service) CreateReport(ctx context.Context, key EpisodeKey, in CreateReportInput) (*Report, error) {
	if in.Type == "" {
		in.Type = ReportTypeAIBrief
	}
	if !in.Type.Valid() {
		return nil, ErrInvalidType
	}
	if in.Type == ReportTypeAIBrief && strings.TrimSpace(in.Query) == "" {
		return nil, ErrQueryRequired
	}

	epCtx, err := s.store.GetEpisodeContext(ctx, key)
	if err != nil {
		return nil, err
	}

	var report Report
	if in.Type == ReportTypeManual {
		report, err = NewManualReport(ManualReport{
			Title:            in.Title,
			Query:            in.Query,
			ExecutiveSummary: in.ExecutiveSummary,
			ProducerNotes:    in.ProducerNotes,
			AttachedFiles:    in.AttachedFiles,
		}, s.now())
		if err != nil {
			return nil, err
		}
	} else {
		kb, err := s.store.ListKnowledgeEntries(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to load knowledge base: %w", err)
		}
		q := ResearchQuery{
			Query:         in.Query,
			SeriesTitle:   epCtx.SeriesTitle,
			EpisodeTitle:  epCtx.EpisodeTitle,
			EpisodeBrief:  epCtx.EpisodeBrief,
			AttachedFiles: in.AttachedFiles,
			ExistingKB:    kb,
		}
		report = NewAIReport(q, s.RunResearch(ctx, q), s.now())
	}

	report.ID = uuid.NewString()
	if err := s.store.CreateReport(ctx, key, &report); err != nil {
		return nil, fmt.Errorf("failed to save report: %w", err)
	}

	metrics.ReportsCreated.WithLabelValues(string(report.Type)).Inc()
	s.logger.Info("Research report created",
		zap.String("report_id", report.ID),
		zap.String("episode_id", key.EpisodeID),
		zap.String("type", string(report.Type)),
		zap.Int("findings", len(report.KeyFindings)),
	)
	return &report, nil
}

// GetReport returns one report.
func (s *Service) GetReport(ctx context.Context, key EpisodeKey, reportID string) (*Report, error) {
	return s.store.GetReport(ctx, key, reportID)
}

// ListReports returns an episode's reports, newest first.
func (s *Service) ListReports(ctx context.Context, key EpisodeKey) ([]Report, error) {
	if _, err := s.store.GetEpisodeContext(ctx, key); err != nil {
		return nil, err
	}
	return s.store.ListReports(ctx, key)
}

// UpdateReport merges u into a stored report. Concurrent updates are last write wins.
func (s *Service) UpdateReport(ctx context.Context, key EpisodeKey, reportID string, u ReportUpdate) (*Report, error) {
	return s.mutate(ctx, key, reportID, func(r Report) (Report, error) {
		return u.Apply(r, s.now())
	})
}

// CompleteReport marks a report complete.
func (s *Service) CompleteReport(ctx context.Context, key EpisodeKey, reportID string) (*Report, error) {
	return s.mutate(ctx, key, reportID, func(r Report) (Report, error) {
		return Complete(r, s.now()), nil
	})
}

// LinkAsset attaches an archive asset to a report.
func (s *Service) LinkAsset(ctx context.Context, key EpisodeKey, reportID string, asset LinkedAsset) (*Report, error) {
	r, err := s.mutate(ctx, key, reportID, func(r Report) (Report, error) {
		return LinkAsset(r, asset, s.now()), nil
	})
	if err == nil {
		metrics.AssetsLinked.Inc()
	}
	return r, err
}

func (s *Service) mutate(ctx context.Context, key EpisodeKey, reportID string, fn func(Report) (Report, error)) (*Report, error) {
	current, err := s.store.GetReport(ctx, key, reportID)
	if err != nil {
		return nil, err
	}
	from := current.Status

	updated, err := fn(*current)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateReport(ctx, key, &updated); err != nil {
		return nil, fmt.Errorf("failed to update report: %w", err)
	}

	if updated.Status != from {
		metrics.ReportTransitions.WithLabelValues(string(from), string(updated.Status)).Inc()
		s.logger.Info("Report status changed",
			zap.String("report_id", reportID),
			zap.String("from", string(from)),
			zap.String("to", string(updated.Status)),
		)
	}
	return &updated, nil
}

// AddToKnowledgeBase appends a fact to an episode's knowledge base.
func (s *Service) AddToKnowledgeBase(ctx context.Context, key EpisodeKey, in NewEntry) (*KnowledgeBaseEntry, error) {
	entry, err := in.Build(s.now())
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetEpisodeContext(ctx, key); err != nil {
		return nil, err
	}

	entry.ID = uuid.NewString()
	if err := s.store.AddKnowledgeEntry(ctx, key, &entry); err != nil {
		return nil, fmt.Errorf("failed to save knowledge entry: %w", err)
	}

	metrics.KnowledgeEntries.WithLabelValues(string(entry.Category), string(entry.Confidence)).Inc()
	s.logger.Debug("Knowledge base entry added",
		zap.String("entry_id", entry.ID),
		zap.String("episode_id", key.EpisodeID),
		zap.String("source_report_id", entry.SourceReportID),
	)
	return &entry, nil
}

// PromoteFinding copies one finding of a stored report into the episode's
// knowledge base, keeping its source indices and confidence.
func (s *Service) PromoteFinding(ctx context.Context, key EpisodeKey, reportID string, index int, category Category) (*KnowledgeBaseEntry, error) {
	if strings.TrimSpace(reportID) == "" {
		return nil, ErrReportIDRequired
	}
	report, err := s.store.GetReport(ctx, key, reportID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(report.KeyFindings) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFinding, index)
	}
	return s.AddToKnowledgeBase(ctx, key, EntryFromFinding(report.ID, report.KeyFindings[index], category))
}

// ListKnowledgeBase returns an episode's facts in insertion order.
func (s *Service) ListKnowledgeBase(ctx context.Context, key EpisodeKey) ([]KnowledgeBaseEntry, error) {
	if _, err := s.store.GetEpisodeContext(ctx, key); err != nil {
		return nil, err
	}
	return s.store.ListKnowledgeEntries(ctx, key)
}

// IsClientError reports whether err is caused by bad input rather than the
// service or its dependencies.
func IsClientError(err error) bool {
	for _, target := range []error{
		ErrQueryRequired, ErrFactRequired, ErrInvalidStatus,
		ErrInvalidType, ErrInvalidConfidence, ErrInvalidCategory,
		ErrReportIDRequired, ErrInvalidFinding,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
