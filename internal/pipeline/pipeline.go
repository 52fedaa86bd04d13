package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/curator/internal/classify"
	"github.com/ppiankov/curator/internal/dedupe"
	"github.com/ppiankov/curator/internal/extract"
	"github.com/ppiankov/curator/internal/metrics"
	"github.com/ppiankov/curator/internal/model"
	"github.com/ppiankov/curator/internal/registry"
	"github.com/ppiankov/curator/internal/score"
)

// Pipeline drives one submission from intake to a filed item, a duplicate
// marker or a rejection. It keeps no state between submissions.
type Pipeline struct {
	extractor  extract.Extractor
	scorer     *score.Scorer
	classifier *classify.Classifier
	dedupe     *dedupe.Deduplicator
	registry   *registry.Registry
	metrics    *metrics.Collector
	logger     *zap.Logger
	strict     bool
	now        func() time.Time
	newRunID   func() string
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithExtractor sets the client used for URL submissions
func WithExtractor(e extract.Extractor) Option {
	return func(p *Pipeline) { p.extractor = e }
}

// WithMetrics records outcomes and stage timings
func WithMetrics(m *metrics.Collector) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithStrict rejects provisional practice items that carry no validation
// instead of filing them as analysis
func WithStrict(strict bool) Option {
	return func(p *Pipeline) { p.strict = strict }
}

// WithClock overrides the capture and validation clock
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New wires a pipeline from its components
func New(scorer *score.Scorer, classifier *classify.Classifier, dd *dedupe.Deduplicator, reg *registry.Registry, opts ...Option) *Pipeline {
	p := &Pipeline{
		scorer:     scorer,
		classifier: classifier,
		dedupe:     dd,
		registry:   reg,
		logger:     zap.NewNop(),
		now:        time.Now,
		newRunID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs one submission through every stage. The outcome is always
// populated; err carries the typed failure when the outcome is a rejection.
func (p *Pipeline) Process(ctx context.Context, in model.Input) (model.Outcome, error) {
	r := p.newRun(in)

	out, err := p.process(ctx, r, in)
	if err != nil {
		err = classifyCancel(ctx, err)
		rejected := model.Rejected(err)
		rejected.Source = out.Source
		// a rejection never reports a tier, only the score reached
		rejected.Score = out.Score
		out = rejected
		r.reject(out)
	} else {
		r.done(out)
	}

	p.metrics.RecordOutcome(string(out.Status), string(out.Reason))
	return out, err
}

func (p *Pipeline) process(ctx context.Context, r *run, in model.Input) (model.Outcome, error) {
	out := model.Outcome{Source: sourceOf(in)}

	if err := model.ValidateInput(in); err != nil {
		return out, err
	}

	r.enter(StateExtracting)
	doc, err := p.capture(ctx, in)
	if err != nil {
		return out, err
	}
	r.document(doc.ID)

	if err := checkCanceled(ctx); err != nil {
		return out, err
	}
	r.enter(StateScoring)
	ev, err := p.scorer.Evaluate(doc)
	if err != nil {
		return out, err
	}
	out.Score = ev.TotalScore
	r.logger.Debug("document scored", zap.String("score", score.Describe(ev)))

	if err := checkCanceled(ctx); err != nil {
		return out, err
	}

	// The dedupe scan and the write after it must not interleave with
	// another submission, or two near-identical documents could both file
	err = p.registry.Intake(ctx, func(ctx context.Context) error {
		r.enter(StateDeduplicating)
		match, err := p.dedupe.FindNearDuplicate(ctx, doc, p.registry)
		if err != nil {
			return err
		}
		if match != nil {
			return p.markDuplicate(ctx, r, doc, match, &out)
		}

		if err := checkCanceled(ctx); err != nil {
			return err
		}
		r.enter(StateClassifying)
		res := p.classifier.Classify(ev, doc)
		for _, w := range res.Warnings {
			out.Warnings = append(out.Warnings, w.String())
			r.logger.Warn("classification warning", zap.String("axis", string(w.Axis)), zap.String("reason", string(w.Reason)))
		}
		out.Tier = res.Tier

		item, err := p.gate(in, doc, ev, res)
		if err != nil {
			return err
		}

		if err := checkCanceled(ctx); err != nil {
			return err
		}
		r.enter(StateFiling)
		filed, err := p.registry.File(ctx, item, registry.WithFingerprint(p.dedupe.Fingerprint(item.ID, doc)))
		if err != nil {
			return err
		}

		out.Status = model.StatusFiled
		out.ItemID = filed.ID
		out.Tier = filed.Tier
		out.PendingValidation = filed.PendingValidation
		return nil
	})
	return out, err
}

// capture builds the source document, calling the extractor for URLs
func (p *Pipeline) capture(ctx context.Context, in model.Input) (model.SourceDocument, error) {
	if in.RawText != "" {
		return model.NewSourceDocument("", in.RawText, in.Metadata, p.now()), nil
	}
	if p.extractor == nil {
		return model.SourceDocument{}, model.Errorf(model.ReasonInvalidInput, "url submissions need an extractor")
	}
	url := strings.TrimSpace(in.URL)
	text, err := p.extractor.Extract(ctx, url)
	if err != nil {
		return model.SourceDocument{}, err
	}
	return model.NewSourceDocument(url, text, in.Metadata, p.now()), nil
}

func (p *Pipeline) markDuplicate(ctx context.Context, r *run, doc model.SourceDocument, match *dedupe.Match, out *model.Outcome) error {
	err := p.registry.RecordDuplicate(ctx, model.DuplicateMarker{
		DocumentID:  doc.ID,
		DuplicateOf: match.ItemID,
		Similarity:  match.Similarity,
		SourceURL:   doc.URL,
		RecordedAt:  p.now().UTC(),
	})
	if err != nil {
		return err
	}
	r.logger.Info("near duplicate", zap.String("duplicate_of", match.ItemID), zap.Float64("similarity", match.Similarity))

	out.Status = model.StatusDuplicate
	out.ItemID = match.ItemID
	out.DuplicateOf = match.ItemID
	out.Similarity = match.Similarity
	out.Tier = ""
	return nil
}

// gate turns a classification into the item to file. Practice is only
// filed with a validation signal; otherwise it is held back as analysis
// pending validation, or rejected in strict mode.
func (p *Pipeline) gate(in model.Input, doc model.SourceDocument, ev model.Evaluation, res classify.Result) (model.ClassifiedItem, error) {
	item := model.ClassifiedItem{
		ID:         doc.ID,
		Tier:       res.Tier,
		Taxonomy:   res.Taxonomy,
		Score:      ev.TotalScore,
		MaxScore:   ev.MaxScore,
		Evaluation: &ev,
		SourceURL:  doc.URL,
		CapturedAt: doc.CapturedAt,
	}

	if in.Validation != nil {
		at := p.now().UTC()
		if in.Validation.At != nil {
			at = in.Validation.At.UTC()
		}
		item.ValidatedAt = &at
		item.ValidatedBy = in.Validation.By
		return item, nil
	}

	if res.Provisional {
		if in.Strict || p.strict {
			return model.ClassifiedItem{}, model.Errorf(model.ReasonInvariantViolation,
				"score %.2f reaches practice but no validation signal was supplied", ev.TotalScore)
		}
		item.Tier = model.TierAnalysis
		item.PendingValidation = true
	}
	return item, nil
}

func sourceOf(in model.Input) string {
	if u := strings.TrimSpace(in.URL); u != "" {
		return u
	}
	return "text"
}

func checkCanceled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return model.Wrap(model.ReasonCanceled, err, "submission canceled")
	}
	return nil
}

// classifyCancel reports unclassified failures caused by a done context as
// cancellations
func classifyCancel(ctx context.Context, err error) error {
	if ctx.Err() == nil || model.ReasonOf(err) != model.ReasonInternal {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return model.Wrap(model.ReasonCanceled, err, "submission canceled")
	}
	return err
}
