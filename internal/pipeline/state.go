package pipeline

import (
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/curator/internal/metrics"
	"github.com/ppiankov/curator/internal/model"
)

// State is a pipeline stage
type State string

const (
	StateExtracting    State = "extracting"
	StateScoring       State = "scoring"
	StateDeduplicating State = "deduplicating"
	StateClassifying   State = "classifying"
	StateFiling        State = "filing"
	StateDone          State = "done"
	StateRejected      State = "rejected"
)

// Terminal reports whether no transition leaves s
func (s State) Terminal() bool {
	return s == StateDone || s == StateRejected
}

// run tracks one submission's walk through the states
type run struct {
	id      string
	state   State
	entered time.Time
	trail   []State
	metrics *metrics.Collector
	logger  *zap.Logger
}

func (p *Pipeline) newRun(in model.Input) *run {
	id := p.newRunID()
	return &run{
		id:      id,
		metrics: p.metrics,
		logger:  p.logger.With(zap.String("run_id", id), zap.String("source", sourceOf(in))),
	}
}

// document attaches the document id to every later log line
func (r *run) document(id string) {
	r.logger = r.logger.With(zap.String("document_id", id))
}

func (r *run) enter(s State) {
	r.leave()
	r.state = s
	r.entered = time.Now()
	r.trail = append(r.trail, s)
	r.logger.Debug("pipeline state", zap.String("state", string(s)))
}

// leave closes the timing of the current stage
func (r *run) leave() {
	if r.state == "" || r.state.Terminal() {
		return
	}
	r.metrics.ObserveStage(string(r.state), time.Since(r.entered))
}

func (r *run) done(out model.Outcome) {
	r.enter(StateDone)
	r.logger.Info("submission processed",
		zap.String("status", string(out.Status)),
		zap.String("item_id", out.ItemID),
		zap.String("tier", string(out.Tier)),
		zap.Float64("score", out.Score))
}

func (r *run) reject(out model.Outcome) {
	from := r.state
	r.enter(StateRejected)
	r.logger.Info("submission rejected",
		zap.String("from", string(from)),
		zap.String("reason", string(out.Reason)),
		zap.String("message", out.Message))
}
