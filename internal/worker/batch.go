package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/curator/internal/model"
)

// Processor runs one submission through the pipeline
type Processor interface {
	Process(ctx context.Context, in model.Input) (model.Outcome, error)
}

// PipelineJob processes one submission
type PipelineJob struct {
	Input     model.Input
	processor Processor
	limiter   *Limiter
	timeout   time.Duration
	onHalt    func(error)
}

// Execute executes the pipeline job
func (j *PipelineJob) Execute(ctx context.Context) Result {
	start := time.Now()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	if j.Input.URL != "" {
		if err := j.limiter.Wait(ctx, j.Input.URL); err != nil {
			err = model.Wrap(model.ReasonCanceled, err, "waiting for rate limit")
			return &JobResult{Input: j.Input, Outcome: rejected(j.Input, err), Err: err, Duration: time.Since(start)}
		}
	}

	out, err := j.processor.Process(ctx, j.Input)
	if errors.Is(err, model.ErrRubricMismatch) && j.onHalt != nil {
		j.onHalt(err)
	}
	return &JobResult{Input: j.Input, Outcome: out, Err: err, Duration: time.Since(start)}
}

// JobResult is the outcome of one batch submission
type JobResult struct {
	Input    model.Input
	Outcome  model.Outcome
	Err      error
	Duration time.Duration
}

// GetError returns the error from the job result
func (r *JobResult) GetError() error {
	return r.Err
}

// BatchProcessor processes many submissions concurrently
type BatchProcessor struct {
	processor   Processor
	concurrency int
	limiter     *Limiter
	timeout     time.Duration
	logger      *zap.Logger
}

// BatchOption configures a BatchProcessor
type BatchOption func(*BatchProcessor)

// WithLimiter throttles URL submissions per host
func WithLimiter(l *Limiter) BatchOption {
	return func(b *BatchProcessor) { b.limiter = l }
}

// WithTimeout bounds each submission
func WithTimeout(d time.Duration) BatchOption {
	return func(b *BatchProcessor) { b.timeout = d }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) BatchOption {
	return func(b *BatchProcessor) { b.logger = l }
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(processor Processor, concurrency int, opts ...BatchOption) *BatchProcessor {
	b := &BatchProcessor{
		processor:   processor,
		concurrency: concurrency,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Process runs every input and returns one result per input, in input order.
// A RubricMismatch means the scoring configuration is broken, so it halts
// the batch: running jobs are canceled and jobs not yet started are
// reported as Canceled.
func (b *BatchProcessor) Process(ctx context.Context, inputs []model.Input) []*JobResult {
	if len(inputs) == 0 {
		return []*JobResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	var haltOnce sync.Once
	halt := func(err error) {
		haltOnce.Do(func() {
			b.logger.Error("halting batch", zap.Error(err))
			pool.Cancel()
		})
	}

	for _, in := range inputs {
		job := &PipelineJob{
			Input:     in,
			processor: b.processor,
			limiter:   b.limiter,
			timeout:   b.timeout,
			onHalt:    halt,
		}
		if !pool.Submit(job) {
			break
		}
	}

	results := pool.Wait()

	out := make([]*JobResult, len(inputs))
	for i, in := range inputs {
		if i < len(results) && results[i] != nil {
			out[i] = results[i].(*JobResult)
			continue
		}
		err := model.Errorf(model.ReasonCanceled, "batch halted before this submission started")
		out[i] = &JobResult{Input: in, Outcome: rejected(in, err), Err: err}
	}
	return out
}

// ProcessFile reads inputs from a file and processes them concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*JobResult, error) {
	inputs, err := ReadInputsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read inputs: %w", err)
	}

	return b.Process(ctx, inputs), nil
}

func rejected(in model.Input, err error) model.Outcome {
	out := model.Rejected(err)
	out.Source = strings.TrimSpace(in.URL)
	if out.Source == "" {
		out.Source = "text"
	}
	return out
}

// ReadInputsFromFile reads one submission per line: either a bare URL or a
// JSON input object. Blank lines and # comments are skipped and repeated
// lines are dropped.
func ReadInputsFromFile(filePath string) ([]model.Input, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return ReadInputs(file)
}

// ReadInputs parses submissions from r in the ReadInputsFromFile format
func ReadInputs(r io.Reader) ([]model.Input, error) {
	var inputs []model.Input
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if seen[line] {
			continue
		}
		seen[line] = true

		if strings.HasPrefix(line, "{") {
			var in model.Input
			if err := json.Unmarshal([]byte(line), &in); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			inputs = append(inputs, in)
			continue
		}
		inputs = append(inputs, model.Input{URL: line})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return inputs, nil
}

type resultLine struct {
	Input     model.Input   `json:"input"`
	Outcome   model.Outcome `json:"outcome"`
	ElapsedMS int64         `json:"elapsedMs"`
}

// WriteResults writes one JSON line per result
func WriteResults(w io.Writer, results []*JobResult) error {
	enc := json.NewEncoder(w)
	for _, r := range results {
		line := resultLine{Input: r.Input, Outcome: r.Outcome, ElapsedMS: r.Duration.Milliseconds()}
		// Raw text can be large; the outcome already names the document
		line.Input.RawText = ""
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	}
	return nil
}

// Summary counts results by status
type Summary struct {
	Filed     int
	Duplicate int
	Rejected  int
	Reasons   map[model.Reason]int
}

// Summarize counts outcomes
func Summarize(results []*JobResult) Summary {
	s := Summary{Reasons: make(map[model.Reason]int)}
	for _, r := range results {
		switch r.Outcome.Status {
		case model.StatusFiled:
			s.Filed++
		case model.StatusDuplicate:
			s.Duplicate++
		default:
			s.Rejected++
			s.Reasons[r.Outcome.Reason]++
		}
	}
	return s
}
