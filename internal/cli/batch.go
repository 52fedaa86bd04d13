package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/curator/internal/model"
	"github.com/ppiankov/curator/internal/worker"
)

type batchOptions struct {
	concurrency  int
	timeout      time.Duration
	batchTimeout time.Duration
	out          string
	metricsAddr  string
}

func newBatchCmd(o *options) *cobra.Command {
	b := &batchOptions{}

	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Submit many documents from a file in parallel",
		Long: `Batch submits documents concurrently:
- Read inputs from a file, one per line: a URL or a JSON input object
- Skip blank lines, # comments and repeated lines
- Throttle extractor calls per host
- Write one JSON result line per input, in input order

A RubricMismatch means the scoring configuration is broken: the batch
stops and every unfinished input is reported as Canceled.

Example:
  curator batch inputs.txt
  curator batch inputs.txt --concurrency 8 --out results.jsonl
  curator batch inputs.txt --metrics-addr :9090`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, o, b, args[0])
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&b.concurrency, "concurrency", 0, "number of concurrent workers (overrides concurrency.workers)")
	flags.DurationVar(&b.timeout, "timeout", 2*time.Minute, "timeout for each submission")
	flags.DurationVar(&b.batchTimeout, "batch-timeout", 0, "total timeout for the batch (0 for none)")
	flags.StringVar(&b.out, "out", "-", "results file in JSON lines (- for stdout)")
	flags.StringVar(&b.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the batch runs")
	flags.Bool("strict", false, "reject practice-tier documents without a validation")

	_ = o.v.BindPFlag("concurrency.workers", flags.Lookup("concurrency"))
	_ = o.v.BindPFlag("pipeline.strict", flags.Lookup("strict"))

	return cmd
}

func runBatch(cmd *cobra.Command, o *options, b *batchOptions, file string) error {
	inputs, err := worker.ReadInputsFromFile(file)
	if err != nil {
		return model.Wrap(model.ReasonInvalidInput, err, "read inputs")
	}

	a, err := o.newApp(withPipeline)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if b.batchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.batchTimeout)
		defer cancel()
	}

	if b.metricsAddr != "" {
		stop, err := serveMetrics(b.metricsAddr, a)
		if err != nil {
			return err
		}
		defer stop()
	}

	workers := a.cfg.Concurrency.Workers
	fmt.Fprintf(o.stderr, "Processing %d inputs from %s with %d workers\n", len(inputs), file, workers)

	processor := worker.NewBatchProcessor(a.pipeline, workers,
		worker.WithLimiter(worker.NewLimiter(a.cfg.RateLimiting.RequestsPerSecond, a.cfg.RateLimiting.BurstSize)),
		worker.WithTimeout(b.timeout),
		worker.WithLogger(a.logger))

	start := time.Now()
	results := processor.Process(ctx, inputs)

	if err := writeBatchResults(o.stdout, b.out, results); err != nil {
		return err
	}

	s := worker.Summarize(results)
	fmt.Fprintf(o.stderr, "Done in %s: %d filed, %d duplicate, %d rejected\n",
		time.Since(start).Round(time.Millisecond), s.Filed, s.Duplicate, s.Rejected)
	reasons := make([]string, 0, len(s.Reasons))
	for r := range s.Reasons {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Fprintf(o.stderr, "  %-22s %d\n", r, s.Reasons[model.Reason(r)])
	}

	// single rejections are results, not command failures
	for _, r := range results {
		if errors.Is(r.Err, model.ErrRubricMismatch) {
			return r.Err
		}
	}
	return nil
}

func writeBatchResults(stdout io.Writer, path string, results []*worker.JobResult) error {
	if path == "-" {
		return worker.WriteResults(stdout, results)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create results file: %w", err)
	}
	if err := worker.WriteResults(f, results); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// serveMetrics exposes /metrics until the returned stop func is called
func serveMetrics(addr string, a *app) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, model.Wrap(model.ReasonInvalidInput, err, "listen for metrics")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	a.logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
