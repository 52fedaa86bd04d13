package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/curator/internal/model"
	"github.com/ppiankov/curator/internal/pipeline"
)

type submitOptions struct {
	url         string
	file        string
	text        string
	author      string
	published   string
	validatedBy string
	strict      bool
	outJSON     string
	timeout     time.Duration
}

func newSubmitCmd(o *options) *cobra.Command {
	s := &submitOptions{}

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Score, classify and file one document",
		Long: `Submit runs one document through the intake pipeline:
- Extract text from a URL (or take raw text directly)
- Score it against the rubric
- Reject it as a near-duplicate of an existing item
- Classify it into a tier and taxonomy
- File it in the registry

A practice-tier score is filed as practice only with --validated-by;
otherwise it is filed as analysis pending validation, or rejected with
--strict.

Example:
  curator submit --url https://example.com/postmortem
  curator submit --file notes.md --author "Platform team" --published 2026-03-01
  cat draft.txt | curator submit --file - --validated-by alice --json outcome.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd.Context(), o, s)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&s.url, "url", "", "URL to extract and submit")
	flags.StringVar(&s.file, "file", "", "file with raw text to submit (- for stdin)")
	flags.StringVar(&s.text, "text", "", "raw text to submit")
	flags.StringVar(&s.author, "author", "", "author information (unverified)")
	flags.StringVar(&s.published, "published", "", "publication date (YYYY-MM-DD or RFC 3339)")
	flags.StringVar(&s.validatedBy, "validated-by", "", "record a human validation by this reviewer")
	flags.BoolVar(&s.strict, "strict", false, "reject practice-tier documents without a validation")
	flags.StringVar(&s.outJSON, "json", "", "write the outcome as JSON to this path (- for stdout)")
	flags.DurationVar(&s.timeout, "timeout", 2*time.Minute, "overall submission timeout")

	cmd.MarkFlagsMutuallyExclusive("url", "file", "text")
	cmd.MarkFlagsOneRequired("url", "file", "text")

	return cmd
}

func runSubmit(ctx context.Context, o *options, s *submitOptions) error {
	in, err := s.input(o.stdin)
	if err != nil {
		return err
	}

	a, err := o.newApp(withPipeline)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, procErr := a.pipeline.Process(ctx, in)

	switch s.outJSON {
	case "":
	case "-":
		if err := pipeline.RenderJSON(o.stdout, out); err != nil {
			return err
		}
	default:
		if err := pipeline.WriteJSON(s.outJSON, out); err != nil {
			return err
		}
	}
	if s.outJSON != "-" {
		fmt.Fprintln(o.stdout, pipeline.Summary(out))
		for _, w := range out.Warnings {
			fmt.Fprintf(o.stderr, "  warning: %s\n", w)
		}
	}

	return reported(procErr)
}

// input builds the submission from flags
func (s *submitOptions) input(stdin io.Reader) (model.Input, error) {
	in := model.Input{
		URL:    strings.TrimSpace(s.url),
		Strict: s.strict,
		Metadata: model.Metadata{
			AuthorInfo: strings.TrimSpace(s.author),
		},
	}

	switch {
	case s.text != "":
		in.RawText = s.text
	case s.file == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return model.Input{}, fmt.Errorf("read stdin: %w", err)
		}
		in.RawText = string(data)
	case s.file != "":
		data, err := os.ReadFile(s.file)
		if err != nil {
			return model.Input{}, model.Wrap(model.ReasonInvalidInput, err, "read input file")
		}
		in.RawText = string(data)
	}

	if s.published != "" {
		t, err := parseDate(s.published)
		if err != nil {
			return model.Input{}, err
		}
		in.Metadata.PublicationDate = &t
	}
	if s.validatedBy != "" {
		in.Validation = &model.Validation{By: s.validatedBy}
	}
	return in, nil
}

// parseDate accepts a calendar date or an RFC 3339 timestamp
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, model.Errorf(model.ReasonInvalidInput, "invalid date %q (want YYYY-MM-DD or RFC 3339)", s)
	}
	return t, nil
}
