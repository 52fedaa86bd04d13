package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/curator/internal/model"
)

// mockProcessor files every input unless told otherwise
type mockProcessor struct {
	delay    time.Duration
	failOn   string // Source that fails with RubricMismatch
	calls    atomic.Int32
	canceled atomic.Int32
}

func (m *mockProcessor) Process(ctx context.Context, in model.Input) (model.Outcome, error) {
	m.calls.Add(1)
	source := in.URL
	if source == "" {
		source = "text"
	}
	if source == m.failOn {
		err := model.Errorf(model.ReasonRubricMismatch, "broken scoring function")
		return model.Rejected(err), err
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			m.canceled.Add(1)
			err := model.Wrap(model.ReasonCanceled, ctx.Err(), "submission canceled")
			return model.Rejected(err), err
		}
	}
	return model.Outcome{Status: model.StatusFiled, ItemID: "id-" + source, Source: source}, nil
}

func urlInputs(urls ...string) []model.Input {
	inputs := make([]model.Input, len(urls))
	for i, u := range urls {
		inputs[i] = model.Input{URL: u}
	}
	return inputs
}

func TestBatchProcessor_Process(t *testing.T) {
	proc := &mockProcessor{delay: 5 * time.Millisecond}
	processor := NewBatchProcessor(proc, 2, WithLimiter(NewLimiter(1000, 10)))

	inputs := urlInputs("http://example.com/a", "http://google.com", "http://bing.com", "http://example.com/b")
	results := processor.Process(context.Background(), inputs)

	if len(results) != len(inputs) {
		t.Fatalf("expected %d results, got %d", len(inputs), len(results))
	}
	for i, res := range results {
		if res.Err != nil {
			t.Errorf("unexpected error for %s: %v", res.Input.URL, res.Err)
		}
		if res.Outcome.ItemID != "id-"+inputs[i].URL {
			t.Errorf("result %d out of order: %+v", i, res.Outcome)
		}
	}
}

func TestBatchProcessor_Process_Empty(t *testing.T) {
	processor := NewBatchProcessor(&mockProcessor{}, 2)

	results := processor.Process(context.Background(), nil)
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestBatchProcessor_RubricMismatchHaltsBatch(t *testing.T) {
	proc := &mockProcessor{delay: 200 * time.Millisecond, failOn: "http://broken.example"}
	processor := NewBatchProcessor(proc, 2)

	urls := []string{"http://broken.example", "http://slow.example/1"}
	for i := 0; i < 20; i++ {
		urls = append(urls, "http://later.example/"+string(rune('a'+i)))
	}
	results := processor.Process(context.Background(), urlInputs(urls...))

	if len(results) != len(urls) {
		t.Fatalf("expected %d results, got %d", len(urls), len(results))
	}
	if !errors.Is(results[0].Err, model.ErrRubricMismatch) {
		t.Errorf("expected first result to carry RubricMismatch, got %v", results[0].Err)
	}

	canceled := 0
	for _, res := range results[1:] {
		if errors.Is(res.Err, model.ErrCanceled) {
			canceled++
			if res.Outcome.Reason != model.ReasonCanceled || res.Outcome.Status != model.StatusRejected {
				t.Errorf("unexpected canceled outcome %+v", res.Outcome)
			}
		}
	}
	if canceled != len(urls)-1 {
		t.Errorf("expected every other job canceled, got %d of %d", canceled, len(urls)-1)
	}
	if int(proc.calls.Load()) >= len(urls) {
		t.Errorf("expected the halt to skip queued jobs, got %d calls", proc.calls.Load())
	}
}

func TestBatchProcessor_Timeout(t *testing.T) {
	proc := &mockProcessor{delay: time.Second}
	processor := NewBatchProcessor(proc, 1, WithTimeout(20*time.Millisecond))

	results := processor.Process(context.Background(), []model.Input{{RawText: "x"}})
	if !errors.Is(results[0].Err, model.ErrCanceled) {
		t.Errorf("expected per-job timeout to cancel, got %v", results[0].Err)
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inputs.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadInputsFromFile(t *testing.T) {
	content := `http://example.com
# comment
https://google.com

{"rawText": "pasted text", "metadata": {"authorInfo": "Ana"}, "strict": true}
{"url": "https://bing.com", "validation": {"by": "reviewer"}}
http://example.com
   http://trimmed.example   `

	inputs, err := ReadInputsFromFile(writeFile(t, content))
	if err != nil {
		t.Fatalf("ReadInputsFromFile failed: %v", err)
	}

	if len(inputs) != 5 {
		t.Fatalf("expected 5 inputs, got %d: %+v", len(inputs), inputs)
	}
	if inputs[0].URL != "http://example.com" || inputs[1].URL != "https://google.com" {
		t.Errorf("unexpected url inputs %+v", inputs[:2])
	}
	if inputs[2].RawText != "pasted text" || inputs[2].Metadata.AuthorInfo != "Ana" || !inputs[2].Strict {
		t.Errorf("unexpected json input %+v", inputs[2])
	}
	if inputs[3].Validation == nil || inputs[3].Validation.By != "reviewer" {
		t.Errorf("expected validation signal, got %+v", inputs[3])
	}
	if inputs[4].URL != "http://trimmed.example" {
		t.Errorf("expected trimmed url, got %q", inputs[4].URL)
	}
}

func TestReadInputsFromFile_Errors(t *testing.T) {
	if _, err := ReadInputsFromFile("non_existent_file.txt"); err == nil {
		t.Error("expected error for non-existent file, got nil")
	}

	_, err := ReadInputsFromFile(writeFile(t, "http://a.example\n{not json}\n"))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("expected error naming line 2, got %v", err)
	}
}

func TestBatchProcessor_ProcessFile(t *testing.T) {
	proc := &mockProcessor{}
	processor := NewBatchProcessor(proc, 2)

	results, err := processor.ProcessFile(context.Background(), writeFile(t, "http://example.com\nhttps://google.com\n# comment\n\nhttp://bing.com\n"))
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}

	if _, err := processor.ProcessFile(context.Background(), "no_such_file.txt"); err == nil {
		t.Error("expected error for non-existent file, got nil")
	}
}

func TestWriteResults(t *testing.T) {
	results := []*JobResult{
		{Input: model.Input{RawText: "big text"}, Outcome: model.Outcome{Status: model.StatusFiled, ItemID: "a"}, Duration: 1500 * time.Millisecond},
		{Input: model.Input{URL: "http://x"}, Outcome: model.Rejected(model.Errorf(model.ReasonExtractionFailed, "status 502"))},
	}

	var buf bytes.Buffer
	if err := WriteResults(&buf, results); err != nil {
		t.Fatalf("WriteResults failed: %v", err)
	}

	var lines []resultLine
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var l resultLine
		if err := json.Unmarshal(scanner.Bytes(), &l); err != nil {
			t.Fatalf("invalid line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, l)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].Input.RawText != "" || lines[0].ElapsedMS != 1500 {
		t.Errorf("unexpected first line %+v", lines[0])
	}
	if lines[1].Outcome.Reason != model.ReasonExtractionFailed {
		t.Errorf("unexpected second line %+v", lines[1])
	}

	s := Summarize(results)
	if s.Filed != 1 || s.Rejected != 1 || s.Reasons[model.ReasonExtractionFailed] != 1 {
		t.Errorf("unexpected summary %+v", s)
	}
}
