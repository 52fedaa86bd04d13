package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/curator/internal/model"
)

// testEnv isolates one test from the user's home directory and registry
type testEnv struct {
	dir      string
	registry string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	return &testEnv{dir: dir, registry: filepath.Join(dir, "registry.db")}
}

// run executes one command line against the test registry
func (e *testEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(append([]string{"--registry", e.registry}, args...))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(""))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// submit files text and returns the decoded outcome
func (e *testEnv) submit(t *testing.T, text string, extra ...string) model.Outcome {
	t.Helper()
	stdout, stderr, err := e.run(t, append([]string{"submit", "--text", text, "--json", "-"}, extra...)...)
	if err != nil {
		t.Fatalf("submit: %v\nstderr: %s", err, stderr)
	}
	var out model.Outcome
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("decode outcome %q: %v", stdout, err)
	}
	return out
}

// article builds a long document whose words all carry the seed
func article(seed string) string {
	words := make([]string, 300)
	for i := range words {
		words[i] = fmt.Sprintf("%s%d", seed, i)
	}
	return strings.Join(words, " ")
}

func TestVersion(t *testing.T) {
	env := newTestEnv(t)
	stdout, _, err := env.run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if stdout != "curator v"+Version+"\n" {
		t.Errorf("version output = %q", stdout)
	}
}

func TestSubmit_Files(t *testing.T) {
	env := newTestEnv(t)

	out := env.submit(t, article("alpha"))
	if out.Status != model.StatusFiled {
		t.Fatalf("status = %s, want filed (%+v)", out.Status, out)
	}
	if out.ItemID == "" || out.Source != "text" {
		t.Errorf("outcome = %+v", out)
	}

	stdout, _, err := env.run(t, "item", "get", out.ItemID)
	if err != nil {
		t.Fatalf("item get: %v", err)
	}
	var item model.ClassifiedItem
	if err := json.Unmarshal([]byte(stdout), &item); err != nil {
		t.Fatalf("decode item: %v", err)
	}
	if item.ID != out.ItemID || item.Tier != out.Tier {
		t.Errorf("item = %s/%s, want %s/%s", item.ID, item.Tier, out.ItemID, out.Tier)
	}
}

func TestSubmit_Summary(t *testing.T) {
	env := newTestEnv(t)
	stdout, _, err := env.run(t, "submit", "--text", article("beta"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !strings.HasPrefix(stdout, "filed ") {
		t.Errorf("summary = %q, want filed prefix", stdout)
	}
}

func TestSubmit_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	text := article("gamma")

	first := env.submit(t, text)
	second := env.submit(t, text)
	if second.Status != model.StatusDuplicate {
		t.Fatalf("second status = %s, want duplicate", second.Status)
	}
	if second.DuplicateOf != first.ItemID {
		t.Errorf("duplicateOf = %s, want %s", second.DuplicateOf, first.ItemID)
	}

	stdout, _, err := env.run(t, "item", "duplicates", first.ItemID)
	if err != nil {
		t.Fatalf("item duplicates: %v", err)
	}
	var markers []model.DuplicateMarker
	if err := json.Unmarshal([]byte(stdout), &markers); err != nil {
		t.Fatalf("decode markers: %v", err)
	}
	if len(markers) != 1 {
		t.Errorf("markers = %d, want 1", len(markers))
	}
}

func TestSubmit_InsufficientContent(t *testing.T) {
	env := newTestEnv(t)
	stdout, _, err := env.run(t, "submit", "--text", "too short")
	if code := ExitCode(err); code != ExitInsufficientContent {
		t.Fatalf("exit code = %d, want %d (err %v)", code, ExitInsufficientContent, err)
	}
	if !strings.Contains(stdout, "rejected: InsufficientContent") {
		t.Errorf("summary = %q", stdout)
	}
}

func TestSubmit_FlagErrors(t *testing.T) {
	env := newTestEnv(t)

	if _, _, err := env.run(t, "submit"); ExitCode(err) != ExitFailure {
		t.Errorf("no source: exit code = %d, want %d", ExitCode(err), ExitFailure)
	}
	if _, _, err := env.run(t, "submit", "--text", "x", "--url", "https://example.com"); ExitCode(err) != ExitFailure {
		t.Errorf("two sources: exit code = %d, want %d", ExitCode(err), ExitFailure)
	}
	if _, _, err := env.run(t, "submit", "--text", article("delta"), "--published", "yesterday"); ExitCode(err) != ExitInvalidInput {
		t.Errorf("bad date: exit code = %d, want %d", ExitCode(err), ExitInvalidInput)
	}
}

func TestSubmit_File(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.dir, "doc.txt")
	if err := os.WriteFile(path, []byte(article("epsilon")), 0644); err != nil {
		t.Fatal(err)
	}

	jsonPath := filepath.Join(env.dir, "out", "outcome.json")
	if _, _, err := env.run(t, "submit", "--file", path, "--json", jsonPath); err != nil {
		t.Fatalf("submit: %v", err)
	}
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("read outcome: %v", err)
	}
	var out model.Outcome
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	if out.Status != model.StatusFiled {
		t.Errorf("status = %s, want filed", out.Status)
	}
}

func TestItem_NotFound(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.run(t, "item", "get", "missing")
	if code := ExitCode(err); code != ExitNotFound {
		t.Errorf("exit code = %d, want %d (err %v)", code, ExitNotFound, err)
	}
}

func TestItem_Curation(t *testing.T) {
	env := newTestEnv(t)
	a := env.submit(t, article("zeta"))
	b := env.submit(t, article("theta"))

	if _, _, err := env.run(t, "item", "relate", a.ItemID, "requires", b.ItemID); err != nil {
		t.Fatalf("relate: %v", err)
	}
	stdout, _, err := env.run(t, "item", "dependents", b.ItemID)
	if err != nil {
		t.Fatalf("dependents: %v", err)
	}
	if strings.TrimSpace(stdout) != a.ItemID {
		t.Errorf("dependents = %q, want %s", stdout, a.ItemID)
	}

	if _, _, err := env.run(t, "item", "relate", a.ItemID, "extends", b.ItemID); ExitCode(err) != ExitInvalidInput {
		t.Errorf("unknown kind: exit code = %d, want %d", ExitCode(err), ExitInvalidInput)
	}
	if _, _, err := env.run(t, "item", "unrelate", a.ItemID, "requires", b.ItemID); err != nil {
		t.Fatalf("unrelate: %v", err)
	}
	stdout, _, _ = env.run(t, "item", "dependents", b.ItemID)
	if strings.TrimSpace(stdout) != "" {
		t.Errorf("dependents after unrelate = %q", stdout)
	}

	stdout, _, err = env.run(t, "item", "validate", a.ItemID, "--by", "alice", "--at", "2026-05-01")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(stdout, "by alice") {
		t.Errorf("validate output = %q", stdout)
	}

	stdout, _, err = env.run(t, "item", "override", b.ItemID, "research")
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if stdout != b.ItemID+" is now research\n" {
		t.Errorf("override output = %q", stdout)
	}

	if _, _, err := env.run(t, "item", "retire", a.ItemID, b.ItemID); err != nil {
		t.Fatalf("retire: %v", err)
	}
	stdout, _, err = env.run(t, "item", "get", a.ItemID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var item model.ClassifiedItem
	if err := json.Unmarshal([]byte(stdout), &item); err != nil {
		t.Fatalf("decode item: %v", err)
	}
	if item.SupersededBy == nil || *item.SupersededBy != b.ItemID {
		t.Errorf("supersededBy = %v, want %s", item.SupersededBy, b.ItemID)
	}
	if item.ValidatedBy != "alice" {
		t.Errorf("validatedBy = %q, want alice", item.ValidatedBy)
	}
}

func TestItem_Query(t *testing.T) {
	env := newTestEnv(t)
	a := env.submit(t, article("iota"))
	b := env.submit(t, article("kappa"))

	var stored model.ClassifiedItem
	stdout, _, err := env.run(t, "item", "get", a.ItemID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := json.Unmarshal([]byte(stdout), &stored); err != nil {
		t.Fatalf("decode item: %v", err)
	}
	domain := stored.Taxonomy.Domain
	if domain == "" {
		t.Fatal("item has no domain")
	}

	query := func(args ...string) []string {
		t.Helper()
		stdout, _, err := env.run(t, append([]string{"item", "query", "domain", domain}, args...)...)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		var ids []string
		sc := bufio.NewScanner(strings.NewReader(stdout))
		for sc.Scan() {
			var item model.ClassifiedItem
			if err := json.Unmarshal(sc.Bytes(), &item); err != nil {
				t.Fatalf("decode line %q: %v", sc.Text(), err)
			}
			if item.Evaluation != nil {
				t.Error("query output should omit the evaluation")
			}
			ids = append(ids, item.ID)
		}
		return ids
	}

	all := query()
	if len(all) < 1 {
		t.Fatalf("query returned nothing for domain %s", domain)
	}
	if got := query("--limit", "1"); len(got) != 1 {
		t.Errorf("limited query returned %d items", len(got))
	}

	if _, _, err := env.run(t, "item", "retire", a.ItemID, b.ItemID); err != nil {
		t.Fatalf("retire: %v", err)
	}
	for _, id := range query() {
		if id == a.ItemID {
			t.Error("retired item should be excluded by default")
		}
	}
	found := false
	for _, id := range query("--include-retired") {
		found = found || id == a.ItemID
	}
	if !found {
		t.Error("--include-retired should list the retired item")
	}

	if _, _, err := env.run(t, "item", "query", "colour", "red"); ExitCode(err) != ExitInvalidInput {
		t.Errorf("unknown axis: exit code = %d, want %d", ExitCode(err), ExitInvalidInput)
	}
}

func TestBatch(t *testing.T) {
	env := newTestEnv(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URL string `json:"url"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		seed := strings.Trim(req.URL[strings.LastIndex(req.URL, "/"):], "/")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "content": article(seed)})
	}))
	defer srv.Close()

	inputs := filepath.Join(env.dir, "inputs.txt")
	lines := []string{
		"# intake",
		"https://docs.example.com/lambda",
		"https://docs.example.com/mu",
		"https://docs.example.com/lambda",
		`{"rawText": "short"}`,
	}
	if err := os.WriteFile(inputs, []byte(strings.Join(lines, "\n")), 0644); err != nil {
		t.Fatal(err)
	}

	results := filepath.Join(env.dir, "results.jsonl")
	_, stderr, err := env.run(t, "--extractor", srv.URL, "batch", inputs, "--out", results, "--concurrency", "2")
	if err != nil {
		t.Fatalf("batch: %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(stderr, "2 filed, 0 duplicate, 1 rejected") {
		t.Errorf("summary = %q", stderr)
	}

	data, err := os.ReadFile(results)
	if err != nil {
		t.Fatalf("read results: %v", err)
	}
	var statuses []model.Status
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var line struct {
			Outcome model.Outcome `json:"outcome"`
		}
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			t.Fatalf("decode %q: %v", sc.Text(), err)
		}
		statuses = append(statuses, line.Outcome.Status)
	}
	want := []model.Status{model.StatusFiled, model.StatusFiled, model.StatusRejected}
	if fmt.Sprint(statuses) != fmt.Sprint(want) {
		t.Errorf("statuses = %v, want %v", statuses, want)
	}
}

func TestBatch_MissingFile(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.run(t, "batch", filepath.Join(env.dir, "nope.txt"))
	if code := ExitCode(err); code != ExitInvalidInput {
		t.Errorf("exit code = %d, want %d", code, ExitInvalidInput)
	}
}

func TestConfig_InitAndShow(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.dir, "conf", "config.yaml")

	stdout, _, err := env.run(t, "config", "init", "--path", path)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(stdout, path) {
		t.Errorf("init output = %q", stdout)
	}
	if _, _, err := env.run(t, "config", "init", "--path", path); ExitCode(err) != ExitInvalidInput {
		t.Errorf("second init: exit code = %d, want %d", ExitCode(err), ExitInvalidInput)
	}
	if _, _, err := env.run(t, "config", "init", "--path", path, "--force"); err != nil {
		t.Errorf("init --force: %v", err)
	}

	stdout, stderr, err := env.run(t, "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(stderr, "Configuration file: "+path) {
		t.Errorf("show stderr = %q", stderr)
	}
	for _, want := range []string{"rubric:", "source-credibility", "threshold: 0.85", "driver: sqlite", env.registry} {
		if !strings.Contains(stdout, want) {
			t.Errorf("show output missing %q", want)
		}
	}
}

func TestConfig_Overrides(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.dir, "config.yaml")
	conf := `thresholds:
  analysis: 10
  practice: 20
concurrency:
  workers: 9
`
	if err := os.WriteFile(path, []byte(conf), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CURATOR_CONCURRENCY_WORKERS", "3")

	stdout, _, err := env.run(t, "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	for _, want := range []string{"analysis: 10", "practice: 20", "workers: 3", "total_weight: 25"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("show output missing %q:\n%s", want, stdout)
		}
	}
}

func TestConfig_Invalid(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.dir, "config.yaml")
	if err := os.WriteFile(path, []byte("thresholds:\n  analysis: 30\n  practice: 20\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, _, err := env.run(t, "--config", path, "submit", "--text", article("nu"))
	if code := ExitCode(err); code != ExitInvalidInput && code != ExitRubricMismatch {
		t.Errorf("exit code = %d, want a configuration error (err %v)", code, err)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain", errors.New("boom"), ExitFailure},
		{"insufficient", model.ErrInsufficientContent, ExitInsufficientContent},
		{"extraction failed", model.Errorf(model.ReasonExtractionFailed, "502"), ExitExtractionFailed},
		{"timeout", model.Errorf(model.ReasonExtractionTimeout, "slow"), ExitExtractionTimeout},
		{"invariant", model.Errorf(model.ReasonInvariantViolation, "x"), ExitInvariantViolation},
		{"downgrade", model.Errorf(model.ReasonTierDowngrade, "x"), ExitInvariantViolation},
		{"rubric", model.Errorf(model.ReasonRubricMismatch, "x"), ExitRubricMismatch},
		{"not found", model.Errorf(model.ReasonNotFound, "x"), ExitNotFound},
		{"canceled", model.Errorf(model.ReasonCanceled, "x"), ExitFailure},
		{"reported", reported(model.Errorf(model.ReasonInvalidInput, "x")), ExitInvalidInput},
		{"wrapped", fmt.Errorf("submit: %w", model.Errorf(model.ReasonNotFound, "x")), ExitNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2026-03-01", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), false},
		{" 2026-03-01 ", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), false},
		{"2026-03-01T10:30:00+02:00", time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC), false},
		{"March 1", time.Time{}, true},
		{"", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDate(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDate(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("parseDate(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
