package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Config holds all curator configuration
type Config struct {
	Extractor    ExtractorConfig   `yaml:"extractor" mapstructure:"extractor"`
	Cache        CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Rubric       RubricConfig      `yaml:"rubric" mapstructure:"rubric"`
	Thresholds   ThresholdConfig   `yaml:"thresholds" mapstructure:"thresholds"`
	Dedupe       DedupeConfig      `yaml:"dedupe" mapstructure:"dedupe"`
	Taxonomy     TaxonomyConfig    `yaml:"taxonomy" mapstructure:"taxonomy"`
	Registry     RegistryConfig    `yaml:"registry" mapstructure:"registry"`
	Concurrency  ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimiting RateLimitConfig   `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Pipeline     PipelineConfig    `yaml:"pipeline" mapstructure:"pipeline"`
	Output       OutputConfig      `yaml:"output" mapstructure:"output"`
}

// ExtractorConfig configures the external content extractor client
type ExtractorConfig struct {
	Endpoint     string        `yaml:"endpoint" mapstructure:"endpoint" validate:"omitempty,url"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes" validate:"gt=0"`
	HTTPProxy    string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy   string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
}

// CacheConfig configures the extraction cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// RubricConfig defines the weighted scoring criteria
type RubricConfig struct {
	TotalWeight      float64           `yaml:"total_weight" mapstructure:"total_weight" validate:"gt=0"`
	MinContentLength int               `yaml:"min_content_length" mapstructure:"min_content_length" validate:"gte=0"`
	Criteria         []CriterionConfig `yaml:"criteria" mapstructure:"criteria" validate:"required,min=1,dive"`
}

// CriterionConfig is one rubric entry. Func names the scoring function and
// defaults to Name.
type CriterionConfig struct {
	Name   string  `yaml:"name" mapstructure:"name" validate:"required"`
	Weight float64 `yaml:"weight" mapstructure:"weight" validate:"gt=0"`
	Func   string  `yaml:"func,omitempty" mapstructure:"func"`
}

// FuncName returns the scoring function this criterion uses
func (c CriterionConfig) FuncName() string {
	if c.Func != "" {
		return c.Func
	}
	return c.Name
}

// ThresholdConfig holds tier lower bounds on the total score
type ThresholdConfig struct {
	Analysis float64 `yaml:"analysis" mapstructure:"analysis" validate:"gt=0"`
	Practice float64 `yaml:"practice" mapstructure:"practice" validate:"gt=0"`
}

// DedupeConfig configures near-duplicate detection
type DedupeConfig struct {
	Threshold   float64 `yaml:"threshold" mapstructure:"threshold" validate:"gt=0,lte=1"`
	ShingleSize int     `yaml:"shingle_size" mapstructure:"shingle_size" validate:"gte=1"`
}

// TaxonomyConfig holds the open vocabularies and the ordered axis rules
type TaxonomyConfig struct {
	Vocabulary map[string][]string `yaml:"vocabulary" mapstructure:"vocabulary"`
	Rules      []RuleConfig        `yaml:"rules" mapstructure:"rules" validate:"dive"`
}

// RuleConfig assigns Value to Axis when every condition in When holds
type RuleConfig struct {
	Axis  string          `yaml:"axis" mapstructure:"axis" validate:"required,oneof=domain riskProfile context maturity"`
	Value string          `yaml:"value" mapstructure:"value" validate:"required"`
	When  ConditionConfig `yaml:"when,omitempty" mapstructure:"when"`
}

// ConditionConfig is a conjunction of conditions. An empty condition always matches.
type ConditionConfig struct {
	Criteria       map[string]RangeConfig `yaml:"criteria,omitempty" mapstructure:"criteria" validate:"dive"`
	Keywords       []string               `yaml:"keywords,omitempty" mapstructure:"keywords"`
	MinKeywordHits int                    `yaml:"min_keyword_hits,omitempty" mapstructure:"min_keyword_hits" validate:"gte=0"`
	RequireAuthor  bool                   `yaml:"require_author,omitempty" mapstructure:"require_author"`
}

// RangeConfig bounds a criterion raw score. Zero leaves that side open.
type RangeConfig struct {
	Min int `yaml:"min,omitempty" mapstructure:"min" validate:"omitempty,min=1,max=5"`
	Max int `yaml:"max,omitempty" mapstructure:"max" validate:"omitempty,min=1,max=5"`
}

// RegistryConfig selects the registry backend
type RegistryConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver" validate:"oneof=memory sqlite"`
	Path   string `yaml:"path" mapstructure:"path" validate:"required_if=Driver sqlite"`
}

// ConcurrencyConfig configures batch parallelism
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers" validate:"gte=1"`
}

// RateLimitConfig throttles extractor calls per host. Zero disables.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"gte=0"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size" validate:"gte=0"`
}

// PipelineConfig holds orchestrator policy
type PipelineConfig struct {
	Strict bool `yaml:"strict" mapstructure:"strict"`
}

// OutputConfig controls logging output
type OutputConfig struct {
	Verbose  bool `yaml:"verbose" mapstructure:"verbose"`
	JSONLogs bool `yaml:"json_logs" mapstructure:"json_logs"`
}

// Validate checks struct-level constraints. Semantic checks (threshold
// monotonicity, weight sums, vocabulary membership) run when the scorer and
// classifier are built.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return Wrap(ReasonInvalidInput, formatValidationError(err), "invalid configuration")
	}
	return nil
}

// ValidateInput checks a pipeline submission
func ValidateInput(in Input) error {
	hasURL := strings.TrimSpace(in.URL) != ""
	hasText := in.RawText != ""
	if hasURL == hasText {
		return Errorf(ReasonInvalidInput, "exactly one of url or rawText must be provided")
	}
	if err := validate.Struct(in); err != nil {
		return Wrap(ReasonInvalidInput, formatValidationError(err), "invalid input")
	}
	return nil
}

func formatValidationError(err error) error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		msgs = append(msgs, formatFieldError(e))
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

func formatFieldError(e validator.FieldError) string {
	field := e.Namespace()
	switch e.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, e.Param())
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// DefaultConfig returns the reference configuration: the ten-criterion rubric
// (total weight 25), thresholds 15/23, dedupe at Jaccard 0.85 over 5-shingles.
func DefaultConfig() *Config {
	return &Config{
		Extractor: ExtractorConfig{
			Endpoint:     "http://localhost:3000/extract",
			Timeout:      30 * time.Second,
			UserAgent:    "Curator/0.1 (+https://github.com/ppiankov/curator)",
			MaxBodyBytes: 5_000_000,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       defaultCacheDir(),
			MemoryTTL: 1 * time.Hour,
			DiskTTL:   24 * time.Hour,
		},
		Rubric: DefaultRubric(),
		Thresholds: ThresholdConfig{
			Analysis: 15,
			Practice: 23,
		},
		Dedupe: DedupeConfig{
			Threshold:   0.85,
			ShingleSize: 5,
		},
		Taxonomy: DefaultTaxonomy(),
		Registry: RegistryConfig{
			Driver: "sqlite",
			Path:   defaultRegistryPath(),
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		RateLimiting: RateLimitConfig{
			RequestsPerSecond: 2,
			BurstSize:         5,
		},
	}
}

// DefaultRubric returns the ten reference criteria at weight 2.5 each
func DefaultRubric() RubricConfig {
	names := []string{
		"source-credibility",
		"evidence-quality",
		"risk-assessment",
		"vendor-bias",
		"technical-depth",
		"reproducibility",
		"recency",
		"actionability",
		"scope-clarity",
		"structure",
	}
	criteria := make([]CriterionConfig, len(names))
	for i, n := range names {
		criteria[i] = CriterionConfig{Name: n, Weight: 2.5}
	}
	return RubricConfig{
		TotalWeight:      25,
		MinContentLength: 1000,
		Criteria:         criteria,
	}
}

// DefaultTaxonomy returns the reference vocabulary and rules. Domain and risk
// profile end in explicit catch-all rules; context and maturity do not, so
// those axes may stay unknown.
func DefaultTaxonomy() TaxonomyConfig {
	return TaxonomyConfig{
		Vocabulary: map[string][]string{
			"domain":      {"security", "infrastructure", "data", "ml", "general"},
			"riskProfile": {"low", "moderate", "high"},
			"context":     {"enterprise", "startup", "open-source", "research"},
			"maturity":    {"emerging", "established", "declining"},
		},
		Rules: []RuleConfig{
			{Axis: "riskProfile", Value: "high", When: ConditionConfig{Criteria: map[string]RangeConfig{"vendor-bias": {Max: 2}}}},
			{Axis: "riskProfile", Value: "high", When: ConditionConfig{Criteria: map[string]RangeConfig{"risk-assessment": {Max: 1}}}},
			{Axis: "riskProfile", Value: "low", When: ConditionConfig{Criteria: map[string]RangeConfig{
				"risk-assessment":  {Min: 4},
				"evidence-quality": {Min: 4},
			}}},
			{Axis: "riskProfile", Value: "moderate"},

			{Axis: "domain", Value: "security", When: ConditionConfig{MinKeywordHits: 2, Keywords: []string{
				"vulnerability", "exploit", "threat", "cve", "authentication", "encryption", "attack", "malware",
			}}},
			{Axis: "domain", Value: "ml", When: ConditionConfig{MinKeywordHits: 2, Keywords: []string{
				"machine learning", "training", "inference", "llm", "embedding", "neural", "model weights",
			}}},
			{Axis: "domain", Value: "data", When: ConditionConfig{MinKeywordHits: 2, Keywords: []string{
				"database", "schema", "warehouse", "query", "etl", "data pipeline", "replication",
			}}},
			{Axis: "domain", Value: "infrastructure", When: ConditionConfig{MinKeywordHits: 2, Keywords: []string{
				"kubernetes", "terraform", "deployment", "cluster", "network", "cloud", "latency", "load balancer",
			}}},
			{Axis: "domain", Value: "general"},

			{Axis: "context", Value: "enterprise", When: ConditionConfig{MinKeywordHits: 1, Keywords: []string{
				"enterprise", "compliance", "governance", "soc 2", "audit",
			}}},
			{Axis: "context", Value: "startup", When: ConditionConfig{MinKeywordHits: 1, Keywords: []string{
				"startup", "mvp", "small team", "seed stage",
			}}},
			{Axis: "context", Value: "open-source", When: ConditionConfig{MinKeywordHits: 1, Keywords: []string{
				"open source", "github", "contributors", "maintainers",
			}}},
			{Axis: "context", Value: "research", When: ConditionConfig{MinKeywordHits: 2, Keywords: []string{
				"paper", "study", "experiment", "hypothesis", "arxiv",
			}}},

			{Axis: "maturity", Value: "declining", When: ConditionConfig{Criteria: map[string]RangeConfig{"recency": {Max: 1}}}},
			{Axis: "maturity", Value: "established", When: ConditionConfig{Criteria: map[string]RangeConfig{
				"evidence-quality": {Min: 4},
				"reproducibility":  {Min: 3},
			}}},
			{Axis: "maturity", Value: "emerging", When: ConditionConfig{Criteria: map[string]RangeConfig{
				"recency":          {Min: 4},
				"evidence-quality": {Max: 3},
			}}},
		},
	}
}

func defaultCacheDir() string {
	return homePath(".curator", "cache")
}

func defaultRegistryPath() string {
	return homePath(".curator", "registry.db")
}

func homePath(parts ...string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(append([]string{home}, parts...)...)
}
