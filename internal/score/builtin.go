package score

import (
	"fmt"
	"math"
)

// Builtin returns the scoring functions of the reference rubric. Each is a
// deterministic text heuristic; higher is better.
func Builtin() Funcs {
	return Funcs{
		"source-credibility": sourceCredibility,
		"evidence-quality":   evidenceQuality,
		"risk-assessment":    riskAssessment,
		"vendor-bias":        vendorBias,
		"technical-depth":    technicalDepth,
		"reproducibility":    reproducibility,
		"recency":            recency,
		"actionability":      actionability,
		"scope-clarity":      scopeClarity,
		"structure":          structure,
	}
}

var (
	credibilityTerms  = []string{"according to", "peer-reviewed", "published in", "cited", "references", "source", "survey of"}
	evidenceTerms     = []string{"data", "measured", "benchmark", "results", "study", "sample", "observed", "percent", "median"}
	riskTerms         = []string{"risk", "risks", "trade-off", "trade-offs", "limitation", "limitations", "caveat", "failure mode", "downside", "mitigation", "drawback"}
	promotionalTerms  = []string{"best-in-class", "revolutionary", "industry-leading", "buy now", "sign up", "our product", "contact sales", "free trial", "game-changing", "seamless", "world-class", "unlock"}
	technicalTerms    = []string{"latency", "throughput", "algorithm", "architecture", "implementation", "configuration", "api", "protocol", "concurrency", "memory", "cache", "schema"}
	reproductionTerms = []string{"step", "install", "run", "version", "example", "command", "repository", "script", "reproduce"}
	actionTerms       = []string{"should", "recommend", "how to", "checklist", "best practice", "avoid", "prefer", "consider", "start by"}
	scopeTerms        = []string{"this article", "this post", "we cover", "in scope", "out of scope", "assumes", "prerequisite", "applies to", "tl;dr", "summary", "overview"}
)

// bucket maps v onto 1..5 using four ascending cutoffs
func bucket(v float64, cutoffs [4]float64) int {
	score := 1
	for _, c := range cutoffs {
		if v >= c {
			score++
		}
	}
	return score
}

func clamp(v int) int {
	if v < 1 {
		return 1
	}
	if v > 5 {
		return 5
	}
	return v
}

func sourceCredibility(in Input) (int, string) {
	points := 1
	if in.Metadata.AuthorInfo != "" {
		points++
	}
	if in.Metadata.PublicationDate != nil {
		points++
	}
	refs := in.Stats.Citations + in.Stats.Links
	if refs >= 3 {
		points++
	}
	if in.Stats.Count(credibilityTerms...) >= 2 {
		points++
	}
	return clamp(points), fmt.Sprintf("author=%t dated=%t references=%d", in.Metadata.AuthorInfo != "", in.Metadata.PublicationDate != nil, refs)
}

func evidenceQuality(in Input) (int, string) {
	density := in.Stats.Per1000(in.Stats.Numbers + in.Stats.Citations + 2*in.Stats.Count(evidenceTerms...))
	return bucket(density, [4]float64{5, 15, 30, 50}), fmt.Sprintf("%.1f evidence markers per 1000 words", density)
}

func riskAssessment(in Input) (int, string) {
	density := in.Stats.Per1000(in.Stats.Count(riskTerms...))
	return bucket(density, [4]float64{0.5, 2, 4, 7}), fmt.Sprintf("%.1f risk terms per 1000 words", density)
}

// vendorBias is inverted: heavy promotional language scores low
func vendorBias(in Input) (int, string) {
	density := in.Stats.Per1000(in.Stats.Count(promotionalTerms...))
	return 6 - bucket(density, [4]float64{0.5, 2, 4, 8}), fmt.Sprintf("%.1f promotional terms per 1000 words", density)
}

func technicalDepth(in Input) (int, string) {
	density := in.Stats.Per1000(in.Stats.Count(technicalTerms...) + 5*in.Stats.CodeBlocks)
	return bucket(density, [4]float64{2, 6, 12, 20}), fmt.Sprintf("%.1f technical markers per 1000 words", density)
}

func reproducibility(in Input) (int, string) {
	signals := in.Stats.CodeBlocks*2 + in.Stats.Numbered + in.Stats.Count(reproductionTerms...)
	return bucket(float64(signals), [4]float64{2, 5, 10, 18}), fmt.Sprintf("%d reproduction signals", signals)
}

// recency scores publication age relative to capture time; undated content is neutral
func recency(in Input) (int, string) {
	if in.Metadata.PublicationDate == nil || in.CapturedAt.IsZero() {
		return 3, "no publication date"
	}
	years := in.CapturedAt.Sub(*in.Metadata.PublicationDate).Hours() / (24 * 365)
	years = math.Max(years, 0)
	var score int
	switch {
	case years < 1:
		score = 5
	case years < 2:
		score = 4
	case years < 4:
		score = 3
	case years < 7:
		score = 2
	default:
		score = 1
	}
	return score, fmt.Sprintf("published %.1f years before capture", years)
}

func actionability(in Input) (int, string) {
	signals := in.Stats.Count(actionTerms...) + in.Stats.ListItems/2
	return bucket(float64(signals), [4]float64{2, 5, 10, 16}), fmt.Sprintf("%d action signals", signals)
}

func scopeClarity(in Input) (int, string) {
	signals := in.Stats.Count(scopeTerms...)
	if in.Stats.Headings > 0 {
		signals++
	}
	return bucket(float64(signals), [4]float64{1, 2, 4, 6}), fmt.Sprintf("%d scope statements", signals)
}

func structure(in Input) (int, string) {
	signals := in.Stats.Headings*2 + in.Stats.ListItems/3 + in.Stats.Paragraphs/4
	return bucket(float64(signals), [4]float64{2, 5, 9, 14}), fmt.Sprintf("%d headings, %d list items, %d paragraphs", in.Stats.Headings, in.Stats.ListItems, in.Stats.Paragraphs)
}
