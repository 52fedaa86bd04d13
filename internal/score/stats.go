package score

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/ppiankov/curator/internal/model"
)

var (
	citationRe = regexp.MustCompile(`\[\d+\]|\(\d{4}\)|doi:|arxiv:`)
	numberedRe = regexp.MustCompile(`^\d+[.)]\s`)
)

// Stats holds structural counts of a text, computed once per evaluation
type Stats struct {
	Words      int
	Paragraphs int
	Headings   int
	ListItems  int
	Numbered   int // Numbered list items
	CodeBlocks int
	Links      int
	Numbers    int // Words containing a digit
	Citations  int

	canonical string // " " + canonical text + " "
}

// Analyze computes Stats for text
func Analyze(text string) Stats {
	canonical := model.CanonicalText(text)
	st := Stats{
		canonical:  " " + canonical + " ",
		Links:      strings.Count(text, "http://") + strings.Count(text, "https://"),
		Citations:  len(citationRe.FindAllStringIndex(strings.ToLower(text), -1)),
		CodeBlocks: strings.Count(text, "```") / 2,
	}

	for _, w := range strings.Fields(canonical) {
		st.Words++
		if strings.IndexFunc(w, unicode.IsDigit) >= 0 {
			st.Numbers++
		}
	}

	blank := true
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			blank = true
			continue
		}
		if blank {
			st.Paragraphs++
			blank = false
		}
		switch {
		case strings.HasPrefix(trimmed, "#"):
			st.Headings++
		case strings.HasPrefix(trimmed, "- "), strings.HasPrefix(trimmed, "* "), strings.HasPrefix(trimmed, "+ "):
			st.ListItems++
		case numberedRe.MatchString(trimmed):
			st.ListItems++
			st.Numbered++
		}
	}

	return st
}

// Count returns the total occurrences of terms as whole words or phrases.
// Terms are canonicalized the same way as the text.
func (s Stats) Count(terms ...string) int {
	n := 0
	for _, t := range terms {
		ct := model.CanonicalText(t)
		if ct == "" {
			continue
		}
		n += strings.Count(s.canonical, " "+ct+" ")
	}
	return n
}

// Per1000 scales a count to occurrences per thousand words
func (s Stats) Per1000(n int) float64 {
	if s.Words == 0 {
		return 0
	}
	return float64(n) * 1000 / float64(s.Words)
}
