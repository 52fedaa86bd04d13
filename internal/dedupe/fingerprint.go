package dedupe

import (
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/ppiankov/curator/internal/model"
)

// DefaultShingleSize is the word n-gram length used for fingerprints
const DefaultShingleSize = 5

// Normalize lower-cases text, strips punctuation and collapses whitespace
func Normalize(text string) string {
	return model.CanonicalText(text)
}

// Shingles returns the sorted, unique xxhash values of every k-word window of
// the normalized text. Text with nothing left after normalization, such as
// symbols only, is shingled as written. Text shorter than k words yields a
// single shingle of the whole text, and blank text yields none.
func Shingles(text string, k int) []uint64 {
	if k < 1 {
		k = DefaultShingleSize
	}
	words := strings.Fields(Normalize(text))
	if len(words) == 0 {
		words = strings.Fields(text)
	}
	if len(words) == 0 {
		return nil
	}
	if len(words) < k {
		return []uint64{xxhash.Sum64String(strings.Join(words, " "))}
	}

	out := make([]uint64, 0, len(words)-k+1)
	for i := 0; i+k <= len(words); i++ {
		out = append(out, xxhash.Sum64String(strings.Join(words[i:i+k], " ")))
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Jaccard returns |a ∩ b| / |a ∪ b| for sorted, unique sets. Two empty sets
// have similarity 0.
func Jaccard(a, b []uint64) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	var inter int
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			inter++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// NewFingerprint builds the stored fingerprint for an item
func NewFingerprint(itemID string, doc model.SourceDocument, k int) model.Fingerprint {
	return model.Fingerprint{
		ItemID:     itemID,
		Shingles:   Shingles(doc.RawText, k),
		CapturedAt: doc.CapturedAt,
	}
}
