package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"
)

// SourceDocument is the raw intake unit. It is built once at extraction time and never mutated.
type SourceDocument struct {
	ID              string     `json:"id"`                        // Content hash of the canonicalized text
	URL             string     `json:"url,omitempty"`             // Origin locator, empty for raw text submissions
	RawText         string     `json:"rawText"`                   // Extracted content
	CapturedAt      time.Time  `json:"capturedAt"`                // When the text was captured
	AuthorInfo      string     `json:"authorInfo,omitempty"`      // Unverified provenance
	PublicationDate *time.Time `json:"publicationDate,omitempty"` // Unverified provenance
}

// Metadata is the caller-supplied provenance for a submission
type Metadata struct {
	AuthorInfo      string     `json:"authorInfo,omitempty" yaml:"author_info,omitempty"`
	PublicationDate *time.Time `json:"publicationDate,omitempty" yaml:"publication_date,omitempty"`
}

// NewSourceDocument captures text into an immutable document with a content-derived id
func NewSourceDocument(url, rawText string, meta Metadata, capturedAt time.Time) SourceDocument {
	return SourceDocument{
		ID:              DocumentID(rawText),
		URL:             url,
		RawText:         rawText,
		CapturedAt:      capturedAt.UTC(),
		AuthorInfo:      meta.AuthorInfo,
		PublicationDate: meta.PublicationDate,
	}
}

// Metadata returns the provenance fields of the document
func (d SourceDocument) Metadata() Metadata {
	return Metadata{AuthorInfo: d.AuthorInfo, PublicationDate: d.PublicationDate}
}

// DocumentID derives a stable id from text. Case, punctuation and whitespace
// differences do not change the id. Text with no letters or digits is hashed
// as written, with whitespace collapsed.
func DocumentID(rawText string) string {
	canonical := CanonicalText(rawText)
	if canonical == "" {
		canonical = "\x00" + strings.Join(strings.Fields(rawText), " ")
	}
	hash := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(hash[:16])
}

// CanonicalText lower-cases text, drops punctuation and collapses whitespace
func CanonicalText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			space = true
		}
	}
	return b.String()
}
