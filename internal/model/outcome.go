package model

import "time"

// Validation is an external human-validation signal
type Validation struct {
	By string     `json:"by" validate:"required"`
	At *time.Time `json:"at,omitempty"` // Defaults to processing time
}

// Input is one pipeline submission. Exactly one of URL or RawText is set.
type Input struct {
	URL        string      `json:"url,omitempty" validate:"omitempty,url"`
	RawText    string      `json:"rawText,omitempty"`
	Metadata   Metadata    `json:"metadata"`
	Validation *Validation `json:"validation,omitempty"`
	Strict     bool        `json:"strict,omitempty"` // Reject instead of downgrading provisional practice items
}

// Status is the pipeline outcome kind
type Status string

const (
	StatusFiled     Status = "filed"
	StatusDuplicate Status = "duplicate"
	StatusRejected  Status = "rejected"
)

// Outcome is what the pipeline reports back to its caller
type Outcome struct {
	Status            Status   `json:"status"`
	ItemID            string   `json:"itemId,omitempty"`
	Tier              Tier     `json:"tier,omitempty"`
	PendingValidation bool     `json:"pendingValidation,omitempty"`
	Score             float64  `json:"score,omitempty"`
	DuplicateOf       string   `json:"duplicateOf,omitempty"`
	Similarity        float64  `json:"similarity,omitempty"`
	Reason            Reason   `json:"reason,omitempty"`
	Message           string   `json:"message,omitempty"`
	Warnings          []string `json:"warnings,omitempty"`
	Source            string   `json:"source,omitempty"` // URL or "text"
}

// Rejected builds a rejection outcome from a classified error
func Rejected(err error) Outcome {
	return Outcome{
		Status:  StatusRejected,
		Reason:  ReasonOf(err),
		Message: MessageOf(err),
	}
}
