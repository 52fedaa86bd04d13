package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/curator/internal/model"
)

// RenderJSON writes the outcome as indented JSON
func RenderJSON(w io.Writer, out model.Outcome) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	return nil
}

// WriteJSON writes the outcome to path, creating parent directories
func WriteJSON(path string, out model.Outcome) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := RenderJSON(f, out); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Summary renders the outcome as one line for a terminal
func Summary(out model.Outcome) string {
	var b strings.Builder
	switch out.Status {
	case model.StatusFiled:
		fmt.Fprintf(&b, "filed %s as %s (score %.2f)", out.ItemID, out.Tier, out.Score)
		if out.PendingValidation {
			b.WriteString(", pending validation")
		}
	case model.StatusDuplicate:
		fmt.Fprintf(&b, "duplicate of %s (similarity %.2f)", out.DuplicateOf, out.Similarity)
	default:
		fmt.Fprintf(&b, "rejected: %s", out.Reason)
		if out.Message != "" {
			fmt.Fprintf(&b, ": %s", out.Message)
		}
	}
	if n := len(out.Warnings); n > 0 {
		fmt.Fprintf(&b, " [%d warning", n)
		if n > 1 {
			b.WriteString("s")
		}
		b.WriteString("]")
	}
	return b.String()
}
