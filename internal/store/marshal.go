package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/galley/internal/domain"
)

// timeLayout is used for every timestamp column. Fixed-width nanoseconds keep
// lexical and chronological order identical.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// marshalJSON encodes v with HTML escaping disabled so Hebrew and other
// non-ASCII names are stored as written.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// marshalLines converts an order's line snapshots to JSON TEXT.
func marshalLines(lines []domain.OrderLine) (string, error) {
	if lines == nil {
		lines = []domain.OrderLine{}
	}
	data, err := marshalJSON(lines)
	if err != nil {
		return "", fmt.Errorf("marshal lines: %w", err)
	}
	return data, nil
}

func unmarshalLines(data string) ([]domain.OrderLine, error) {
	var lines []domain.OrderLine
	if err := json.Unmarshal([]byte(data), &lines); err != nil {
		return nil, fmt.Errorf("unmarshal lines: %w", err)
	}
	return lines, nil
}

// marshalDelta converts a modifier's ingredient delta to JSON TEXT.
func marshalDelta(delta []domain.Ingredient) (string, error) {
	if delta == nil {
		delta = []domain.Ingredient{}
	}
	data, err := marshalJSON(delta)
	if err != nil {
		return "", fmt.Errorf("marshal delta: %w", err)
	}
	return data, nil
}

func unmarshalDelta(data string) ([]domain.Ingredient, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var delta []domain.Ingredient
	if err := json.Unmarshal([]byte(data), &delta); err != nil {
		return nil, fmt.Errorf("unmarshal delta: %w", err)
	}
	return delta, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
