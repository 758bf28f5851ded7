// Package chart describes the default visualization attached to a result.
package chart

import "strings"

type Type string

const (
	Bar  Type = "bar"
	Line Type = "line"
	Pie  Type = "pie"
	Area Type = "area"
)

func (t Type) Valid() bool {
	switch t {
	case Bar, Line, Pie, Area:
		return true
	default:
		return false
	}
}

type Hint struct {
	Type Type   `json:"type"`
	X    string `json:"x"`
	Y    string `json:"y"`
}

// New returns nil when the hint is incomplete or of an unknown type.
func New(chartType, x, y string) *Hint {
	hint := Hint{Type: Type(strings.ToLower(strings.TrimSpace(chartType))), X: strings.TrimSpace(x), Y: strings.TrimSpace(y)}
	if !hint.Type.Valid() || hint.X == "" || hint.Y == "" {
		return nil
	}
	return &hint
}

// Fits reports whether both axes name columns in the given set.
func (h *Hint) Fits(columns []string) bool {
	if h == nil {
		return false
	}
	var hasX, hasY bool
	for _, column := range columns {
		if column == h.X {
			hasX = true
		}
		if column == h.Y {
			hasY = true
		}
	}
	return hasX && hasY
}

func (h *Hint) Clone() *Hint {
	if h == nil {
		return nil
	}
	out := *h
	return &out
}
