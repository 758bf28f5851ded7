// Package scope turns a chat's locked tenant selection and date window into
// concrete warehouse filters.
package scope

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/amcassist/amcassist/internal/observability"
	"github.com/amcassist/amcassist/internal/warehouse"
)

var ErrNoDirectory = errors.New("tenant directory is not configured")

type Mode string

const (
	ModeGlobal   Mode = "global"
	ModeInstance Mode = "instance"
)

type Scope struct {
	Mode       Mode     `json:"mode"`
	TenantName string   `json:"tenant_name,omitempty"`
	TenantIDs  []int64  `json:"tenant_ids,omitempty"`
	Ignored    []string `json:"ignored,omitempty"`
}

func Global() Scope {
	return Scope{Mode: ModeGlobal}
}

func (s Scope) IsGlobal() bool {
	return s.Mode != ModeInstance
}

// Describe renders the scope as a plain-language constraint.
func (s Scope) Describe() string {
	if s.IsGlobal() {
		return "all advertisers (global context)"
	}
	return fmt.Sprintf("advertiser %q only", s.TenantName)
}

type DateWindow struct {
	Start time.Time
	End   time.Time
}

// NewDateWindow truncates both bounds to calendar dates in UTC.
func NewDateWindow(start, end time.Time) DateWindow {
	return DateWindow{Start: toDate(start), End: toDate(end)}
}

// ParseDateWindow accepts YYYY-MM-DD bounds; empty strings leave a bound
// unset.
func ParseDateWindow(start, end string) (DateWindow, error) {
	var w DateWindow
	if strings.TrimSpace(start) != "" {
		parsed, err := time.Parse(time.DateOnly, strings.TrimSpace(start))
		if err != nil {
			return DateWindow{}, fmt.Errorf("invalid start date %q: %w", start, err)
		}
		w.Start = parsed
	}
	if strings.TrimSpace(end) != "" {
		parsed, err := time.Parse(time.DateOnly, strings.TrimSpace(end))
		if err != nil {
			return DateWindow{}, fmt.Errorf("invalid end date %q: %w", end, err)
		}
		w.End = parsed
	}
	return w, nil
}

// LastDays is the window of n calendar days ending on now's date.
func LastDays(now time.Time, n int) DateWindow {
	end := toDate(now)
	return DateWindow{Start: end.AddDate(0, 0, -(n - 1)), End: end}
}

// Bounded reports whether both bounds are set.
func (w DateWindow) Bounded() bool {
	return !w.Start.IsZero() && !w.End.IsZero()
}

// Inverted reports a bounded window whose start falls after its end.
func (w DateWindow) Inverted() bool {
	return w.Bounded() && w.Start.After(w.End)
}

// Constrains reports whether the window produces any predicate.
func (w DateWindow) Constrains() bool {
	return w.Bounded() && !w.Inverted()
}

func (w DateWindow) Describe() string {
	if !w.Constrains() {
		return "all available dates"
	}
	return w.Start.Format(time.DateOnly) + " to " + w.End.Format(time.DateOnly)
}

type windowJSON struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

func (w DateWindow) MarshalJSON() ([]byte, error) {
	var out windowJSON
	if !w.Start.IsZero() {
		out.Start = w.Start.Format(time.DateOnly)
	}
	if !w.End.IsZero() {
		out.End = w.End.Format(time.DateOnly)
	}
	return json.Marshal(out)
}

func (w *DateWindow) UnmarshalJSON(data []byte) error {
	var in windowJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	parsed, err := ParseDateWindow(in.Start, in.End)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// OverlapFilters keeps rows whose [startCol, endCol] range intersects the
// window. Unbounded and inverted windows yield no filters.
func OverlapFilters(startCol, endCol string, w DateWindow) []warehouse.Filter {
	if !w.Constrains() {
		return nil
	}
	return []warehouse.Filter{
		{Column: startCol, Operator: warehouse.OpLte, Value: w.End},
		{Column: endCol, Operator: warehouse.OpGte, Value: w.Start},
	}
}

// RangeFilters keeps rows whose dateCol falls inside the window.
func RangeFilters(dateCol string, w DateWindow) []warehouse.Filter {
	if !w.Constrains() {
		return nil
	}
	return []warehouse.Filter{
		{Column: dateCol, Operator: warehouse.OpGte, Value: w.Start},
		{Column: dateCol, Operator: warehouse.OpLte, Value: w.End},
	}
}

// TenantFilters restricts column to the scope's tenant ids. An instance
// scope with no ids matches no rows.
func TenantFilters(column string, s Scope) []warehouse.Filter {
	if s.IsGlobal() {
		return nil
	}
	return []warehouse.Filter{MatchAny(column, s.TenantIDs)}
}

// MatchAny builds an "in" filter; an empty list matches nothing.
func MatchAny(column string, ids []int64) warehouse.Filter {
	return warehouse.Filter{Column: column, Operator: warehouse.OpIn, Value: append([]int64{}, ids...)}
}

type TenantDirectory interface {
	InstanceIDsByName(ctx context.Context, name string) ([]int64, error)
	AdvertiserIDsByInstance(ctx context.Context, instanceIDs []int64) ([]int64, error)
	ListTenants(ctx context.Context) ([]warehouse.Tenant, error)
}

type Resolver struct {
	directory TenantDirectory
	logger    *slog.Logger
}

func NewResolver(directory TenantDirectory, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	return &Resolver{directory: directory, logger: logger}
}

// Resolve maps selected tenant names to a scope. Only the first name is
// honored; the rest are reported in Scope.Ignored. A failed lookup returns
// a scope that matches nothing together with the error.
func (r *Resolver) Resolve(ctx context.Context, names []string) (Scope, error) {
	var selected []string
	for _, name := range names {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			selected = append(selected, trimmed)
		}
	}
	if len(selected) == 0 {
		return Global(), nil
	}

	s := Scope{Mode: ModeInstance, TenantName: selected[0], TenantIDs: []int64{}}
	if len(selected) > 1 {
		s.Ignored = append([]string(nil), selected[1:]...)
		r.logger.WarnContext(ctx, "multiple tenants selected; only the first is applied",
			observability.TraceAttr(ctx),
			slog.String("tenant", s.TenantName),
			slog.Any("ignored", s.Ignored),
		)
	}

	if r.directory == nil {
		return s, ErrNoDirectory
	}
	ids, err := r.directory.InstanceIDsByName(ctx, s.TenantName)
	if err != nil {
		return s, fmt.Errorf("resolve tenant %q: %w", s.TenantName, err)
	}
	s.TenantIDs = append(s.TenantIDs, ids...)
	return s, nil
}

func toDate(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
