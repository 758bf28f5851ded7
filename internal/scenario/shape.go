package scenario

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/cast"

	"github.com/amcassist/amcassist/internal/warehouse"
)

// group accumulates rows sharing one key value.
type group struct {
	key    string
	first  warehouse.Row
	sums   map[string]float64
	counts map[string]int
}

func (g *group) sum(column string) float64 {
	return g.sums[column]
}

func (g *group) mean(column string) float64 {
	if g.counts[column] == 0 {
		return 0
	}
	return g.sums[column] / float64(g.counts[column])
}

func (g *group) label(column string) any {
	return g.first[column]
}

// aggregate groups rows by keyColumn, summing sumColumns. Groups keep the
// order in which their key first appears.
func aggregate(rows []warehouse.Row, keyColumn string, sumColumns ...string) []*group {
	index := map[string]*group{}
	var ordered []*group
	for _, row := range rows {
		key := keyString(row[keyColumn])
		g, ok := index[key]
		if !ok {
			g = &group{key: key, first: row, sums: map[string]float64{}, counts: map[string]int{}}
			index[key] = g
			ordered = append(ordered, g)
		}
		for _, column := range sumColumns {
			value, err := cast.ToFloat64E(row[column])
			if err != nil || row[column] == nil {
				continue
			}
			g.sums[column] += value
			g.counts[column]++
		}
	}
	return ordered
}

func keyString(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case time.Time:
		return typed.Format(time.DateOnly)
	default:
		return cast.ToString(value)
	}
}

func sortGroupsDesc(groups []*group, column string) {
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].sum(column) > groups[j].sum(column)
	})
}

func top(groups []*group, n int) []*group {
	if n > 0 && len(groups) > n {
		return groups[:n]
	}
	return groups
}

// passthrough projects rows onto columns in order.
func passthrough(rows []warehouse.Row, columns []string) [][]any {
	out := make([][]any, 0, len(rows))
	for _, row := range rows {
		cells := make([]any, len(columns))
		for i, column := range columns {
			cells[i] = normalizeCell(row[column])
		}
		out = append(out, cells)
	}
	return out
}

func normalizeCell(value any) any {
	if t, ok := value.(time.Time); ok {
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
			return t.Format(time.DateOnly)
		}
		return t.UTC().Format(time.RFC3339)
	}
	return value
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func ratio(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}

func count(value float64) int64 {
	return int64(math.Round(value))
}

// bucketOrder sorts labels such as "0-1 days", "2-7 days", "31+ days" by
// their leading number, falling back to the label text.
func bucketOrder(labels []*group) {
	sort.SliceStable(labels, func(i, j int) bool {
		a, aok := leadingNumber(labels[i].key)
		b, bok := leadingNumber(labels[j].key)
		switch {
		case aok && bok && a != b:
			return a < b
		case aok != bok:
			return aok
		default:
			return labels[i].key < labels[j].key
		}
	})
}

func leadingNumber(label string) (int, bool) {
	label = strings.TrimSpace(label)
	end := 0
	for end < len(label) && unicode.IsDigit(rune(label[end])) {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(label[:end])
	return n, err == nil
}

func round4(value float64) float64 {
	return math.Round(value*10000) / 10000
}

func sortByKey(groups []*group) {
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].key < groups[j].key
	})
}

// sortByRank orders groups by a fixed rank; unranked keys go last.
func sortByRank(groups []*group, rank map[string]int) {
	sort.SliceStable(groups, func(i, j int) bool {
		ri, rj := rank[groups[i].key], rank[groups[j].key]
		if ri == 0 {
			ri = len(rank) + 1
		}
		if rj == 0 {
			rj = len(rank) + 1
		}
		return ri < rj
	})
}

func sortRowsDesc(rows [][]any, column int) {
	sort.SliceStable(rows, func(i, j int) bool {
		return cast.ToFloat64(rows[i][column]) > cast.ToFloat64(rows[j][column])
	})
}
