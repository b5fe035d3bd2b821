// Package period generates the ISO-week period windows used as statistical
// baselines and current observations. Every calculation here is a pure
// function of the supplied "now"; nothing reads the wall clock.
//
// All week arithmetic uses ISO-8601 weeks (Monday to Sunday, week 1 holds the
// year's first Thursday). Labels are formatted YYYYWww.
package period

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/matthewbaird/outbreak/internal/types"
)

// Period is an ISO week label ("2024W07") or a named relative period.
type Period string

// Last7Days is the relative period queried by the case-based algorithm.
const Last7Days Period = "LAST_7_DAYS"

// Relative reports whether p is a named relative period rather than a week.
func (p Period) Relative() bool {
	return !strings.Contains(string(p), "W") || strings.Contains(string(p), "_")
}

func (p Period) String() string { return string(p) }

// Of returns the ISO week containing t.
func Of(t time.Time) Period {
	y, w := t.ISOWeek()
	return Period(fmt.Sprintf("%04dW%02d", y, w))
}

// Parse splits a week label into its ISO year and week.
func Parse(p Period) (year, week int, err error) {
	y, w, ok := strings.Cut(string(p), "W")
	if !ok {
		return 0, 0, fmt.Errorf("period %q: not a week", p)
	}
	year, err = strconv.Atoi(y)
	if err != nil {
		return 0, 0, fmt.Errorf("period %q: year: %w", p, err)
	}
	week, err = strconv.Atoi(w)
	if err != nil {
		return 0, 0, fmt.Errorf("period %q: week: %w", p, err)
	}
	if week < 1 || week > 53 {
		return 0, 0, fmt.Errorf("period %q: week out of range", p)
	}
	return year, week, nil
}

// Bounds returns the Monday and Sunday of the week p.
func Bounds(p Period) (monday, sunday types.Date, err error) {
	year, week, err := Parse(p)
	if err != nil {
		return types.Date{}, types.Date{}, err
	}
	// Jan 4 always falls in ISO week 1.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	start := jan4.AddDate(0, 0, -offset+(week-1)*7)
	monday = types.DateOf(start)
	return monday, monday.AddDays(6), nil
}

// Compare orders two week labels by (year, week). Labels that fail to parse
// sort before valid ones.
func Compare(a, b Period) int {
	ay, aw, aerr := Parse(a)
	by, bw, berr := Parse(b)
	switch {
	case aerr != nil && berr != nil:
		return strings.Compare(string(a), string(b))
	case aerr != nil:
		return -1
	case berr != nil:
		return 1
	}
	if ay != by {
		return cmpInt(ay, by)
	}
	return cmpInt(aw, bw)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Windows returns the ordered periods queried for an algorithm.
//
//   - NON_SEASONAL: m+1 consecutive weeks walking back from now; index 0 is
//     the current week, indexes 1..m the baseline.
//   - SEASONAL: the current cycle's m weeks, then for each of n prior years
//     the m weeks ending at the same calendar point that many years earlier.
//     Blocks are year-major and most-recent-first.
//   - CASE_BASED: the single relative period LAST_7_DAYS.
func Windows(now time.Time, m, n int, alg types.Algorithm) []Period {
	switch alg {
	case types.AlgorithmNonSeasonal:
		return weeksBack(now, m+1)
	case types.AlgorithmSeasonal:
		periods := weeksBack(now, m)
		for y := 0; y < n; y++ {
			periods = append(periods, weeksBack(now.AddDate(0, -12*(y+1), 0), m)...)
		}
		return periods
	default:
		return []Period{Last7Days}
	}
}

func weeksBack(from time.Time, count int) []Period {
	if count <= 0 {
		return nil
	}
	out := make([]Period, 0, count)
	for w := 0; w < count; w++ {
		out = append(out, Of(from.AddDate(0, 0, -7*w)))
	}
	return out
}

// Current splits a window into its current block and baseline block.
func Current(periods []Period, m int, alg types.Algorithm) (current, baseline []Period) {
	size := m
	if alg == types.AlgorithmNonSeasonal {
		size = 1
	}
	if size > len(periods) {
		size = len(periods)
	}
	return periods[:size], periods[size:]
}

// Center returns the index of the middle week of an m-week current block.
// Seasonal observations are attributed to this week.
func Center(m int) int {
	if m <= 1 {
		return 0
	}
	return (m - 1) / 2
}

// Strings converts periods to their labels.
func Strings(ps []Period) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}

// Join renders periods as a DHIS2 dimension list.
func Join(ps []Period) string {
	return strings.Join(Strings(ps), ";")
}
