package domain

import (
	"fmt"
	"sort"
	"time"
)

// TimeWindow is a half-open interval [Start, End). All interval arithmetic in
// the scheduling core operates on this type; instants are compared with the
// half-open convention, so a window ending exactly where another begins does
// not overlap it.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func NewTimeWindow(start, end time.Time) (TimeWindow, error) {
	if !end.After(start) {
		return TimeWindow{}, &ValidationError{Field: "end", Reason: "must be after start"}
	}
	return TimeWindow{Start: start, End: end}, nil
}

func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

func (w TimeWindow) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

func (w TimeWindow) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// Overlaps reports whether the two half-open intervals share any instant.
// Back-to-back windows (w.End == o.Start) do not overlap.
func (w TimeWindow) Overlaps(o TimeWindow) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

// Contains reports whether o lies entirely within w.
func (w TimeWindow) Contains(o TimeWindow) bool {
	return !o.Start.Before(w.Start) && !o.End.After(w.End)
}

func (w TimeWindow) ContainsTime(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Expand pads the window by d on both sides. A zero duration returns the
// window unchanged, which keeps strictly adjacent bookings conflict-free.
func (w TimeWindow) Expand(d time.Duration) TimeWindow {
	if d <= 0 {
		return w
	}
	return TimeWindow{Start: w.Start.Add(-d), End: w.End.Add(d)}
}

// Intersect returns the overlapping portion of two windows, if any.
func (w TimeWindow) Intersect(o TimeWindow) (TimeWindow, bool) {
	start := w.Start
	if o.Start.After(start) {
		start = o.Start
	}
	end := w.End
	if o.End.Before(end) {
		end = o.End
	}
	if !end.After(start) {
		return TimeWindow{}, false
	}
	return TimeWindow{Start: start, End: end}, true
}

// Subtract removes o from w and returns the remaining pieces, at most two.
func (w TimeWindow) Subtract(o TimeWindow) []TimeWindow {
	if !w.Overlaps(o) {
		return []TimeWindow{w}
	}
	var out []TimeWindow
	if o.Start.After(w.Start) {
		out = append(out, TimeWindow{Start: w.Start, End: o.Start})
	}
	if o.End.Before(w.End) {
		out = append(out, TimeWindow{Start: o.End, End: w.End})
	}
	return out
}

// SubtractAll removes every busy window from every free window and returns
// the remaining free pieces in chronological order.
func SubtractAll(free, busy []TimeWindow) []TimeWindow {
	remaining := free
	for _, b := range busy {
		var next []TimeWindow
		for _, f := range remaining {
			next = append(next, f.Subtract(b)...)
		}
		remaining = next
	}
	sort.Slice(remaining, func(i, j int) bool {
		return remaining[i].Start.Before(remaining[j].Start)
	})
	return remaining
}

// MergeOverlapping unions overlapping or touching windows. The input is not
// modified; the result is sorted by start time.
func MergeOverlapping(windows []TimeWindow) []TimeWindow {
	if len(windows) <= 1 {
		return append([]TimeWindow(nil), windows...)
	}
	sorted := append([]TimeWindow(nil), windows...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := []TimeWindow{sorted[0]}
	for _, w := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !w.Start.After(last.End) {
			if w.End.After(last.End) {
				last.End = w.End
			}
			continue
		}
		merged = append(merged, w)
	}
	return merged
}

// Tile splits the window into consecutive slots of duration d anchored at the
// window start. A trailing partial slot is discarded.
func (w TimeWindow) Tile(d time.Duration) []TimeWindow {
	if d <= 0 {
		return nil
	}
	var slots []TimeWindow
	for s := w.Start; !s.Add(d).After(w.End); s = s.Add(d) {
		slots = append(slots, TimeWindow{Start: s, End: s.Add(d)})
	}
	return slots
}
