package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustWindow(t *testing.T, start, end string) TimeWindow {
	t.Helper()
	s, err := time.Parse(time.RFC3339, start)
	require.NoError(t, err)
	e, err := time.Parse(time.RFC3339, end)
	require.NoError(t, err)
	return TimeWindow{Start: s, End: e}
}

func TestOverlaps_BackToBackWindowsDoNotOverlap(t *testing.T) {
	a := mustWindow(t, "2026-09-07T10:00:00Z", "2026-09-07T11:00:00Z")
	b := mustWindow(t, "2026-09-07T11:00:00Z", "2026-09-07T12:00:00Z")

	assert.False(t, a.Overlaps(b))
	assert.False(t, b.Overlaps(a))
}

func TestOverlaps_PartialOverlap(t *testing.T) {
	a := mustWindow(t, "2026-09-07T10:00:00Z", "2026-09-07T11:00:00Z")
	b := mustWindow(t, "2026-09-07T10:30:00Z", "2026-09-07T11:30:00Z")

	assert.True(t, a.Overlaps(b))
	assert.True(t, b.Overlaps(a))
}

func TestContains_EqualWindowContainsItself(t *testing.T) {
	w := mustWindow(t, "2026-09-07T09:00:00Z", "2026-09-07T17:00:00Z")
	assert.True(t, w.Contains(w))
	assert.True(t, w.Contains(mustWindow(t, "2026-09-07T09:00:00Z", "2026-09-07T10:00:00Z")))
	assert.False(t, w.Contains(mustWindow(t, "2026-09-07T08:30:00Z", "2026-09-07T09:30:00Z")))
}

func TestExpand_ZeroBufferReturnsUnchanged(t *testing.T) {
	w := mustWindow(t, "2026-09-07T10:00:00Z", "2026-09-07T11:00:00Z")
	assert.Equal(t, w, w.Expand(0))

	expanded := w.Expand(15 * time.Minute)
	assert.Equal(t, mustWindow(t, "2026-09-07T09:45:00Z", "2026-09-07T11:15:00Z"), expanded)
}

func TestSubtract_MiddleSplitsIntoTwo(t *testing.T) {
	day := mustWindow(t, "2026-09-07T09:00:00Z", "2026-09-07T17:00:00Z")
	busy := mustWindow(t, "2026-09-07T12:00:00Z", "2026-09-07T13:00:00Z")

	got := day.Subtract(busy)
	require.Len(t, got, 2)
	assert.Equal(t, mustWindow(t, "2026-09-07T09:00:00Z", "2026-09-07T12:00:00Z"), got[0])
	assert.Equal(t, mustWindow(t, "2026-09-07T13:00:00Z", "2026-09-07T17:00:00Z"), got[1])
}

func TestSubtract_FullCoverLeavesNothing(t *testing.T) {
	w := mustWindow(t, "2026-09-07T10:00:00Z", "2026-09-07T11:00:00Z")
	busy := mustWindow(t, "2026-09-07T09:00:00Z", "2026-09-07T12:00:00Z")
	assert.Empty(t, w.Subtract(busy))
}

func TestSubtract_NonOverlappingReturnsOriginal(t *testing.T) {
	a := mustWindow(t, "2026-09-07T09:00:00Z", "2026-09-07T10:00:00Z")
	b := mustWindow(t, "2026-09-07T10:00:00Z", "2026-09-07T11:00:00Z")

	got := a.Subtract(b)
	require.Len(t, got, 1)
	assert.Equal(t, a, got[0])
}

func TestSubtractAll_OrderedRemainder(t *testing.T) {
	free := []TimeWindow{mustWindow(t, "2026-09-07T09:00:00Z", "2026-09-07T17:00:00Z")}
	busy := []TimeWindow{
		mustWindow(t, "2026-09-07T14:00:00Z", "2026-09-07T15:00:00Z"),
		mustWindow(t, "2026-09-07T10:00:00Z", "2026-09-07T11:00:00Z"),
	}

	got := SubtractAll(free, busy)
	require.Len(t, got, 3)
	assert.Equal(t, mustWindow(t, "2026-09-07T09:00:00Z", "2026-09-07T10:00:00Z"), got[0])
	assert.Equal(t, mustWindow(t, "2026-09-07T11:00:00Z", "2026-09-07T14:00:00Z"), got[1])
	assert.Equal(t, mustWindow(t, "2026-09-07T15:00:00Z", "2026-09-07T17:00:00Z"), got[2])
}

func TestMergeOverlapping_UnionsTouchingAndOverlapping(t *testing.T) {
	got := MergeOverlapping([]TimeWindow{
		mustWindow(t, "2026-09-07T13:00:00Z", "2026-09-07T17:00:00Z"),
		mustWindow(t, "2026-09-07T09:00:00Z", "2026-09-07T12:00:00Z"),
		mustWindow(t, "2026-09-07T11:00:00Z", "2026-09-07T13:00:00Z"),
	})

	require.Len(t, got, 1)
	assert.Equal(t, mustWindow(t, "2026-09-07T09:00:00Z", "2026-09-07T17:00:00Z"), got[0])
}

func TestMergeOverlapping_KeepsDisjointWindows(t *testing.T) {
	got := MergeOverlapping([]TimeWindow{
		mustWindow(t, "2026-09-07T13:00:00Z", "2026-09-07T17:00:00Z"),
		mustWindow(t, "2026-09-07T09:00:00Z", "2026-09-07T12:00:00Z"),
	})

	require.Len(t, got, 2)
	assert.Equal(t, mustWindow(t, "2026-09-07T09:00:00Z", "2026-09-07T12:00:00Z"), got[0])
}

func TestTile_DurationAnchoredFromWindowStart(t *testing.T) {
	w := mustWindow(t, "2026-09-07T09:00:00Z", "2026-09-07T17:00:00Z")
	slots := w.Tile(time.Hour)

	require.Len(t, slots, 8)
	assert.Equal(t, mustWindow(t, "2026-09-07T09:00:00Z", "2026-09-07T10:00:00Z"), slots[0])
	assert.Equal(t, mustWindow(t, "2026-09-07T16:00:00Z", "2026-09-07T17:00:00Z"), slots[7])
}

func TestTile_DiscardsFinalPartialSlot(t *testing.T) {
	w := mustWindow(t, "2026-09-07T09:00:00Z", "2026-09-07T10:30:00Z")
	slots := w.Tile(time.Hour)

	require.Len(t, slots, 1)
	assert.Equal(t, mustWindow(t, "2026-09-07T09:00:00Z", "2026-09-07T10:00:00Z"), slots[0])
}

func TestTile_WindowShorterThanDurationYieldsNothing(t *testing.T) {
	w := mustWindow(t, "2026-09-07T09:00:00Z", "2026-09-07T09:30:00Z")
	assert.Empty(t, w.Tile(time.Hour))
}

func TestNewTimeWindow_RejectsInvertedRange(t *testing.T) {
	end := time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)
	_, err := NewTimeWindow(end.Add(time.Hour), end)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}
