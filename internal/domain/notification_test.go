package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationDue(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	due := Notification{Status: NotificationPending, ScheduledFor: now.Add(-time.Minute)}
	assert.True(t, due.Due(now))

	exactlyNow := Notification{Status: NotificationPending, ScheduledFor: now}
	assert.True(t, exactlyNow.Due(now))

	future := Notification{Status: NotificationPending, ScheduledFor: now.Add(time.Minute)}
	assert.False(t, future.Due(now))

	sent := Notification{Status: NotificationSent, ScheduledFor: now.Add(-time.Minute)}
	assert.False(t, sent.Due(now))
}

func TestMarkSent_ClearsErrorAndSetsSentAt(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	n := Notification{Status: NotificationPending, ErrorMessage: "smtp timeout", AttemptCount: 2}

	sent, err := n.MarkSent(now)
	require.NoError(t, err)
	assert.Equal(t, NotificationSent, sent.Status)
	assert.Empty(t, sent.ErrorMessage)
	require.NotNil(t, sent.SentAt)
	assert.Equal(t, now, *sent.SentAt)

	// sent is terminal
	_, err = sent.MarkSent(now)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestMarkSent_ManualResendFromFailed(t *testing.T) {
	n := Notification{Status: NotificationFailed, ErrorMessage: "gave up"}
	sent, err := n.MarkSent(time.Now())
	require.NoError(t, err)
	assert.Equal(t, NotificationSent, sent.Status)
}

func TestRecordFailure_StaysPendingBelowMax(t *testing.T) {
	n := Notification{Status: NotificationPending, AttemptCount: 0}

	after, err := n.RecordFailure("smtp timeout", 5)
	require.NoError(t, err)
	assert.Equal(t, NotificationPending, after.Status)
	assert.Equal(t, 1, after.AttemptCount)
	assert.Equal(t, "smtp timeout", after.ErrorMessage)
}

func TestRecordFailure_TerminalAtMaxAttempts(t *testing.T) {
	n := Notification{Status: NotificationPending, AttemptCount: 4}

	after, err := n.RecordFailure("smtp timeout", 5)
	require.NoError(t, err)
	assert.Equal(t, NotificationFailed, after.Status)
	assert.Equal(t, 5, after.AttemptCount)
}

func TestSuppress_OnlyPending(t *testing.T) {
	n := Notification{Status: NotificationPending}
	suppressed, err := n.Suppress()
	require.NoError(t, err)
	assert.Equal(t, NotificationFailed, suppressed.Status)
	assert.Equal(t, CancellationMessage, suppressed.ErrorMessage)

	_, err = Notification{Status: NotificationSent}.Suppress()
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}
