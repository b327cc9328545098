package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBookedVisit(t *testing.T) *Visit {
	t.Helper()
	v, err := NewVisit(1, "+998901112233", "Aziz", NewDate(2026, time.May, 1), ClockTime{Hour: 19}, 4, CreatedByHost)
	require.NoError(t, err)
	v.ID = 42
	return v
}

func TestNewVisitValidation(t *testing.T) {
	date := NewDate(2026, time.May, 1)
	tests := []struct {
		name    string
		venueID int64
		phone   string
		guests  int
		creator VisitCreator
	}{
		{"missing venue", 0, "+998901112233", 2, CreatedByUser},
		{"blank phone", 1, "   ", 2, CreatedByUser},
		{"zero guests", 1, "+998901112233", 0, CreatedByUser},
		{"unknown creator", 1, "+998901112233", 2, VisitCreator("admin")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewVisit(tt.venueID, tt.phone, "x", date, ClockTime{}, tt.guests, tt.creator)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestVisitHappyPath(t *testing.T) {
	v := newBookedVisit(t)
	now := time.Date(2026, time.May, 1, 19, 0, 0, 0, time.UTC)

	require.NoError(t, v.Start(now))
	assert.Equal(t, VisitStatusStarted, v.Status)
	require.NotNil(t, v.StartedAt)

	require.NoError(t, v.Finish(now.Add(time.Hour)))
	assert.Equal(t, VisitStatusFinished, v.Status)
	require.NotNil(t, v.FinishedAt)

	require.NoError(t, v.OpenBill())
	assert.Equal(t, VisitStatusPayment, v.Status)

	require.NoError(t, v.Close(now.Add(2*time.Hour)))
	assert.Equal(t, VisitStatusClosed, v.Status)
	require.NotNil(t, v.PaidAt)
	require.NotNil(t, v.ClosedAt)
	assert.True(t, v.Status.IsTerminal())
}

func TestVisitCannotSkipStates(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		from    VisitStatus
		act     func(v *Visit) error
		allowed []string
	}{
		{"finish from booked", VisitStatusBooked, func(v *Visit) error { return v.Finish(now) }, []string{"started"}},
		{"open bill from started", VisitStatusStarted, func(v *Visit) error { return v.OpenBill() }, []string{"finished"}},
		{"close from booked", VisitStatusBooked, func(v *Visit) error { return v.Close(now) }, []string{"finished", "payment"}},
		{"close from started", VisitStatusStarted, func(v *Visit) error { return v.Close(now) }, []string{"finished", "payment"}},
		{"start twice", VisitStatusStarted, func(v *Visit) error { return v.Start(now) }, []string{"booked"}},
		{"cancel finished", VisitStatusFinished, func(v *Visit) error { return v.Cancel("late", now) }, []string{"booked", "started"}},
		{"cancel payment", VisitStatusPayment, func(v *Visit) error { return v.Cancel("late", now) }, []string{"booked", "started"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newBookedVisit(t)
			v.Status = tt.from

			err := tt.act(v)

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidState))
			var stateErr *InvalidStateError
			require.True(t, errors.As(err, &stateErr))
			assert.Equal(t, string(tt.from), stateErr.Current)
			assert.Equal(t, tt.allowed, stateErr.Allowed)
			assert.Equal(t, tt.from, v.Status, "status must not change on a rejected transition")
		})
	}
}

func TestVisitCancellationIsTerminal(t *testing.T) {
	now := time.Now()
	v := newBookedVisit(t)
	require.NoError(t, v.Cancel("guest called", now))
	assert.Equal(t, VisitStatusCancelled, v.Status)
	require.NotNil(t, v.CancelReason)
	assert.Equal(t, "guest called", *v.CancelReason)
	firstCancelledAt := *v.CancelledAt

	for name, act := range map[string]func() error{
		"start":     func() error { return v.Start(now) },
		"finish":    func() error { return v.Finish(now) },
		"open bill": func() error { return v.OpenBill() },
		"close":     func() error { return v.Close(now) },
		"re-cancel": func() error { return v.Cancel("again", now.Add(time.Minute)) },
	} {
		assert.ErrorIs(t, act(), ErrInvalidState, name)
	}
	assert.Equal(t, firstCancelledAt, *v.CancelledAt)
	assert.Equal(t, "guest called", *v.CancelReason)
}

func TestVisitCancelRequiresReason(t *testing.T) {
	v := newBookedVisit(t)
	err := v.Cancel("  ", time.Now())
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, VisitStatusBooked, v.Status)
	assert.Nil(t, v.CancelledAt)
}

func TestVisitCancelWhileStartedKeepsStartedAt(t *testing.T) {
	now := time.Now()
	v := newBookedVisit(t)
	require.NoError(t, v.Start(now))
	require.NoError(t, v.Cancel("walked out", now.Add(time.Minute)))
	assert.NotNil(t, v.StartedAt)
	assert.NotNil(t, v.CancelledAt)
	assert.Nil(t, v.FinishedAt)
}

func TestVisitCloseDirectlyFromFinished(t *testing.T) {
	v := newBookedVisit(t)
	now := time.Now()
	require.NoError(t, v.Start(now))
	require.NoError(t, v.Finish(now))
	require.NoError(t, v.Close(now))
	assert.Equal(t, VisitStatusClosed, v.Status)
}

func TestVisitIsParticipant(t *testing.T) {
	owner := int64(7)
	v := newBookedVisit(t)
	v.UserID = &owner
	v.Guests = []VisitGuest{
		{UserID: 8, IsJoined: true},
		{UserID: 9, IsJoined: false},
	}
	assert.True(t, v.IsParticipant(7))
	assert.True(t, v.IsParticipant(8))
	assert.False(t, v.IsParticipant(9))
	assert.False(t, v.IsParticipant(10))
}

func TestVisitGuestJoinNeverReverts(t *testing.T) {
	g := &VisitGuest{UserID: 3}
	first := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	assert.True(t, g.Join(first))
	assert.False(t, g.Join(first.Add(time.Hour)))
	assert.True(t, g.IsJoined)
	assert.Equal(t, first, *g.JoinedAt)
}

func TestParseDateAndClockTime(t *testing.T) {
	d, err := ParseDate("2026-05-01")
	require.NoError(t, err)
	assert.Equal(t, "2026-05-01", d.String())

	_, err = ParseDate("01.05.2026")
	assert.ErrorIs(t, err, ErrValidation)

	c, err := ParseClockTime("19:30")
	require.NoError(t, err)
	assert.Equal(t, "19:30:00", c.String())

	var scanned ClockTime
	require.NoError(t, scanned.Scan([]byte("08:15:00.000000")))
	assert.Equal(t, ClockTime{Hour: 8, Minute: 15}, scanned)
}
