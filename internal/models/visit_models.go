package models

import (
	"strings"
	"time"
)

// VisitStatus is the lifecycle position of a table reservation.
type VisitStatus string

const (
	VisitStatusBooked    VisitStatus = "booked"
	VisitStatusStarted   VisitStatus = "started"
	VisitStatusFinished  VisitStatus = "finished"
	VisitStatusPayment   VisitStatus = "payment"
	VisitStatusClosed    VisitStatus = "closed"
	VisitStatusCancelled VisitStatus = "cancelled"
)

// visitTransitions lists every legal edge of the visit lifecycle.
var visitTransitions = map[VisitStatus][]VisitStatus{
	VisitStatusBooked:   {VisitStatusStarted, VisitStatusCancelled},
	VisitStatusStarted:  {VisitStatusFinished, VisitStatusCancelled},
	VisitStatusFinished: {VisitStatusPayment, VisitStatusClosed},
	VisitStatusPayment:  {VisitStatusClosed},
}

var visitStatusOrder = []VisitStatus{
	VisitStatusBooked,
	VisitStatusStarted,
	VisitStatusFinished,
	VisitStatusPayment,
	VisitStatusClosed,
	VisitStatusCancelled,
}

// IsValidVisitStatus checks a raw status string, e.g. from a query filter.
func IsValidVisitStatus(status string) bool {
	for _, s := range visitStatusOrder {
		if string(s) == status {
			return true
		}
	}
	return false
}

func (s VisitStatus) CanTransitionTo(next VisitStatus) bool {
	for _, candidate := range visitTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

func (s VisitStatus) IsTerminal() bool {
	return len(visitTransitions[s]) == 0
}

// AcceptsOrderChanges reports whether items may still be served or cancelled.
func (s VisitStatus) AcceptsOrderChanges() bool {
	return s == VisitStatusStarted || s == VisitStatusFinished
}

// visitSourcesOf returns, in lifecycle order, the statuses from which next is reachable.
func visitSourcesOf(next VisitStatus) []string {
	var sources []string
	for _, s := range visitStatusOrder {
		if s.CanTransitionTo(next) {
			sources = append(sources, string(s))
		}
	}
	return sources
}

// VisitCreator records who made the booking.
type VisitCreator string

const (
	CreatedByUser VisitCreator = "user"
	CreatedByHost VisitCreator = "host"
)

// Visit is one reservation of a table at a venue and the root of its order and payments.
type Visit struct {
	ID              int64        `json:"id" db:"id"`
	UserID          *int64       `json:"user_id,omitempty" db:"user_id"`
	UserPhoneNumber string       `json:"user_phone_number" db:"user_phone_number"`
	UserFullName    string       `json:"user_full_name" db:"user_full_name"`
	HostID          *int64       `json:"host_id,omitempty" db:"host_id"`
	CreatedBy       VisitCreator `json:"created_by" db:"created_by"`
	VenueID         int64        `json:"venue_id" db:"venue_id"`
	ZoneID          *int64       `json:"zone_id,omitempty" db:"zone_id"`
	TableNumber     *string      `json:"table_number,omitempty" db:"table_number"`
	BookedDate      Date         `json:"booked_date" db:"booked_date"`
	BookedTime      ClockTime    `json:"booked_time" db:"booked_time"`
	NumberOfGuests  int          `json:"number_of_guests" db:"number_of_guests"`
	Status          VisitStatus  `json:"status" db:"status"`
	StartedAt       *time.Time   `json:"started_at,omitempty" db:"started_at"`
	FinishedAt      *time.Time   `json:"finished_at,omitempty" db:"finished_at"`
	PaidAt          *time.Time   `json:"paid_at,omitempty" db:"paid_at"`
	ClosedAt        *time.Time   `json:"closed_at,omitempty" db:"closed_at"`
	CancelledAt     *time.Time   `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancelReason    *string      `json:"cancel_reason,omitempty" db:"cancel_reason"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at" db:"updated_at"`

	Order  *Order       `json:"order,omitempty" db:"-"`
	Guests []VisitGuest `json:"guests,omitempty" db:"-"`
}

// NewVisit validates booking input and returns a visit in the booked status.
func NewVisit(venueID int64, phone, fullName string, date Date, clock ClockTime, guests int, createdBy VisitCreator) (*Visit, error) {
	if venueID <= 0 {
		return nil, NewValidationError("venue_id is required")
	}
	if strings.TrimSpace(phone) == "" {
		return nil, NewValidationError("user_phone_number is required")
	}
	if guests <= 0 {
		return nil, NewValidationError("number_of_guests must be positive")
	}
	if createdBy != CreatedByUser && createdBy != CreatedByHost {
		return nil, NewValidationError("created_by %q is not supported", createdBy)
	}
	return &Visit{
		VenueID:         venueID,
		UserPhoneNumber: strings.TrimSpace(phone),
		UserFullName:    strings.TrimSpace(fullName),
		BookedDate:      date,
		BookedTime:      clock,
		NumberOfGuests:  guests,
		CreatedBy:       createdBy,
		Status:          VisitStatusBooked,
	}, nil
}

func (v *Visit) transition(op string, next VisitStatus) error {
	if !v.Status.CanTransitionTo(next) {
		return &InvalidStateError{
			Entity:    "visit",
			ID:        v.ID,
			Operation: op,
			Current:   string(v.Status),
			Allowed:   visitSourcesOf(next),
		}
	}
	v.Status = next
	return nil
}

// Start seats the guests. The caller creates the order alongside.
func (v *Visit) Start(now time.Time) error {
	if err := v.transition("start", VisitStatusStarted); err != nil {
		return err
	}
	v.StartedAt = stampOnce(v.StartedAt, now)
	return nil
}

func (v *Visit) Finish(now time.Time) error {
	if err := v.transition("finish", VisitStatusFinished); err != nil {
		return err
	}
	v.FinishedAt = stampOnce(v.FinishedAt, now)
	return nil
}

// OpenBill moves a finished visit to awaiting payment. No timestamp is recorded.
func (v *Visit) OpenBill() error {
	return v.transition("open bill", VisitStatusPayment)
}

// Close settles the visit once its order is fully paid.
func (v *Visit) Close(now time.Time) error {
	if err := v.transition("close", VisitStatusClosed); err != nil {
		return err
	}
	v.PaidAt = stampOnce(v.PaidAt, now)
	v.ClosedAt = stampOnce(v.ClosedAt, now)
	return nil
}

func (v *Visit) Cancel(reason string, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return NewValidationError("cancel_reason is required")
	}
	if err := v.transition("cancel", VisitStatusCancelled); err != nil {
		return err
	}
	v.CancelledAt = stampOnce(v.CancelledAt, now)
	v.CancelReason = &reason
	return nil
}

// IsParticipant reports whether userID owns the visit or has joined it.
func (v *Visit) IsParticipant(userID int64) bool {
	if v.UserID != nil && *v.UserID == userID {
		return true
	}
	for _, g := range v.Guests {
		if g.UserID == userID && g.IsJoined {
			return true
		}
	}
	return false
}

func stampOnce(current *time.Time, now time.Time) *time.Time {
	if current != nil {
		return current
	}
	t := now
	return &t
}

// VisitGuest is an additional user invited to share a visit.
type VisitGuest struct {
	ID        int64      `json:"id" db:"id"`
	VisitID   int64      `json:"visit_id" db:"visit_id"`
	UserID    int64      `json:"user_id" db:"user_id"`
	IsJoined  bool       `json:"is_joined" db:"is_joined"`
	JoinedAt  *time.Time `json:"joined_at,omitempty" db:"joined_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// Join accepts the invitation. Joining twice keeps the first timestamp.
func (g *VisitGuest) Join(now time.Time) bool {
	if g.IsJoined {
		return false
	}
	g.IsJoined = true
	g.JoinedAt = stampOnce(g.JoinedAt, now)
	return true
}

// VisitFilters narrows the venue visit list.
type VisitFilters struct {
	VenueID    int64
	Status     *VisitStatus
	BookedDate *Date
	BookedTime *ClockTime
	Pagination
}
