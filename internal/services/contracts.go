package services

import (
	"context"
	"time"

	"dinein_backend/internal/models"
	"dinein_backend/internal/repositories"

	"github.com/shopspring/decimal"
)

type (
	// Actor is the authenticated caller. Hosts carry the venue they manage.
	Actor struct {
		UserID  int64
		Role    string
		VenueID *int64
	}

	// BalanceUpdater recomputes a user's cached balance inside the settlement transaction.
	BalanceUpdater interface {
		UpdateBalance(ctx context.Context, ex repositories.SQLExecutor, userID int64) (decimal.Decimal, error)
	}

	// PaymentNotifier is told about accepted payments after commit. Failures are logged only.
	PaymentNotifier interface {
		PaymentReceived(ctx context.Context, event PaymentReceivedEvent) error
	}

	// Recorder receives business counters.
	Recorder interface {
		VisitTransition(to models.VisitStatus)
		PaymentSettled(provider models.Provider, status models.PaymentStatus)
	}
)

// PaymentReceivedEvent is published for every accepted transaction.
type PaymentReceivedEvent struct {
	EventID       string          `json:"event_id"`
	TransactionID int64           `json:"transaction_id"`
	VisitID       int64           `json:"visit_id"`
	UserID        int64           `json:"user_id"`
	Provider      models.Provider `json:"provider"`
	Amount        decimal.Decimal `json:"amount"`
	VisitClosed   bool            `json:"visit_closed"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func (a Actor) IsHost() bool {
	return a.Role == models.RoleHost
}

// canSeeVisit hides visits of other venues from hosts and foreign visits from users.
func (a Actor) canSeeVisit(v *models.Visit) bool {
	if a.IsHost() {
		return a.VenueID != nil && *a.VenueID == v.VenueID
	}
	return v.IsParticipant(a.UserID)
}

type nopRecorder struct{}

func (nopRecorder) VisitTransition(models.VisitStatus)                     {}
func (nopRecorder) PaymentSettled(models.Provider, models.PaymentStatus) {}

type nopNotifier struct{}

func (nopNotifier) PaymentReceived(context.Context, PaymentReceivedEvent) error { return nil }

func utcNow() time.Time {
	return time.Now().UTC()
}
