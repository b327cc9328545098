package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dinein_backend/internal/models"
	"dinein_backend/internal/payments"
	"dinein_backend/internal/repositories"
	"dinein_backend/pkg/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const notifyTimeout = 5 * time.Second

// --- Payment DTOs ---
type CreateTransactionRequest struct {
	VisitID  int64           `json:"visit_id" binding:"required,gt=0"`
	Provider string          `json:"provider" binding:"required"`
	Amount   decimal.Decimal `json:"amount" binding:"decimal_gt0"`
	CardID   *int64          `json:"card_id"`
}

type ManualPaymentRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"decimal_gt0"`
}

// TransactionResult is a transaction with the checkout link for its provider.
type TransactionResult struct {
	*models.PaymentTransaction
	PaymentURL string `json:"payment_url,omitempty"`
}

// Outcome is the terminal status a settlement moves a pending transaction to.
type Outcome int

const (
	OutcomeAccept Outcome = iota
	OutcomeReject
	OutcomeCancel
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccept:
		return "accept"
	case OutcomeReject:
		return "reject"
	default:
		return "cancel"
	}
}

// --- PaymentService Interface ---
type PaymentService interface {
	CreateTransaction(ctx context.Context, actor Actor, req CreateTransactionRequest) (*TransactionResult, error)
	RecordManualPayment(ctx context.Context, actor Actor, visitID int64, req ManualPaymentRequest) (*TransactionResult, error)
	GetTransaction(ctx context.Context, actor Actor, id int64) (*TransactionResult, error)

	SuccessProcess(ctx context.Context, id int64) (*models.PaymentTransaction, error)
	RejectProcess(ctx context.Context, id int64) (*models.PaymentTransaction, error)
	CancelProcess(ctx context.Context, id int64) (*models.PaymentTransaction, error)

	// Settle runs check on the locked pending transaction before applying the outcome.
	Settle(ctx context.Context, id int64, outcome Outcome, check func(*models.PaymentTransaction) error) (*models.PaymentTransaction, error)
	// BindRemoteID stores the provider's id on a pending transaction. Rebinding the same id is a no-op.
	BindRemoteID(ctx context.Context, id int64, provider models.Provider, remoteID string, extra models.JSONMap) (*models.PaymentTransaction, error)
	Lookup(ctx context.Context, id int64) (*models.PaymentTransaction, error)
	LookupRemote(ctx context.Context, provider models.Provider, remoteID string) (*models.PaymentTransaction, error)
	ExpirePending(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// --- paymentService Implementation ---
type paymentService struct {
	tx       repositories.TxManager
	payments repositories.PaymentRepository
	visits   repositories.VisitRepository
	guests   repositories.GuestRepository
	users    repositories.UserRepository
	balances BalanceUpdater
	settler  *visitSettler
	urls     *payments.Registry
	notifier PaymentNotifier
	recorder Recorder
	now      func() time.Time
}

// NewPaymentService wires payment creation and settlement. notifier and recorder may be nil.
func NewPaymentService(
	tx repositories.TxManager,
	paymentRepo repositories.PaymentRepository,
	visits repositories.VisitRepository,
	guests repositories.GuestRepository,
	orders repositories.OrderRepository,
	users repositories.UserRepository,
	urls *payments.Registry,
	notifier PaymentNotifier,
	recorder Recorder,
) PaymentService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &paymentService{
		tx:       tx,
		payments: paymentRepo,
		visits:   visits,
		guests:   guests,
		users:    users,
		balances: users,
		settler:  newVisitSettler(visits, orders, paymentRepo),
		urls:     urls,
		notifier: notifier,
		recorder: recorder,
		now:      utcNow,
	}
}

func (s *paymentService) result(tx *models.PaymentTransaction) *TransactionResult {
	res := &TransactionResult{PaymentTransaction: tx}
	if s.urls != nil && tx.Status == models.PaymentStatusPending {
		res.PaymentURL = s.urls.PaymentURL(tx)
	}
	return res
}

func (s *paymentService) CreateTransaction(ctx context.Context, actor Actor, req CreateTransactionRequest) (*TransactionResult, error) {
	provider, err := models.ParseProvider(req.Provider)
	if err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, models.NewValidationError("amount must be positive")
	}
	if provider == models.ProviderManual && !actor.IsHost() {
		return nil, fmt.Errorf("%w: manual payments are recorded by venue hosts", ErrForbidden)
	}

	var (
		created     *models.PaymentTransaction
		visitClosed bool
	)
	err = s.tx.WithinTx(ctx, func(ex repositories.SQLExecutor) error {
		visit, err := s.visits.GetByID(ctx, ex, req.VisitID, true)
		if err != nil {
			return mapRepoError(err, fmt.Sprintf("visit %d", req.VisitID))
		}
		if visit.Guests, err = s.guests.ListByVisit(ctx, ex, visit.ID); err != nil {
			return mapRepoError(err, "visit guests")
		}
		if !actor.canSeeVisit(visit) {
			return notFound("visit %d", req.VisitID)
		}
		if visit.Status.IsTerminal() {
			return &models.InvalidStateError{
				Entity: "visit", ID: visit.ID, Operation: "pay", Current: string(visit.Status),
				Allowed: []string{string(models.VisitStatusBooked), string(models.VisitStatusStarted), string(models.VisitStatusFinished), string(models.VisitStatusPayment)},
			}
		}

		payer := actor.UserID
		if actor.IsHost() {
			if visit.UserID == nil {
				return models.NewValidationError("visit %d has no linked user to charge", visit.ID)
			}
			payer = *visit.UserID
		}
		if req.CardID != nil {
			ok, err := s.users.CardBelongsTo(ctx, ex, *req.CardID, payer)
			if err != nil {
				return mapRepoError(err, "bank card")
			}
			if !ok {
				return models.NewValidationError("card %d does not belong to user %d", *req.CardID, payer)
			}
		}

		now := s.now()
		tx, err := models.NewPaymentTransaction(payer, visit.ID, provider, req.Amount, req.CardID, now)
		if err != nil {
			return err
		}
		if created, err = s.payments.Create(ctx, ex, tx); err != nil {
			return mapRepoError(err, "payment transaction")
		}

		// MANUAL is accepted on creation and runs the acceptance cascade here.
		if created.Status == models.PaymentStatusAccepted {
			if _, err := s.balances.UpdateBalance(ctx, ex, created.UserID); err != nil {
				return mapRepoError(err, "user balance")
			}
			if visitClosed, err = s.settler.closeIfPaid(ctx, ex, visit, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	utils.LogInfo("Payment transaction created", map[string]interface{}{
		"transactionID": created.ID, "visitID": created.VisitID, "provider": string(created.Provider),
		"amount": utils.MoneyString(created.Amount), "status": string(created.Status),
	})
	if created.Status == models.PaymentStatusAccepted {
		s.afterAccept(created, visitClosed)
	}
	return s.result(created), nil
}

func (s *paymentService) RecordManualPayment(ctx context.Context, actor Actor, visitID int64, req ManualPaymentRequest) (*TransactionResult, error) {
	return s.CreateTransaction(ctx, actor, CreateTransactionRequest{
		VisitID:  visitID,
		Provider: string(models.ProviderManual),
		Amount:   req.Amount,
	})
}

func (s *paymentService) GetTransaction(ctx context.Context, actor Actor, id int64) (*TransactionResult, error) {
	tx, err := s.payments.GetByID(ctx, s.tx.DB(), id, false)
	if err != nil {
		return nil, mapRepoError(err, fmt.Sprintf("payment transaction %d", id))
	}
	if tx.UserID != actor.UserID {
		return nil, notFound("payment transaction %d", id)
	}
	return s.result(tx), nil
}

func (s *paymentService) Lookup(ctx context.Context, id int64) (*models.PaymentTransaction, error) {
	tx, err := s.payments.GetByID(ctx, s.tx.DB(), id, false)
	if err != nil {
		return nil, mapRepoError(err, fmt.Sprintf("payment transaction %d", id))
	}
	return tx, nil
}

func (s *paymentService) LookupRemote(ctx context.Context, provider models.Provider, remoteID string) (*models.PaymentTransaction, error) {
	tx, err := s.payments.GetByRemoteID(ctx, s.tx.DB(), provider, remoteID, false)
	if err != nil {
		return nil, mapRepoError(err, fmt.Sprintf("%s transaction %s", provider, remoteID))
	}
	return tx, nil
}

func (s *paymentService) BindRemoteID(ctx context.Context, id int64, provider models.Provider, remoteID string, extra models.JSONMap) (*models.PaymentTransaction, error) {
	var result *models.PaymentTransaction
	err := s.tx.WithinTx(ctx, func(ex repositories.SQLExecutor) error {
		tx, err := s.payments.GetByID(ctx, ex, id, true)
		if err != nil {
			return mapRepoError(err, fmt.Sprintf("payment transaction %d", id))
		}
		if tx.Provider != provider {
			return notFound("%s transaction %d", provider, id)
		}
		if tx.RemoteID != nil && *tx.RemoteID == remoteID {
			result = tx
			return nil
		}
		if tx.Status != models.PaymentStatusPending {
			return fmt.Errorf("%w: payment transaction %d is %s", ErrConflict, id, tx.Status)
		}
		if tx.RemoteID != nil {
			return fmt.Errorf("%w: payment transaction %d is bound to another remote id", ErrConflict, id)
		}
		tx.RemoteID = &remoteID
		if len(extra) > 0 {
			if tx.Extra == nil {
				tx.Extra = models.JSONMap{}
			}
			for k, v := range extra {
				tx.Extra[k] = v
			}
		}
		tx.UpdatedAt = s.now()
		if err := s.payments.Update(ctx, ex, tx); err != nil {
			return mapRepoError(err, "payment transaction")
		}
		result = tx
		return nil
	})
	return result, err
}

func (s *paymentService) SuccessProcess(ctx context.Context, id int64) (*models.PaymentTransaction, error) {
	return s.Settle(ctx, id, OutcomeAccept, nil)
}

func (s *paymentService) RejectProcess(ctx context.Context, id int64) (*models.PaymentTransaction, error) {
	return s.Settle(ctx, id, OutcomeReject, nil)
}

func (s *paymentService) CancelProcess(ctx context.Context, id int64) (*models.PaymentTransaction, error) {
	return s.Settle(ctx, id, OutcomeCancel, nil)
}

// Settle moves a pending transaction to a terminal status. Any other starting
// status yields ErrConflict and leaves the row, the balance and the visit untouched.
func (s *paymentService) Settle(ctx context.Context, id int64, outcome Outcome, check func(*models.PaymentTransaction) error) (*models.PaymentTransaction, error) {
	var (
		result      *models.PaymentTransaction
		visitClosed bool
	)
	err := s.tx.WithinTx(ctx, func(ex repositories.SQLExecutor) error {
		tx, err := s.payments.GetByID(ctx, ex, id, true)
		if err != nil {
			return mapRepoError(err, fmt.Sprintf("payment transaction %d", id))
		}
		if tx.Status != models.PaymentStatusPending {
			return fmt.Errorf("%w: payment transaction %d is already %s", ErrConflict, id, tx.Status)
		}
		if check != nil {
			if err := check(tx); err != nil {
				return err
			}
		}

		now := s.now()
		switch outcome {
		case OutcomeAccept:
			err = tx.Accept(now)
		case OutcomeReject:
			err = tx.Reject(now)
		default:
			err = tx.Cancel(now)
		}
		if err != nil {
			return err
		}
		tx.UpdatedAt = now
		if err := s.payments.Update(ctx, ex, tx); err != nil {
			return mapRepoError(err, "payment transaction")
		}

		if outcome != OutcomeReject {
			if _, err := s.balances.UpdateBalance(ctx, ex, tx.UserID); err != nil {
				return mapRepoError(err, "user balance")
			}
		}
		if outcome == OutcomeAccept {
			if visitClosed, err = s.settler.settleLocked(ctx, ex, tx.VisitID, now); err != nil {
				return err
			}
		}
		result = tx
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recorder.PaymentSettled(result.Provider, result.Status)
	utils.LogInfo("Payment transaction settled", map[string]interface{}{
		"transactionID": result.ID, "outcome": outcome.String(), "status": string(result.Status), "visitClosed": visitClosed,
	})
	if outcome == OutcomeAccept {
		s.afterAccept(result, visitClosed)
	}
	return result, nil
}

// afterAccept runs post-commit side effects. They never fail the settlement.
func (s *paymentService) afterAccept(tx *models.PaymentTransaction, visitClosed bool) {
	if visitClosed {
		s.recorder.VisitTransition(models.VisitStatusClosed)
	}
	event := PaymentReceivedEvent{
		EventID:       uuid.NewString(),
		TransactionID: tx.ID,
		VisitID:       tx.VisitID,
		UserID:        tx.UserID,
		Provider:      tx.Provider,
		Amount:        tx.Amount,
		VisitClosed:   visitClosed,
		OccurredAt:    s.now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.PaymentReceived(ctx, event); err != nil {
			utils.LogError(err, "Failed to publish payment notification", map[string]interface{}{"transactionID": tx.ID})
		}
	}()
}

// ExpirePending cancels pending transactions older than olderThan. Rows a
// provider has already bound a remote id to are left for the provider to
// settle, as are rows settled concurrently.
func (s *paymentService) ExpirePending(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	status := models.PaymentStatusPending
	cutoff := s.now().Add(-olderThan)
	stale, err := s.payments.List(ctx, s.tx.DB(), models.PaymentFilters{Status: &status, CreatedBefore: &cutoff, Unbound: true, Limit: limit})
	if err != nil {
		return 0, mapRepoError(err, "pending transactions")
	}

	expired := 0
	for _, tx := range stale {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		_, err := s.Settle(ctx, tx.ID, OutcomeCancel, func(t *models.PaymentTransaction) error {
			if t.RemoteID != nil {
				return fmt.Errorf("%w: payment transaction %d was claimed by %s", ErrConflict, t.ID, t.Provider)
			}
			if t.Extra == nil {
				t.Extra = models.JSONMap{}
			}
			t.Extra["cancel_reason"] = "expired"
			return nil
		})
		switch {
		case err == nil:
			expired++
		case errors.Is(err, ErrConflict):
			continue
		default:
			return expired, err
		}
	}
	return expired, nil
}
