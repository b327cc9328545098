package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"dinein_backend/internal/config"
	"dinein_backend/internal/database"
	"dinein_backend/internal/models"
	"dinein_backend/internal/payments"
	"dinein_backend/internal/repositories"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testVenueID     = int64(3)
	clickSecret     = "click-secret"
	clickServiceID  = "555"
	paymeKey        = "payme-key"
	guestPhone      = "+998901112233"
	paylovUser      = "paylov"
	paylovPassword  = "paylov-pass"
	bookedDateInput = "2026-05-01"
)

type recordingNotifier struct {
	events chan PaymentReceivedEvent
}

func (n *recordingNotifier) PaymentReceived(_ context.Context, e PaymentReceivedEvent) error {
	n.events <- e
	return nil
}

type countingRecorder struct {
	mu          sync.Mutex
	transitions map[models.VisitStatus]int
	settled     map[models.PaymentStatus]int
}

func (r *countingRecorder) VisitTransition(to models.VisitStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions[to]++
}

func (r *countingRecorder) PaymentSettled(_ models.Provider, status models.PaymentStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settled[status]++
}

type fixture struct {
	db        *sqlx.DB
	users     repositories.UserRepository
	otps      repositories.OTPRepository
	visits    VisitService
	orders    OrderService
	payments  PaymentService
	callbacks CallbackService
	accounts  AccountService
	notifier  *recordingNotifier
	recorder  *countingRecorder

	host      Actor
	guest     Actor
	guestUser *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.OpenInMemory(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	txm := repositories.NewTxManager(db)
	visitRepo := repositories.NewVisitRepository()
	guestRepo := repositories.NewGuestRepository()
	orderRepo := repositories.NewOrderRepository()
	paymentRepo := repositories.NewPaymentRepository()
	userRepo := repositories.NewUserRepository(paymentRepo)
	otpRepo := repositories.NewOTPRepository()

	cfg := config.PaymentsConfig{
		Click:  config.ClickConfig{CallbackURL: "https://my.click.uz/services/pay", ServiceID: clickServiceID, MerchantID: "1", SecretKey: clickSecret},
		Payme:  config.PaymeConfig{CallbackURL: "https://checkout.paycom.uz", MerchantID: "m", SecretKey: paymeKey},
		Paylov: config.PaylovConfig{CallbackURL: "https://my.paylov.uz/checkout/create", MerchantID: "p", Username: paylovUser, Password: paylovPassword},
	}

	f := &fixture{
		db:       db,
		users:    userRepo,
		otps:     otpRepo,
		notifier: &recordingNotifier{events: make(chan PaymentReceivedEvent, 16)},
		recorder: &countingRecorder{transitions: map[models.VisitStatus]int{}, settled: map[models.PaymentStatus]int{}},
	}
	f.visits = NewVisitService(txm, visitRepo, guestRepo, orderRepo, userRepo, paymentRepo, f.recorder)
	f.orders = NewOrderService(txm, visitRepo, orderRepo)
	f.payments = NewPaymentService(txm, paymentRepo, visitRepo, guestRepo, orderRepo, userRepo, payments.NewRegistry(cfg), f.notifier, f.recorder)
	f.callbacks = NewCallbackService(f.payments, cfg)
	f.accounts = NewAccountService(txm, userRepo, otpRepo)

	venue := testVenueID
	hostPhone := "+998900000001"
	hostUser, err := userRepo.Create(ctx, db, &models.User{PhoneNumber: &hostPhone, FullName: "Host", Role: models.RoleHost, VenueID: &venue})
	require.NoError(t, err)
	f.host = Actor{UserID: hostUser.ID, Role: models.RoleHost, VenueID: &venue}

	phone := guestPhone
	f.guestUser, err = userRepo.Create(ctx, db, &models.User{PhoneNumber: &phone, FullName: "Guest"})
	require.NoError(t, err)
	f.guest = Actor{UserID: f.guestUser.ID, Role: models.RoleUser}
	return f
}

func (f *fixture) book(t *testing.T) *models.Visit {
	t.Helper()
	date, err := models.ParseDate(bookedDateInput)
	require.NoError(t, err)
	v, err := f.visits.BookByHost(context.Background(), f.host, BookVisitRequest{
		UserPhoneNumber: guestPhone,
		UserFullName:    "Guest",
		BookedDate:      date,
		BookedTime:      &models.ClockTime{Hour: 19, Minute: 30},
		NumberOfGuests:  2,
	})
	require.NoError(t, err)
	return v
}

// billed drives a visit to the payment status with an order total of 100000.
func (f *fixture) billed(t *testing.T) *models.Visit {
	t.Helper()
	ctx := context.Background()
	v := f.book(t)
	_, err := f.visits.Start(ctx, f.host, v.ID)
	require.NoError(t, err)
	order, err := f.orders.AddItem(ctx, f.host, v.ID, AddOrderItemRequest{ProductName: "Plov", Quantity: 2, UnitPrice: decimal.NewFromInt(50000)})
	require.NoError(t, err)
	require.True(t, order.TotalAmount.Equal(decimal.NewFromInt(100000)))
	_, err = f.visits.Finish(ctx, f.host, v.ID)
	require.NoError(t, err)
	v, err = f.visits.OpenBill(ctx, f.host, v.ID)
	require.NoError(t, err)
	require.Equal(t, models.VisitStatusPayment, v.Status)
	return v
}

func (f *fixture) balance(t *testing.T, userID int64) decimal.Decimal {
	t.Helper()
	u, err := f.users.GetByID(context.Background(), f.db, userID, false)
	require.NoError(t, err)
	return u.Balance
}

func (f *fixture) visitStatus(t *testing.T, visitID int64) models.VisitStatus {
	t.Helper()
	v, err := f.visits.GetVisit(context.Background(), f.host, visitID)
	require.NoError(t, err)
	return v.Status
}

func TestBookByHostLinksExistingUser(t *testing.T) {
	f := newFixture(t)
	v := f.book(t)

	assert.Equal(t, models.VisitStatusBooked, v.Status)
	assert.Equal(t, models.CreatedByHost, v.CreatedBy)
	assert.Equal(t, testVenueID, v.VenueID)
	require.NotNil(t, v.UserID)
	assert.Equal(t, f.guestUser.ID, *v.UserID)
	require.NotNil(t, v.HostID)
	assert.Equal(t, f.host.UserID, *v.HostID)
}

func TestBookByUserRequiresDate(t *testing.T) {
	f := newFixture(t)
	_, err := f.visits.BookByUser(context.Background(), f.guest, BookVisitRequest{
		UserPhoneNumber: guestPhone, VenueID: testVenueID, NumberOfGuests: 2,
		BookedTime: &models.ClockTime{Hour: 12},
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBookRequiresTime(t *testing.T) {
	f := newFixture(t)
	date, err := models.ParseDate(bookedDateInput)
	require.NoError(t, err)

	_, err = f.visits.BookByHost(context.Background(), f.host, BookVisitRequest{
		UserPhoneNumber: guestPhone, BookedDate: date, NumberOfGuests: 2,
	})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "booked_time")

	midnight := &models.ClockTime{}
	v, err := f.visits.BookByHost(context.Background(), f.host, BookVisitRequest{
		UserPhoneNumber: guestPhone, BookedDate: date, BookedTime: midnight, NumberOfGuests: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ClockTime{}, v.BookedTime)
}

func TestStartCreatesEmptyOrder(t *testing.T) {
	f := newFixture(t)
	v := f.book(t)

	started, err := f.visits.Start(context.Background(), f.host, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VisitStatusStarted, started.Status)
	require.NotNil(t, started.StartedAt)
	require.NotNil(t, started.Order)
	assert.True(t, started.Order.TotalAmount.IsZero())
}

func TestVisitTransitionsRejectSkippedStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.book(t)

	_, err := f.visits.Finish(ctx, f.host, v.ID)
	require.ErrorIs(t, err, ErrInvalidState)
	var stateErr *models.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, "booked", stateErr.Current)
	assert.Equal(t, []string{"started"}, stateErr.Allowed)

	_, err = f.visits.OpenBill(ctx, f.host, v.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, models.VisitStatusBooked, f.visitStatus(t, v.ID))
}

func TestCancelIsTerminalAndNeedsReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.book(t)

	_, err := f.visits.Cancel(ctx, f.host, v.ID, "  ")
	require.ErrorIs(t, err, ErrValidation)

	cancelled, err := f.visits.Cancel(ctx, f.host, v.ID, "no show")
	require.NoError(t, err)
	assert.Equal(t, models.VisitStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelReason)
	assert.Equal(t, "no show", *cancelled.CancelReason)

	_, err = f.visits.Start(ctx, f.host, v.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.visits.Cancel(ctx, f.host, v.ID, "again")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestOtherVenueSeesNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.book(t)

	other := int64(99)
	stranger := Actor{UserID: f.host.UserID, Role: models.RoleHost, VenueID: &other}
	_, err := f.visits.GetVisit(ctx, stranger, v.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.visits.Start(ctx, stranger, v.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.orders.AddItem(ctx, stranger, v.ID, AddOrderItemRequest{ProductName: "Tea", Quantity: 1, UnitPrice: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, models.VisitStatusBooked, f.visitStatus(t, v.ID))
}

func TestListVisitsScopedToVenue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t)
	f.book(t)

	visits, total, err := f.visits.ListVisits(ctx, f.host, models.VisitFilters{VenueID: 999})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, visits, 2)

	_, _, err = f.visits.ListVisits(ctx, f.guest, models.VisitFilters{})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAddItemRequiresStartedVisit(t *testing.T) {
	f := newFixture(t)
	v := f.book(t)

	_, err := f.orders.AddItem(context.Background(), f.host, v.ID, AddOrderItemRequest{ProductName: "Tea", Quantity: 1, UnitPrice: decimal.NewFromInt(5000)})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestOrderTotalsFollowItemChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.book(t)
	_, err := f.visits.Start(ctx, f.host, v.ID)
	require.NoError(t, err)

	_, err = f.orders.AddItem(ctx, f.host, v.ID, AddOrderItemRequest{ProductName: "Plov", Quantity: 2, UnitPrice: decimal.NewFromInt(50000)})
	require.NoError(t, err)
	order, err := f.orders.AddItem(ctx, f.host, v.ID, AddOrderItemRequest{ProductName: "Tea", Quantity: 1, UnitPrice: decimal.NewFromInt(20000)})
	require.NoError(t, err)
	assert.Equal(t, "120000", order.TotalAmount.String())
	require.Len(t, order.Items, 2)

	fee := decimal.NewFromInt(5000)
	order, err = f.orders.UpdateOrder(ctx, f.host, v.ID, UpdateOrderRequest{ServiceFee: &fee})
	require.NoError(t, err)
	assert.Equal(t, "125000", order.TotalAmount.String())

	tea := order.Items[1]
	order, err = f.orders.CancelItem(ctx, f.host, v.ID, tea.ID)
	require.NoError(t, err)
	assert.Equal(t, "105000", order.TotalAmount.String())

	// Cancelled items cannot be served.
	_, err = f.orders.ServeItem(ctx, f.host, v.ID, tea.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	pct := 10.0
	order, err = f.orders.UpdateOrder(ctx, f.host, v.ID, UpdateOrderRequest{PercentageOfService: &pct})
	require.NoError(t, err)
	assert.Equal(t, "10000", order.ServiceFee.String())
	assert.Equal(t, "110000", order.TotalAmount.String())

	stored, err := f.orders.GetOrder(ctx, f.host, v.ID)
	require.NoError(t, err)
	assert.True(t, stored.TotalAmount.Equal(stored.Subtotal().Add(stored.ServiceFee)))
}

func TestEndToEndCardPaymentClosesVisit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.billed(t)

	created, err := f.payments.CreateTransaction(ctx, f.guest, CreateTransactionRequest{
		VisitID: v.ID, Provider: "card", Amount: decimal.NewFromInt(100000),
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, created.Status)
	assert.Equal(t, models.ProviderCard, created.Provider)
	assert.Empty(t, created.PaymentURL)

	settled, err := f.payments.SuccessProcess(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusAccepted, settled.Status)
	require.NotNil(t, settled.PaidAt)

	closed, err := f.visits.GetVisit(ctx, f.host, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VisitStatusClosed, closed.Status)
	assert.NotNil(t, closed.PaidAt)
	assert.NotNil(t, closed.ClosedAt)
	assert.Equal(t, "100000", f.balance(t, f.guestUser.ID).String())

	select {
	case event := <-f.notifier.events:
		assert.Equal(t, created.ID, event.TransactionID)
		assert.True(t, event.VisitClosed)
		assert.NotEmpty(t, event.EventID)
	case <-time.After(2 * time.Second):
		t.Fatal("payment notification was not published")
	}

	// A replayed success is a conflict and changes nothing.
	_, err = f.payments.SuccessProcess(ctx, created.ID)
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, "100000", f.balance(t, f.guestUser.ID).String())
	assert.Equal(t, 1, f.recorder.settled[models.PaymentStatusAccepted])
}

func TestPartialPaymentKeepsVisitOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.billed(t)

	tx, err := f.payments.CreateTransaction(ctx, f.guest, CreateTransactionRequest{VisitID: v.ID, Provider: "CLICK", Amount: decimal.NewFromInt(40000)})
	require.NoError(t, err)
	assert.Contains(t, tx.PaymentURL, "transaction_param="+fmt.Sprint(tx.ID))

	_, err = f.payments.SuccessProcess(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VisitStatusPayment, f.visitStatus(t, v.ID))
}

func TestRejectAndCancelOnlyFromPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.billed(t)

	tx, err := f.payments.CreateTransaction(ctx, f.guest, CreateTransactionRequest{VisitID: v.ID, Provider: "PAYME", Amount: decimal.NewFromInt(100000)})
	require.NoError(t, err)

	rejected, err := f.payments.RejectProcess(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRejected, rejected.Status)
	assert.NotNil(t, rejected.RejectedAt)

	_, err = f.payments.CancelProcess(ctx, tx.ID)
	assert.ErrorIs(t, err, ErrConflict)
	_, err = f.payments.SuccessProcess(ctx, tx.ID)
	assert.ErrorIs(t, err, ErrConflict)

	assert.True(t, f.balance(t, f.guestUser.ID).IsZero())
	assert.Equal(t, models.VisitStatusPayment, f.visitStatus(t, v.ID))
}

func TestManualPaymentSettlesImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.billed(t)

	tx, err := f.payments.RecordManualPayment(ctx, f.host, v.ID, ManualPaymentRequest{Amount: decimal.NewFromInt(100000)})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusAccepted, tx.Status)
	assert.Equal(t, f.guestUser.ID, tx.UserID)
	assert.NotNil(t, tx.PaidAt)

	assert.Equal(t, models.VisitStatusClosed, f.visitStatus(t, v.ID))
	assert.Equal(t, "100000", f.balance(t, f.guestUser.ID).String())

	_, err = f.payments.RecordManualPayment(ctx, f.host, v.ID, ManualPaymentRequest{Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCreateTransactionValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.billed(t)

	_, err := f.payments.CreateTransaction(ctx, f.guest, CreateTransactionRequest{VisitID: v.ID, Provider: "BITCOIN", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.payments.CreateTransaction(ctx, f.guest, CreateTransactionRequest{VisitID: v.ID, Provider: "CARD", Amount: decimal.Zero})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.payments.CreateTransaction(ctx, f.guest, CreateTransactionRequest{VisitID: v.ID, Provider: "MANUAL", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrForbidden)

	card := int64(12345)
	_, err = f.payments.CreateTransaction(ctx, f.guest, CreateTransactionRequest{VisitID: v.ID, Provider: "CARD", Amount: decimal.NewFromInt(1), CardID: &card})
	assert.ErrorIs(t, err, ErrValidation)

	strangerPhone := "+998909999999"
	stranger, err := f.users.Create(ctx, f.db, &models.User{PhoneNumber: &strangerPhone})
	require.NoError(t, err)
	_, err = f.payments.CreateTransaction(ctx, Actor{UserID: stranger.ID, Role: models.RoleUser}, CreateTransactionRequest{VisitID: v.ID, Provider: "CARD", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetTransactionOnlyForOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.billed(t)

	tx, err := f.payments.CreateTransaction(ctx, f.guest, CreateTransactionRequest{VisitID: v.ID, Provider: "PAYLOV", Amount: decimal.NewFromInt(100000)})
	require.NoError(t, err)

	got, err := f.payments.GetTransaction(ctx, f.guest, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)
	assert.NotEmpty(t, got.PaymentURL)

	_, err = f.payments.GetTransaction(ctx, Actor{UserID: f.guestUser.ID + 100}, tx.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExpirePendingCancelsStaleTransactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.billed(t)

	stale, err := f.payments.CreateTransaction(ctx, f.guest, CreateTransactionRequest{VisitID: v.ID, Provider: "CARD", Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)

	svc := f.payments.(*paymentService)
	svc.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }

	n, err := f.payments.ExpirePending(ctx, 30*time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.payments.Lookup(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCanceled, got.Status)
	assert.Equal(t, "expired", got.Extra["cancel_reason"])

	n, err = f.payments.ExpirePending(ctx, 30*time.Minute, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExpirePendingSkipsProviderBoundTransactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.billed(t)

	bound, err := f.payments.CreateTransaction(ctx, f.guest, CreateTransactionRequest{VisitID: v.ID, Provider: "PAYME", Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	_, err = f.payments.BindRemoteID(ctx, bound.ID, models.ProviderPayme, "payme-remote-1", nil)
	require.NoError(t, err)
	unbound, err := f.payments.CreateTransaction(ctx, f.guest, CreateTransactionRequest{VisitID: v.ID, Provider: "CARD", Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)

	svc := f.payments.(*paymentService)
	svc.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }

	n, err := f.payments.ExpirePending(ctx, 30*time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.payments.Lookup(ctx, bound.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, got.Status)
	got, err = f.payments.Lookup(ctx, unbound.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCanceled, got.Status)
}

func TestInviteAndJoinVisit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.book(t)

	friendPhone := "+998907777777"
	friend, err := f.users.Create(ctx, f.db, &models.User{PhoneNumber: &friendPhone, FullName: "Friend"})
	require.NoError(t, err)
	friendActor := Actor{UserID: friend.ID, Role: models.RoleUser}

	guest, err := f.visits.InviteGuest(ctx, f.guest, v.ID, friend.ID)
	require.NoError(t, err)
	assert.False(t, guest.IsJoined)

	_, err = f.visits.InviteGuest(ctx, f.guest, v.ID, friend.ID)
	assert.ErrorIs(t, err, ErrConflict)

	// Not yet a participant.
	_, err = f.visits.GetVisit(ctx, friendActor, v.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	joined, err := f.visits.JoinVisit(ctx, friendActor, v.ID)
	require.NoError(t, err)
	assert.True(t, joined.IsJoined)
	first := *joined.JoinedAt

	again, err := f.visits.JoinVisit(ctx, friendActor, v.ID)
	require.NoError(t, err)
	assert.True(t, first.Equal(*again.JoinedAt))

	seen, err := f.visits.GetVisit(ctx, friendActor, v.ID)
	require.NoError(t, err)
	assert.Len(t, seen.Guests, 1)
}

func signedClick(action int, txID int64, amount string) payments.ClickRequest {
	req := payments.ClickRequest{
		ClickTransID:    "click-1",
		ServiceID:       clickServiceID,
		MerchantTransID: fmt.Sprint(txID),
		Amount:          amount,
		Action:          action,
		SignTime:        "2026-05-01 20:00:00",
	}
	if action == payments.ClickActionComplete {
		req.MerchantPrepareID = fmt.Sprint(txID)
	}
	req.SignString = payments.ClickSign(clickSecret, req)
	return req
}

func TestClickPrepareAndComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.billed(t)

	tx, err := f.payments.CreateTransaction(ctx, f.guest, CreateTransactionRequest{VisitID: v.ID, Provider: "CLICK", Amount: decimal.NewFromInt(100000)})
	require.NoError(t, err)

	bad := signedClick(payments.ClickActionPrepare, tx.ID, "100000")
	bad.SignString = "forged"
	assert.Equal(t, payments.ClickSignFailed, f.callbacks.ClickPrepare(ctx, bad).Error)

	wrongAmount := signedClick(payments.ClickActionPrepare, tx.ID, "1.00")
	assert.Equal(t, payments.ClickIncorrectAmount, f.callbacks.ClickPrepare(ctx, wrongAmount).Error)

	prepared := f.callbacks.ClickPrepare(ctx, signedClick(payments.ClickActionPrepare, tx.ID, "100000.00"))
	require.Equal(t, payments.ClickOK, prepared.Error)
	assert.Equal(t, tx.ID, prepared.MerchantPrepareID)

	completed := f.callbacks.ClickComplete(ctx, signedClick(payments.ClickActionComplete, tx.ID, "100000.00"))
	require.Equal(t, payments.ClickOK, completed.Error)
	assert.Equal(t, tx.ID, completed.MerchantConfirmID)
	assert.Equal(t, models.VisitStatusClosed, f.visitStatus(t, v.ID))

	replay := f.callbacks.ClickComplete(ctx, signedClick(payments.ClickActionComplete, tx.ID, "100000.00"))
	assert.Equal(t, payments.ClickOK, replay.Error)
	assert.Equal(t, "100000", f.balance(t, f.guestUser.ID).String())

	assert.Equal(t, payments.ClickAlreadyPaid, f.callbacks.ClickPrepare(ctx, signedClick(payments.ClickActionPrepare, tx.ID, "100000.00")).Error)
}

func TestClickCompleteWithProviderErrorRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.billed(t)

	tx, err := f.payments.CreateTransaction(ctx, f.guest, CreateTransactionRequest{VisitID: v.ID, Provider: "CLICK", Amount: decimal.NewFromInt(5000)})
	require.NoError(t, err)

	req := signedClick(payments.ClickActionComplete, tx.ID, "5000")
	req.Error = -5017
	assert.Equal(t, payments.ClickTransactionCanceled, f.callbacks.ClickComplete(ctx, req).Error)

	got, err := f.payments.Lookup(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRejected, got.Status)
}

func TestClickCompleteRequiresMatchingPrepareID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.billed(t)

	tx, err := f.payments.CreateTransaction(ctx, f.guest, CreateTransactionRequest{VisitID: v.ID, Provider: "CLICK", Amount: decimal.NewFromInt(100000)})
	require.NoError(t, err)

	for _, prepareID := range []string{"", fmt.Sprint(tx.ID + 1000)} {
		req := signedClick(payments.ClickActionComplete, tx.ID, "100000.00")
		req.MerchantPrepareID = prepareID
		req.SignString = payments.ClickSign(clickSecret, req)
		assert.Equal(t, payments.ClickTransactionNotFound, f.callbacks.ClickComplete(ctx, req).Error, "prepare id %q", prepareID)
	}

	got, err := f.payments.Lookup(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, got.Status)
	assert.Equal(t, models.VisitStatusPayment, f.visitStatus(t, v.ID))
}

func paymeCall(t *testing.T, f *fixture, method string, params map[string]interface{}) payments.PaymeResponse {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	auth := "Basic " + base64.StdEncoding.EncodeToString([]byte("Paycom:"+paymeKey))
	return f.callbacks.Payme(context.Background(), auth, payments.PaymeRequest{ID: 1, Method: method, Params: raw})
}

func TestPaymeLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.billed(t)

	tx, err := f.payments.CreateTransaction(ctx, f.guest, CreateTransactionRequest{VisitID: v.ID, Provider: "PAYME", Amount: decimal.NewFromInt(100000)})
	require.NoError(t, err)
	account := map[string]interface{}{"order_id": tx.ID}

	unauth := f.callbacks.Payme(ctx, "Basic nope", payments.PaymeRequest{ID: 1, Method: payments.PaymeCheckTransaction, Params: []byte(`{}`)})
	require.NotNil(t, unauth.Error)
	assert.Equal(t, payments.PaymeErrInsufficientPrivilege, unauth.Error.Code)

	resp := paymeCall(t, f, payments.PaymeCheckPerformTransaction, map[string]interface{}{"amount": 100, "account": account})
	require.NotNil(t, resp.Error)
	assert.Equal(t, payments.PaymeErrInvalidAmount, resp.Error.Code)

	resp = paymeCall(t, f, payments.PaymeCheckPerformTransaction, map[string]interface{}{"amount": 10000000, "account": account})
	require.Nil(t, resp.Error)

	resp = paymeCall(t, f, payments.PaymeCreateTransaction, map[string]interface{}{"id": "payme-1", "time": 1700000000000, "amount": 10000000, "account": account})
	require.Nil(t, resp.Error)
	assert.Equal(t, payments.PaymeStateCreated, resp.Result.(map[string]interface{})["state"])

	resp = paymeCall(t, f, payments.PaymePerformTransaction, map[string]interface{}{"id": "payme-1"})
	require.Nil(t, resp.Error)
	assert.Equal(t, payments.PaymeStatePerformed, resp.Result.(map[string]interface{})["state"])

	resp = paymeCall(t, f, payments.PaymePerformTransaction, map[string]interface{}{"id": "payme-1"})
	require.Nil(t, resp.Error)

	resp = paymeCall(t, f, payments.PaymeCancelTransaction, map[string]interface{}{"id": "payme-1", "reason": 5})
	require.NotNil(t, resp.Error)
	assert.Equal(t, payments.PaymeErrCannotCancel, resp.Error.Code)

	resp = paymeCall(t, f, payments.PaymeCheckTransaction, map[string]interface{}{"id": "payme-unknown"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, payments.PaymeErrTransactionNotFound, resp.Error.Code)

	assert.Equal(t, models.VisitStatusClosed, f.visitStatus(t, v.ID))
	assert.Equal(t, "100000", f.balance(t, f.guestUser.ID).String())
}

func TestPaymeCancelPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.billed(t)

	tx, err := f.payments.CreateTransaction(ctx, f.guest, CreateTransactionRequest{VisitID: v.ID, Provider: "PAYME", Amount: decimal.NewFromInt(1000)})
	require.NoError(t, err)
	account := map[string]interface{}{"order_id": tx.ID}

	resp := paymeCall(t, f, payments.PaymeCreateTransaction, map[string]interface{}{"id": "payme-2", "time": 1700000000000, "amount": 100000, "account": account})
	require.Nil(t, resp.Error)

	for i := 0; i < 2; i++ {
		resp = paymeCall(t, f, payments.PaymeCancelTransaction, map[string]interface{}{"id": "payme-2", "reason": 3})
		require.Nil(t, resp.Error)
		assert.Equal(t, payments.PaymeStateCancelled, resp.Result.(map[string]interface{})["state"])
	}

	got, err := f.payments.Lookup(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCanceled, got.Status)
}

func TestPaylovPerform(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.billed(t)

	tx, err := f.payments.CreateTransaction(ctx, f.guest, CreateTransactionRequest{VisitID: v.ID, Provider: "PAYLOV", Amount: decimal.NewFromInt(100000)})
	require.NoError(t, err)
	params := []byte(fmt.Sprintf(`{"transaction_id":"pl-1","amount":100000,"account":{"order_id":%d}}`, tx.ID))

	resp := f.callbacks.Paylov(ctx, "x", "y", true, payments.PaylovRequest{ID: "1", Method: payments.PaylovPerform, Params: params})
	assert.Equal(t, payments.PaylovUnauthorized, resp.Result.Status)

	resp = f.callbacks.Paylov(ctx, paylovUser, paylovPassword, true, payments.PaylovRequest{ID: "1", Method: payments.PaylovCheck, Params: params})
	assert.Equal(t, payments.PaylovOK, resp.Result.Status)

	resp = f.callbacks.Paylov(ctx, paylovUser, paylovPassword, true, payments.PaylovRequest{ID: "2", Method: payments.PaylovPerform, Params: params})
	assert.Equal(t, payments.PaylovOK, resp.Result.Status)

	resp = f.callbacks.Paylov(ctx, paylovUser, paylovPassword, true, payments.PaylovRequest{ID: "3", Method: payments.PaylovPerform, Params: params})
	assert.Equal(t, payments.PaylovOK, resp.Result.Status)

	resp = f.callbacks.Paylov(ctx, paylovUser, paylovPassword, true, payments.PaylovRequest{ID: "4", Method: payments.PaylovCancel, Params: params})
	assert.Equal(t, payments.PaylovAlreadyProcessed, resp.Result.Status)

	assert.Equal(t, models.VisitStatusClosed, f.visitStatus(t, v.ID))
}

func TestPaylovAnswersCanceledForClosedTransactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.billed(t)

	tx, err := f.payments.CreateTransaction(ctx, f.guest, CreateTransactionRequest{VisitID: v.ID, Provider: "PAYLOV", Amount: decimal.NewFromInt(100000)})
	require.NoError(t, err)
	params := []byte(fmt.Sprintf(`{"transaction_id":"pl-9","amount":100000,"account":{"order_id":%d}}`, tx.ID))

	resp := f.callbacks.Paylov(ctx, paylovUser, paylovPassword, true, payments.PaylovRequest{ID: "1", Method: payments.PaylovCancel, Params: params})
	require.Equal(t, payments.PaylovOK, resp.Result.Status)

	resp = f.callbacks.Paylov(ctx, paylovUser, paylovPassword, true, payments.PaylovRequest{ID: "2", Method: payments.PaylovCheck, Params: params})
	assert.Equal(t, payments.PaylovTransactionCanceled, resp.Result.Status)

	resp = f.callbacks.Paylov(ctx, paylovUser, paylovPassword, true, payments.PaylovRequest{ID: "3", Method: payments.PaylovPerform, Params: params})
	assert.Equal(t, payments.PaylovTransactionCanceled, resp.Result.Status)

	got, err := f.payments.Lookup(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCanceled, got.Status)
}

func TestDeleteMeFreesPhone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.accounts.DeleteMe(ctx, f.guest))
	assert.ErrorIs(t, f.accounts.DeleteMe(ctx, f.guest), ErrNotFound)

	_, err := f.accounts.GetMe(ctx, f.guest)
	assert.ErrorIs(t, err, ErrNotFound)

	phone := guestPhone
	_, err = f.users.Create(ctx, f.db, &models.User{PhoneNumber: &phone, FullName: "New owner"})
	assert.NoError(t, err)
}

func TestApplySMSDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.otps.Create(ctx, f.db, &models.OTPLog{PhoneNumber: guestPhone, MessageID: "msg-1"})
	require.NoError(t, err)

	entry, err := f.accounts.ApplySMSDelivery(ctx, EskizCallbackRequest{RequestID: "msg-1", Status: "waiting"})
	require.NoError(t, err)
	assert.False(t, entry.IsDelivered)

	entry, err = f.accounts.ApplySMSDelivery(ctx, EskizCallbackRequest{RequestID: "msg-1", Status: "delivered"})
	require.NoError(t, err)
	assert.True(t, entry.IsDelivered)
	require.NotNil(t, entry.DeliveredAt)

	entry, err = f.accounts.ApplySMSDelivery(ctx, EskizCallbackRequest{RequestID: "msg-1", Status: "REJECTED"})
	require.NoError(t, err)
	assert.True(t, entry.IsDelivered)
	assert.Equal(t, models.OTPDeliveredStatus, *entry.Status)

	entry, err = f.accounts.ApplySMSDelivery(ctx, EskizCallbackRequest{RequestID: "missing", Status: "DELIVERED"})
	require.NoError(t, err)
	assert.Nil(t, entry)

	_, err = f.accounts.ApplySMSDelivery(ctx, EskizCallbackRequest{RequestID: " ", Status: "DELIVERED"})
	assert.ErrorIs(t, err, ErrValidation)
}
