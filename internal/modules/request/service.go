// README: Request service implements the dispatch state machine around the store.
package request

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lifeline/internal/config"
	"lifeline/internal/metrics"
	"lifeline/internal/types"
)

var (
	ErrInvalidState     = errors.New("invalid state transition")
	ErrNotFound         = errors.New("request not found")
	ErrConflict         = errors.New("request state conflict")
	ErrForbidden        = errors.New("caller is not the receiving organization")
	ErrBadRequest       = errors.New("bad request")
	ErrBadOTP           = errors.New("malformed otp")
	ErrOTPMismatch      = errors.New("incorrect otp")
	ErrTooManyAttempts  = errors.New("too many otp attempts")
	ErrAlreadyCompleted = errors.New("delivery already completed")
)

type Pricing interface {
	Estimate(ctx context.Context, bloodGroup, component string, quantity int) (types.Money, error)
}

// Broadcaster pushes terminal events to live tracking subscribers. The
// tracking module provides it; a nil broadcaster is valid in tests.
type Broadcaster interface {
	BroadcastCompleted(orderID types.ID, completedAt time.Time)
}

// Notifier delivers best-effort status pushes to the requesting organization.
type Notifier interface {
	PushStatus(ctx context.Context, requesterID, requestID types.ID, status Status)
}

type Service struct {
	store     *Store
	pricing   Pricing
	broadcast Broadcaster
	notify    Notifier
	otp       config.OTPConfig
	log       *zap.Logger
}

func NewService(store *Store, pricing Pricing, otp config.OTPConfig, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, pricing: pricing, otp: otp, log: log}
}

// SetBroadcaster wires the tracking fan-out after both services exist.
func (s *Service) SetBroadcaster(b Broadcaster) { s.broadcast = b }

func (s *Service) SetNotifier(n Notifier) { s.notify = n }

type CreateCommand struct {
	RequesterID    types.ID
	OrganizationID types.ID
	PatientName    string
	BloodGroup     string
	Component      string
	Quantity       int
	Priority       string
}

type ApproveCommand struct {
	RequestID     types.ID
	ActorOrg      types.ID
	DriverName    string
	ContactNumber string
	VehicleNumber string
	// EstimatedArrival is set exactly once here and never updated.
	EstimatedArrival time.Time
	Notes            string
	UPIID            string
	PaymentNote      string
}

type RejectCommand struct {
	RequestID types.ID
	ActorOrg  types.ID
	Reason    string
}

type VerifyOTPCommand struct {
	RequestID types.ID
	Code      string
}

type PaymentCommand struct {
	RequestID types.ID
	// Actor is the authenticated caller; only the requester may record a
	// payment for their order.
	Actor         types.ID
	Method        string
	TransactionID string
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (types.ID, error) {
	if cmd.RequesterID == "" || cmd.OrganizationID == "" || cmd.BloodGroup == "" || cmd.Quantity <= 0 {
		return "", ErrBadRequest
	}

	id := types.ID(uuid.NewString())
	now := time.Now()
	amount := types.Money{Amount: 0, Currency: "INR"}
	if s.pricing != nil {
		if m, err := s.pricing.Estimate(ctx, cmd.BloodGroup, cmd.Component, cmd.Quantity); err == nil {
			amount = m
		}
	}

	r := &Request{
		ID:             id,
		RequesterID:    cmd.RequesterID,
		OrganizationID: cmd.OrganizationID,
		PatientName:    cmd.PatientName,
		BloodGroup:     cmd.BloodGroup,
		Component:      cmd.Component,
		Quantity:       cmd.Quantity,
		Priority:       cmd.Priority,
		Status:         StatusPending,
		StatusVersion:  0,
		Payment:        Payment{Amount: amount, Status: PaymentPending},
		CreatedAt:      now,
	}
	if err := s.store.Create(ctx, r); err != nil {
		return "", err
	}
	_ = s.store.AppendEvent(ctx, &Event{
		RequestID:  id,
		FromStatus: StatusNone,
		ToStatus:   StatusPending,
		ActorType:  "requester",
		ActorID:    &cmd.RequesterID,
		CreatedAt:  now,
	})
	metrics.RequestsCreatedTotal.Inc()
	return id, nil
}

// Approve moves pending→approved, generating the delivery OTP and stamping
// the estimated arrival. Only the organization the request was addressed to
// may approve.
func (s *Service) Approve(ctx context.Context, cmd ApproveCommand) error {
	if cmd.DriverName == "" || cmd.ContactNumber == "" || cmd.VehicleNumber == "" || cmd.EstimatedArrival.IsZero() {
		return ErrBadRequest
	}
	r, err := s.store.Get(ctx, cmd.RequestID)
	if err != nil {
		return err
	}
	if r.OrganizationID != cmd.ActorOrg {
		return ErrForbidden
	}
	if !CanTransition(r.Status, StatusApproved) {
		return ErrInvalidState
	}

	details := DeliveryDetails{
		DriverName:       cmd.DriverName,
		ContactNumber:    cmd.ContactNumber,
		VehicleNumber:    cmd.VehicleNumber,
		EstimatedArrival: cmd.EstimatedArrival,
		Notes:            cmd.Notes,
		DeliveryOTP:      GenerateOTP(s.otp.Length),
	}
	ok, err := s.store.Approve(ctx, r.ID, r.StatusVersion, details, cmd.UPIID, cmd.PaymentNote)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	_ = s.store.AppendEvent(ctx, &Event{
		RequestID:  r.ID,
		FromStatus: StatusPending,
		ToStatus:   StatusApproved,
		ActorType:  "organization",
		ActorID:    &cmd.ActorOrg,
		CreatedAt:  time.Now(),
	})
	metrics.RequestsApprovedTotal.Inc()
	s.pushStatus(ctx, r, StatusApproved)
	return nil
}

func (s *Service) Reject(ctx context.Context, cmd RejectCommand) error {
	r, err := s.store.Get(ctx, cmd.RequestID)
	if err != nil {
		return err
	}
	if r.OrganizationID != cmd.ActorOrg {
		return ErrForbidden
	}
	if !CanTransition(r.Status, StatusRejected) {
		return ErrInvalidState
	}
	ok, err := s.store.UpdateStatus(ctx, r.ID, r.Status, StatusRejected, r.StatusVersion)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	_ = s.store.AppendEvent(ctx, &Event{
		RequestID:  r.ID,
		FromStatus: StatusPending,
		ToStatus:   StatusRejected,
		ActorType:  "organization",
		ActorID:    &cmd.ActorOrg,
		CreatedAt:  time.Now(),
	})
	s.pushStatus(ctx, r, StatusRejected)
	return nil
}

// VerifyOTP is the courier's handoff confirmation. The caller is
// unauthenticated (holder of the tracking link); the code is the proof.
func (s *Service) VerifyOTP(ctx context.Context, cmd VerifyOTPCommand) (time.Time, error) {
	if !ValidOTPShape(cmd.Code, s.otp.Length) {
		metrics.OTPVerificationsTotal.WithLabelValues("malformed").Inc()
		return time.Time{}, ErrBadOTP
	}
	r, err := s.store.Get(ctx, cmd.RequestID)
	if err != nil {
		return time.Time{}, err
	}
	if r.Status == StatusCompleted {
		// A second verify after completion must not touch completedAt.
		return time.Time{}, ErrAlreadyCompleted
	}
	if r.Status != StatusApproved || r.Delivery == nil {
		return time.Time{}, ErrInvalidState
	}

	if s.otp.MaxAttempts > 0 {
		attempts, err := s.store.OTPAttempts(ctx, r.ID)
		if err != nil {
			return time.Time{}, err
		}
		if attempts >= int64(s.otp.MaxAttempts) {
			metrics.OTPVerificationsTotal.WithLabelValues("locked_out").Inc()
			return time.Time{}, ErrTooManyAttempts
		}
	}

	if !otpMatches(r.Delivery.DeliveryOTP, cmd.Code) {
		if _, err := s.store.IncrOTPAttempts(ctx, r.ID); err != nil {
			s.log.Warn("otp attempt counter", zap.Error(err))
		}
		metrics.OTPVerificationsTotal.WithLabelValues("mismatch").Inc()
		return time.Time{}, ErrOTPMismatch
	}

	ok, err := s.store.UpdateStatus(ctx, r.ID, StatusApproved, StatusCompleted, r.StatusVersion)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		// Lost the race to another verification; report it as a replay.
		return time.Time{}, ErrAlreadyCompleted
	}
	_ = s.store.ResetOTPAttempts(ctx, r.ID)
	_ = s.store.AppendEvent(ctx, &Event{
		RequestID:  r.ID,
		FromStatus: StatusApproved,
		ToStatus:   StatusCompleted,
		ActorType:  "courier",
		CreatedAt:  time.Now(),
	})
	metrics.OTPVerificationsTotal.WithLabelValues("success").Inc()

	completed, err := s.store.Get(ctx, r.ID)
	if err != nil {
		return time.Time{}, err
	}
	completedAt := time.Now()
	if completed.Delivery != nil && completed.Delivery.CompletedAt != nil {
		completedAt = *completed.Delivery.CompletedAt
	}
	if s.broadcast != nil {
		s.broadcast.BroadcastCompleted(r.ID, completedAt)
	}
	s.pushStatus(ctx, r, StatusCompleted)
	return completedAt, nil
}

// SubmitPayment records the receiver's payment. Online submissions need a
// 12-digit numeric transaction id and flip the payment to paid; COD leaves it
// pending until cash changes hands. Payment and delivery gates stay
// independent.
func (s *Service) SubmitPayment(ctx context.Context, cmd PaymentCommand) error {
	switch cmd.Method {
	case MethodOnline:
		if !validTransactionID(cmd.TransactionID) {
			return ErrBadRequest
		}
	case MethodCOD:
		cmd.TransactionID = ""
	default:
		return ErrBadRequest
	}
	r, err := s.store.Get(ctx, cmd.RequestID)
	if err != nil {
		return err
	}
	if r.RequesterID != cmd.Actor {
		return ErrForbidden
	}
	if r.Status == StatusRejected {
		return ErrInvalidState
	}
	status := PaymentPending
	if cmd.Method == MethodOnline {
		status = PaymentPaid
	}
	return s.store.SetPayment(ctx, r.ID, cmd.Method, cmd.TransactionID, status)
}

// BeginTracking flips trackingStarted exactly once, on the first relayed
// sample. Idempotent: reports whether this call was the flip.
func (s *Service) BeginTracking(ctx context.Context, id types.ID) (bool, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	switch r.Status {
	case StatusCompleted:
		return false, ErrAlreadyCompleted
	case StatusApproved:
	default:
		return false, ErrInvalidState
	}
	if r.Delivery != nil && r.Delivery.TrackingStarted {
		return false, nil
	}
	return s.store.MarkTrackingStarted(ctx, id)
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Request, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Public(ctx context.Context, id types.ID) (*PublicView, error) {
	return s.store.GetPublic(ctx, id)
}

func (s *Service) List(ctx context.Context, status Status) ([]*Request, error) {
	return s.store.ListByStatus(ctx, status)
}

func (s *Service) pushStatus(ctx context.Context, r *Request, to Status) {
	if s.notify == nil {
		return
	}
	s.notify.PushStatus(ctx, r.RequesterID, r.ID, to)
}

// validTransactionID enforces the 12-digit numeric UPI reference format.
func validTransactionID(txn string) bool {
	if len(txn) != 12 {
		return false
	}
	for _, c := range txn {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
