// README: DB-backed dispatch flow tests; skipped unless LIFELINE_TEST_DSN is set.
package request

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"lifeline/internal/config"
	"lifeline/internal/types"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("LIFELINE_TEST_DSN")
	if dsn == "" {
		t.Skip("LIFELINE_TEST_DSN not set; skipping DB-backed tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := applyMigration(ctx, db); err != nil {
		t.Fatalf("apply migration: %v", err)
	}

	if _, err := db.Exec(ctx, "TRUNCATE TABLE request_state_events, blood_requests"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}

	// No redis in DB tests; OTP attempt counting degrades to unlimited.
	return NewStore(db, nil)
}

func applyMigration(ctx context.Context, db *pgxpool.Pool) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	sql, err := os.ReadFile(filepath.Join(root, "migrations", "001_init.sql"))
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, string(sql))
	return err
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}

func newTestService(t *testing.T) *Service {
	return NewService(setupTestStore(t), nil, config.OTPConfig{Length: 4, MaxAttempts: 0}, nil)
}

func mustCreate(t *testing.T, svc *Service, requester, org types.ID) types.ID {
	t.Helper()
	id, err := svc.Create(context.Background(), CreateCommand{
		RequesterID:    requester,
		OrganizationID: org,
		PatientName:    "Asha Rao",
		BloodGroup:     "O-",
		Component:      "Whole Blood",
		Quantity:       2,
		Priority:       "urgent",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return id
}

func mustApprove(t *testing.T, svc *Service, id, org types.ID) {
	t.Helper()
	err := svc.Approve(context.Background(), ApproveCommand{
		RequestID:        id,
		ActorOrg:         org,
		DriverName:       "Ramesh",
		ContactNumber:    "9876500000",
		VehicleNumber:    "MH-02-AB-1234",
		EstimatedArrival: time.Now().Add(2 * time.Hour),
		Notes:            "Call upon arrival",
		UPIID:            "hospital@oksbi",
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
}

func assertStatus(t *testing.T, svc *Service, id types.ID, want Status) {
	t.Helper()
	r, err := svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.Status != want {
		t.Fatalf("status = %s, want %s", r.Status, want)
	}
}

func TestDispatchHappyPath(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id := mustCreate(t, svc, "org_city_hospital", "org_blood_bank")
	assertStatus(t, svc, id, StatusPending)

	mustApprove(t, svc, id, "org_blood_bank")
	assertStatus(t, svc, id, StatusApproved)

	r, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.Delivery == nil {
		t.Fatal("approval must store delivery details")
	}
	if len(r.Delivery.DeliveryOTP) != 4 {
		t.Fatalf("otp length = %d, want 4", len(r.Delivery.DeliveryOTP))
	}
	if r.Delivery.EstimatedArrival.IsZero() {
		t.Fatal("approval must stamp estimated arrival")
	}

	completedAt, err := svc.VerifyOTP(ctx, VerifyOTPCommand{RequestID: id, Code: r.Delivery.DeliveryOTP})
	if err != nil {
		t.Fatalf("verify otp: %v", err)
	}
	if completedAt.IsZero() {
		t.Fatal("verify must return completedAt")
	}
	assertStatus(t, svc, id, StatusCompleted)
}

func TestVerifyOTPMismatchLeavesOrderApproved(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id := mustCreate(t, svc, "org_a", "org_b")
	mustApprove(t, svc, id, "org_b")

	r, _ := svc.Get(ctx, id)
	wrong := "0000"
	if r.Delivery.DeliveryOTP == wrong {
		wrong = "0001"
	}
	if _, err := svc.VerifyOTP(ctx, VerifyOTPCommand{RequestID: id, Code: wrong}); !errors.Is(err, ErrOTPMismatch) {
		t.Fatalf("got %v, want ErrOTPMismatch", err)
	}
	assertStatus(t, svc, id, StatusApproved)
}

func TestVerifyOTPReplayAfterCompletion(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id := mustCreate(t, svc, "org_a", "org_b")
	mustApprove(t, svc, id, "org_b")
	r, _ := svc.Get(ctx, id)

	first, err := svc.VerifyOTP(ctx, VerifyOTPCommand{RequestID: id, Code: r.Delivery.DeliveryOTP})
	if err != nil {
		t.Fatalf("first verify: %v", err)
	}

	if _, err := svc.VerifyOTP(ctx, VerifyOTPCommand{RequestID: id, Code: r.Delivery.DeliveryOTP}); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("got %v, want ErrAlreadyCompleted", err)
	}

	after, _ := svc.Get(ctx, id)
	if after.Delivery.CompletedAt == nil || !after.Delivery.CompletedAt.Equal(first) {
		t.Fatal("replay must not alter completedAt")
	}
}

func TestVerifyOTPConcurrentSingleWinner(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id := mustCreate(t, svc, "org_a", "org_b")
	mustApprove(t, svc, id, "org_b")
	r, _ := svc.Get(ctx, id)
	code := r.Delivery.DeliveryOTP

	errs := make(chan error, 3)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.VerifyOTP(ctx, VerifyOTPCommand{RequestID: id, Code: code})
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrAlreadyCompleted) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 successful verification, got %d", success)
	}
}

func TestApproveByWrongOrganization(t *testing.T) {
	svc := newTestService(t)

	id := mustCreate(t, svc, "org_a", "org_b")
	err := svc.Approve(context.Background(), ApproveCommand{
		RequestID:        id,
		ActorOrg:         "org_intruder",
		DriverName:       "X",
		ContactNumber:    "1",
		VehicleNumber:    "Y",
		EstimatedArrival: time.Now().Add(time.Hour),
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
	assertStatus(t, svc, id, StatusPending)
}

func TestRejectIsTerminal(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id := mustCreate(t, svc, "org_a", "org_b")
	if err := svc.Reject(ctx, RejectCommand{RequestID: id, ActorOrg: "org_b", Reason: "no stock"}); err != nil {
		t.Fatalf("reject: %v", err)
	}
	assertStatus(t, svc, id, StatusRejected)

	err := svc.Approve(ctx, ApproveCommand{
		RequestID:        id,
		ActorOrg:         "org_b",
		DriverName:       "X",
		ContactNumber:    "1",
		VehicleNumber:    "Y",
		EstimatedArrival: time.Now().Add(time.Hour),
	})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("got %v, want ErrInvalidState", err)
	}
}

func TestBeginTrackingFlipsOnce(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id := mustCreate(t, svc, "org_a", "org_b")

	// Not approved yet: no samples accepted.
	if _, err := svc.BeginTracking(ctx, id); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("got %v, want ErrInvalidState", err)
	}

	mustApprove(t, svc, id, "org_b")

	flipped, err := svc.BeginTracking(ctx, id)
	if err != nil || !flipped {
		t.Fatalf("first BeginTracking = (%v, %v), want (true, nil)", flipped, err)
	}
	flipped, err = svc.BeginTracking(ctx, id)
	if err != nil || flipped {
		t.Fatalf("second BeginTracking = (%v, %v), want (false, nil)", flipped, err)
	}

	r, _ := svc.Get(ctx, id)
	if !r.Delivery.TrackingStarted {
		t.Fatal("trackingStarted must stay true")
	}

	otp := r.Delivery.DeliveryOTP
	if _, err := svc.VerifyOTP(ctx, VerifyOTPCommand{RequestID: id, Code: otp}); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := svc.BeginTracking(ctx, id); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("got %v, want ErrAlreadyCompleted after completion", err)
	}
}

func TestSubmitPayment(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id := mustCreate(t, svc, "org_a", "org_b")

	if err := svc.SubmitPayment(ctx, PaymentCommand{RequestID: id, Actor: "org_a", Method: MethodOnline, TransactionID: "12345"}); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("short txn id: got %v, want ErrBadRequest", err)
	}
	if err := svc.SubmitPayment(ctx, PaymentCommand{RequestID: id, Actor: "org_intruder", Method: MethodOnline, TransactionID: "123456789012"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign payer: got %v, want ErrForbidden", err)
	}
	if err := svc.SubmitPayment(ctx, PaymentCommand{RequestID: id, Actor: "org_a", Method: MethodOnline, TransactionID: "123456789012"}); err != nil {
		t.Fatalf("online payment: %v", err)
	}
	r, _ := svc.Get(ctx, id)
	if r.Payment.Status != PaymentPaid {
		t.Fatalf("payment status = %s, want paid", r.Payment.Status)
	}

	// COD records the method but cash is still outstanding.
	id2 := mustCreate(t, svc, "org_a", "org_b")
	if err := svc.SubmitPayment(ctx, PaymentCommand{RequestID: id2, Actor: "org_a", Method: MethodCOD}); err != nil {
		t.Fatalf("cod payment: %v", err)
	}
	r2, _ := svc.Get(ctx, id2)
	if r2.Payment.Status != PaymentPending {
		t.Fatalf("cod payment status = %s, want pending", r2.Payment.Status)
	}
}

func TestMissingRequestIsNotFound(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	missing := types.ID("no-such-request")

	if _, err := svc.Get(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get: got %v, want ErrNotFound", err)
	}
	if _, err := svc.Public(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Public: got %v, want ErrNotFound", err)
	}
	if _, err := svc.VerifyOTP(ctx, VerifyOTPCommand{RequestID: missing, Code: "1234"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("VerifyOTP: got %v, want ErrNotFound", err)
	}
}

func TestPublicViewOmitsOTP(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id := mustCreate(t, svc, "org_a", "org_b")
	mustApprove(t, svc, id, "org_b")

	v, err := svc.Public(ctx, id)
	if err != nil {
		t.Fatalf("public: %v", err)
	}
	if v.DriverName == "" || v.EstimatedArrival.IsZero() {
		t.Fatal("public view must expose delivery details")
	}
	// The projection has no OTP field at all; assert the sensitive fields
	// that do exist are the public-safe ones.
	if v.Status != StatusApproved {
		t.Fatalf("status = %s, want approved", v.Status)
	}
}
