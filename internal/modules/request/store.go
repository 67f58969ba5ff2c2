// README: Request store backed by PostgreSQL, plus Redis OTP attempt counters.
package request

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"lifeline/internal/types"
)

const (
	otpAttemptsKeyPrefix = "request:%s:otp_attempts"
	// Attempt counters expire on their own; orders should resolve well within a day.
	otpAttemptsTTL = 24 * time.Hour
)

type Store struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewStore(db *pgxpool.Pool, redis *redis.Client) *Store {
	return &Store{db: db, redis: redis}
}

func (s *Store) Create(ctx context.Context, r *Request) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO blood_requests (
            id, requester_id, organization_id, patient_name,
            blood_group, component, quantity, priority,
            status, status_version,
            payment_amount, payment_currency, payment_status,
            created_at
        ) VALUES (
            $1, $2, $3, $4,
            $5, $6, $7, $8,
            $9, $10,
            $11, $12, $13,
            $14
        )`,
		string(r.ID),
		string(r.RequesterID),
		string(r.OrganizationID),
		r.PatientName,
		r.BloodGroup, r.Component, r.Quantity, r.Priority,
		string(r.Status),
		r.StatusVersion,
		r.Payment.Amount.Amount,
		r.Payment.Amount.Currency,
		string(r.Payment.Status),
		r.CreatedAt,
	)
	return err
}

const requestColumns = `
        id, requester_id, organization_id, patient_name,
        blood_group, component, quantity, priority,
        status, status_version,
        driver_name, contact_number, vehicle_number,
        estimated_arrival, delivery_notes, delivery_otp,
        tracking_started, completed_at,
        payment_method, payment_amount, payment_currency,
        payment_upi_id, payment_note, payment_status, payment_txn_id,
        created_at`

func (s *Store) Get(ctx context.Context, id types.ID) (*Request, error) {
	row := s.db.QueryRow(ctx, `
        SELECT `+requestColumns+`
        FROM blood_requests
        WHERE id = $1`, string(id),
	)
	return scanRequest(row)
}

func (s *Store) ListByStatus(ctx context.Context, status Status) ([]*Request, error) {
	query := `SELECT ` + requestColumns + ` FROM blood_requests`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetPublic returns the tracking-page projection. The OTP column is
// deliberately not selected.
func (s *Store) GetPublic(ctx context.Context, id types.ID) (*PublicView, error) {
	row := s.db.QueryRow(ctx, `
        SELECT r.id, r.status,
               COALESCE(o.name, ''), COALESCE(o.address, ''),
               r.patient_name, r.blood_group, r.quantity,
               r.driver_name, r.vehicle_number, r.estimated_arrival, r.delivery_notes,
               r.payment_method, r.payment_amount, r.payment_currency,
               r.completed_at
        FROM blood_requests r
        LEFT JOIN organizations o ON o.id = r.organization_id
        WHERE r.id = $1`, string(id),
	)

	var v PublicView
	var driverName, vehicleNumber, notes, method sql.NullString
	var arrival, completedAt sql.NullTime
	err := row.Scan(
		&v.ID, &v.Status,
		&v.Organization.Name, &v.Organization.Address,
		&v.PatientName, &v.BloodGroup, &v.Quantity,
		&driverName, &vehicleNumber, &arrival, &notes,
		&method, &v.PaymentAmount.Amount, &v.PaymentAmount.Currency,
		&completedAt,
	)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	v.DriverName = driverName.String
	v.VehicleNumber = vehicleNumber.String
	v.Notes = notes.String
	v.PaymentMethod = method.String
	if arrival.Valid {
		v.EstimatedArrival = arrival.Time
	}
	v.CompletedAt = toTimePtr(completedAt)
	return &v, nil
}

// Approve performs the pending→approved CAS, writing the delivery details and
// OTP in the same statement so the record can never be approved without them.
func (s *Store) Approve(ctx context.Context, id types.ID, version int, d DeliveryDetails, upiID, note string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE blood_requests
        SET status = 'approved',
            status_version = status_version + 1,
            driver_name = $1,
            contact_number = $2,
            vehicle_number = $3,
            estimated_arrival = $4,
            delivery_notes = $5,
            delivery_otp = $6,
            payment_upi_id = $7,
            payment_note = $8
        WHERE id = $9 AND status = 'pending' AND status_version = $10`,
		d.DriverName,
		d.ContactNumber,
		d.VehicleNumber,
		d.EstimatedArrival,
		d.Notes,
		d.DeliveryOTP,
		upiID,
		note,
		string(id),
		version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateStatus performs a guarded transition without touching delivery
// details. completed_at is stamped exactly once, when entering completed.
func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE blood_requests
        SET status = $1,
            status_version = status_version + 1,
            completed_at = CASE WHEN $1 = 'completed' THEN NOW() ELSE completed_at END
        WHERE id = $2 AND status = $3 AND status_version = $4`,
		string(to),
		string(id),
		string(from),
		version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkTrackingStarted flips the flag false→true once. Returns false when it
// was already set or the order is not approved.
func (s *Store) MarkTrackingStarted(ctx context.Context, id types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE blood_requests
        SET tracking_started = TRUE
        WHERE id = $1 AND status = 'approved' AND NOT tracking_started`,
		string(id),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) SetPayment(ctx context.Context, id types.ID, method, txnID string, status PaymentStatus) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE blood_requests
        SET payment_method = $1,
            payment_txn_id = $2,
            payment_status = $3
        WHERE id = $4`,
		method, txnID, string(status), string(id),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO request_state_events (
            request_id, from_status, to_status, actor_type, actor_id, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.RequestID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		toStringPtr(e.ActorID),
		e.CreatedAt,
	)
	return err
}

// IncrOTPAttempts bumps the per-order mismatch counter and returns the new
// count. With no redis client configured the counter is a no-op (unlimited).
func (s *Store) IncrOTPAttempts(ctx context.Context, id types.ID) (int64, error) {
	if s.redis == nil {
		return 0, nil
	}
	key := otpAttemptsKey(id)
	pipe := s.redis.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, otpAttemptsTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (s *Store) OTPAttempts(ctx context.Context, id types.ID) (int64, error) {
	if s.redis == nil {
		return 0, nil
	}
	val, err := s.redis.Get(ctx, otpAttemptsKey(id)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func (s *Store) ResetOTPAttempts(ctx context.Context, id types.ID) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Del(ctx, otpAttemptsKey(id)).Err()
}

func otpAttemptsKey(id types.ID) string {
	return fmt.Sprintf(otpAttemptsKeyPrefix, string(id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*Request, error) {
	var r Request
	var driverName, contactNumber, vehicleNumber, notes, otp sql.NullString
	var method, upiID, payNote, txnID sql.NullString
	var arrival, completedAt sql.NullTime
	var trackingStarted bool

	err := row.Scan(
		&r.ID, &r.RequesterID, &r.OrganizationID, &r.PatientName,
		&r.BloodGroup, &r.Component, &r.Quantity, &r.Priority,
		&r.Status, &r.StatusVersion,
		&driverName, &contactNumber, &vehicleNumber,
		&arrival, &notes, &otp,
		&trackingStarted, &completedAt,
		&method, &r.Payment.Amount.Amount, &r.Payment.Amount.Currency,
		&upiID, &payNote, &r.Payment.Status, &txnID,
		&r.CreatedAt,
	)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if arrival.Valid {
		r.Delivery = &DeliveryDetails{
			DriverName:       driverName.String,
			ContactNumber:    contactNumber.String,
			VehicleNumber:    vehicleNumber.String,
			EstimatedArrival: arrival.Time,
			Notes:            notes.String,
			DeliveryOTP:      otp.String,
			TrackingStarted:  trackingStarted,
			CompletedAt:      toTimePtr(completedAt),
		}
	}
	r.Payment.Method = method.String
	r.Payment.UPIID = upiID.String
	r.Payment.Note = payNote.String
	r.Payment.TransactionID = txnID.String
	return &r, nil
}

// isNoRows matches both no-rows sentinels: pgx row scans return
// pgx.ErrNoRows, which is not linked to database/sql's sentinel here.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
