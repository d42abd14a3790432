package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AFixt/meetabl-api/internal/domain"
)

// reserveLockClass namespaces the per-host advisory lock so it cannot collide
// with other advisory lock users on the same database.
const reserveLockClass = 0x6d74 // "mt"

// ReserveParams carries everything one reservation transaction needs. The
// transaction is the explicit unit of atomicity: lock acquisition, envelope
// re-validation, overlap check and insert all happen inside it.
type ReserveParams struct {
	Request       *domain.BookingRequest
	Buffer        time.Duration
	InitialStatus domain.BookingStatus
	Timeout       time.Duration

	// EnvelopeCheck re-validates that the candidate window still lies inside
	// a computable availability slot. It runs after the per-host lock is
	// held, so no concurrent reservation for the same host can invalidate
	// the answer before commit.
	EnvelopeCheck func(ctx context.Context) error
}

type BookingRepository interface {
	Reserve(ctx context.Context, params ReserveParams) (*domain.Booking, error)
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	GetByIDWithToken(ctx context.Context, id int64, token string) (*domain.Booking, error)
	ListBlockingInRange(ctx context.Context, hostID int64, from, to time.Time) ([]domain.Booking, error)
	ListByHost(ctx context.Context, hostID int64, limit, offset int, status *domain.BookingStatus) ([]domain.Booking, error)
	Save(ctx context.Context, b domain.Booking) (*domain.Booking, error)
}

type bookingRepository struct {
	pool *pgxpool.Pool
}

func NewBookingRepository(pool *pgxpool.Pool) BookingRepository {
	return &bookingRepository{pool: pool}
}

const bookingCols = `id, host_id, manage_token, status,
customer_name, customer_email, customer_phone,
start_time, end_time, timezone,
calendar_event_id, payment_intent_id,
created_at, updated_at`

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(
		&b.ID, &b.HostID, &b.ManageToken, &b.Status,
		&b.CustomerName, &b.CustomerEmail, &b.CustomerPhone,
		&b.StartTime, &b.EndTime, &b.Timezone,
		&b.CalendarEventID, &b.PaymentIntentID,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *bookingRepository) Reserve(ctx context.Context, params ReserveParams) (*domain.Booking, error) {
	req := params.Request
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, classify("reserve.begin", err)
	}
	defer tx.Rollback(ctx)

	// Serialize reservations per host. The lock is released at commit or
	// rollback; reservations for different hosts proceed in parallel.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, reserveLockClass, req.HostID); err != nil {
		return nil, classify("reserve.lock", err)
	}

	if params.EnvelopeCheck != nil {
		if err := params.EnvelopeCheck(ctx); err != nil {
			return nil, err
		}
	}

	// Overlap query over the buffer-expanded window. Half-open comparison
	// keeps strictly back-to-back bookings conflict-free when buffer is 0.
	expanded := req.Window().Expand(params.Buffer)
	const overlapQ = `SELECT count(*) FROM bookings
		WHERE host_id = $1
		  AND status IN ('pending_payment', 'confirmed')
		  AND start_time < $3 AND end_time > $2`
	var overlapping int
	if err := tx.QueryRow(ctx, overlapQ, req.HostID, expanded.Start, expanded.End).Scan(&overlapping); err != nil {
		return nil, classify("reserve.overlap", err)
	}
	if overlapping > 0 {
		return nil, &domain.ConflictError{HostID: req.HostID, Window: req.Window()}
	}

	const insertQ = `INSERT INTO bookings (
		host_id, manage_token, status,
		customer_name, customer_email, customer_phone,
		start_time, end_time, timezone
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	RETURNING ` + bookingCols

	booking, err := scanBooking(tx.QueryRow(ctx, insertQ,
		req.HostID, uuid.NewString(), params.InitialStatus,
		req.CustomerName, req.CustomerEmail, req.CustomerPhone,
		req.StartTime.UTC(), req.EndTime.UTC(), req.Timezone,
	))
	if err != nil {
		return nil, classify("reserve.insert", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, classify("reserve.commit", err)
	}
	return booking, nil
}

func (r *bookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	b, err := scanBooking(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return b, err
}

func (r *bookingRepository) GetByIDWithToken(ctx context.Context, id int64, token string) (*domain.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings WHERE id=$1 AND manage_token=$2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	b, err := scanBooking(r.pool.QueryRow(ctx, q, id, token))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return b, err
}

// ListBlockingInRange returns pending_payment and confirmed bookings
// overlapping [from, to). This is the single source of truth for overlap
// checks; caches may only ever serve as hints.
func (r *bookingRepository) ListBlockingInRange(ctx context.Context, hostID int64, from, to time.Time) ([]domain.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings
		WHERE host_id = $1
		  AND status IN ('pending_payment', 'confirmed')
		  AND start_time < $3 AND end_time > $2
		ORDER BY start_time`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, hostID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func (r *bookingRepository) ListByHost(ctx context.Context, hostID int64, limit, offset int, status *domain.BookingStatus) ([]domain.Booking, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	q := `SELECT ` + bookingCols + ` FROM bookings WHERE host_id=$1`
	args := []any{hostID}
	if status != nil {
		q += ` AND status=$2 ORDER BY start_time DESC LIMIT $3 OFFSET $4`
		args = append(args, *status, limit, offset)
	} else {
		q += ` ORDER BY start_time DESC LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

// Save persists the outcome of a domain transition function. Status,
// calendar reference and payment reference are the only mutable columns.
func (r *bookingRepository) Save(ctx context.Context, b domain.Booking) (*domain.Booking, error) {
	const q = `UPDATE bookings SET
		status = $2,
		calendar_event_id = $3,
		payment_intent_id = $4,
		updated_at = now()
	WHERE id = $1
	RETURNING ` + bookingCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	saved, err := scanBooking(r.pool.QueryRow(ctx, q, b.ID, b.Status, b.CalendarEventID, b.PaymentIntentID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return saved, err
}
