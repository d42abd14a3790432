package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AFixt/meetabl-api/internal/domain"
)

type RuleRepository interface {
	Create(ctx context.Context, rule *domain.AvailabilityRule) (*domain.AvailabilityRule, error)
	GetByID(ctx context.Context, id int64) (*domain.AvailabilityRule, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.AvailabilityRule, error)
	Update(ctx context.Context, rule *domain.AvailabilityRule) (*domain.AvailabilityRule, error)
	Delete(ctx context.Context, id, userID int64) (bool, error)
}

type ruleRepository struct {
	pool *pgxpool.Pool
}

func NewRuleRepository(pool *pgxpool.Pool) RuleRepository {
	return &ruleRepository{pool: pool}
}

// Lock class for per-user rule writes, distinct from reserveLockClass so
// rule edits and reservations never contend.
const ruleLockClass = 0x6d72 // "mr"

const ruleCols = `id, user_id, day_of_week, start_time, end_time,
buffer_minutes, max_bookings_per_day, created_at, updated_at`

func scanRule(row pgx.Row) (*domain.AvailabilityRule, error) {
	var rule domain.AvailabilityRule
	err := row.Scan(
		&rule.ID, &rule.UserID, &rule.DayOfWeek, &rule.StartTime, &rule.EndTime,
		&rule.BufferMinutes, &rule.MaxBookingsPerDay, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *ruleRepository) Create(ctx context.Context, rule *domain.AvailabilityRule) (*domain.AvailabilityRule, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	// Rules for the same user and day must not repeat the same (start, end)
	// pair. A plain read-then-insert races under read committed, so the
	// check runs under a per-user advisory lock held until commit.
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, classify("rule.begin", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, ruleLockClass, rule.UserID); err != nil {
		return nil, classify("rule.lock", err)
	}

	const dupQ = `SELECT count(*) FROM availability_rules
		WHERE user_id=$1 AND day_of_week=$2 AND start_time=$3 AND end_time=$4`
	var dup int
	if err := tx.QueryRow(ctx, dupQ, rule.UserID, rule.DayOfWeek, rule.StartTime, rule.EndTime).Scan(&dup); err != nil {
		return nil, err
	}
	if dup > 0 {
		return nil, &domain.ValidationError{Field: "start_time", Reason: "identical rule already exists for this day"}
	}

	const q = `INSERT INTO availability_rules (
		user_id, day_of_week, start_time, end_time, buffer_minutes, max_bookings_per_day
	) VALUES ($1,$2,$3,$4,$5,$6)
	RETURNING ` + ruleCols

	created, err := scanRule(tx.QueryRow(ctx, q,
		rule.UserID, rule.DayOfWeek, rule.StartTime, rule.EndTime,
		rule.BufferMinutes, rule.MaxBookingsPerDay,
	))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, classify("rule.commit", err)
	}
	return created, nil
}

func (r *ruleRepository) GetByID(ctx context.Context, id int64) (*domain.AvailabilityRule, error) {
	const q = `SELECT ` + ruleCols + ` FROM availability_rules WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rule, err := scanRule(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return rule, err
}

func (r *ruleRepository) ListByUser(ctx context.Context, userID int64) ([]domain.AvailabilityRule, error) {
	const q = `SELECT ` + ruleCols + ` FROM availability_rules
		WHERE user_id=$1 ORDER BY day_of_week, start_time`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.AvailabilityRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

func (r *ruleRepository) Update(ctx context.Context, rule *domain.AvailabilityRule) (*domain.AvailabilityRule, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	const q = `UPDATE availability_rules SET
		day_of_week = $3,
		start_time = $4,
		end_time = $5,
		buffer_minutes = $6,
		max_bookings_per_day = $7,
		updated_at = now()
	WHERE id = $1 AND user_id = $2
	RETURNING ` + ruleCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	updated, err := scanRule(r.pool.QueryRow(ctx, q,
		rule.ID, rule.UserID, rule.DayOfWeek, rule.StartTime, rule.EndTime,
		rule.BufferMinutes, rule.MaxBookingsPerDay,
	))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return updated, err
}

func (r *ruleRepository) Delete(ctx context.Context, id, userID int64) (bool, error) {
	const q = `DELETE FROM availability_rules WHERE id=$1 AND user_id=$2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id, userID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}
