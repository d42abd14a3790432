package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AFixt/meetabl-api/internal/domain"
)

type UserRepository interface {
	Create(ctx context.Context, u *domain.User) (*domain.User, error)
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateSettings(ctx context.Context, u *domain.User) (*domain.User, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userCols = `id, name, email, phone, password_hash,
timezone, reminder_offset, min_advance_notice_minutes, max_advance_days,
calendar_provider, calendar_token,
requires_payment, price_cents, currency,
created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	var minAdvanceMinutes int
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.Phone, &u.PasswordHash,
		&u.Timezone, &u.ReminderOffset, &minAdvanceMinutes, &u.MaxAdvanceDays,
		&u.CalendarProvider, &u.CalendarToken,
		&u.RequiresPayment, &u.PriceCents, &u.Currency,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.MinAdvanceNotice = time.Duration(minAdvanceMinutes) * time.Minute
	return &u, nil
}

func (r *userRepository) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	const q = `INSERT INTO users (
		name, email, phone, password_hash,
		timezone, reminder_offset, min_advance_notice_minutes, max_advance_days,
		calendar_provider, calendar_token,
		requires_payment, price_cents, currency
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	RETURNING ` + userCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanUser(r.pool.QueryRow(ctx, q,
		u.Name, u.Email, u.Phone, u.PasswordHash,
		u.Timezone, u.ReminderOffset, int(u.MinAdvanceNotice.Minutes()), u.MaxAdvanceDays,
		u.CalendarProvider, u.CalendarToken,
		u.RequiresPayment, u.PriceCents, u.Currency,
	))
}

func (r *userRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := scanUser(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE lower(email)=lower($1)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := scanUser(r.pool.QueryRow(ctx, q, email))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (r *userRepository) UpdateSettings(ctx context.Context, u *domain.User) (*domain.User, error) {
	const q = `UPDATE users SET
		name = $2,
		phone = $3,
		timezone = $4,
		reminder_offset = $5,
		min_advance_notice_minutes = $6,
		max_advance_days = $7,
		calendar_provider = $8,
		calendar_token = $9,
		requires_payment = $10,
		price_cents = $11,
		currency = $12,
		updated_at = now()
	WHERE id = $1
	RETURNING ` + userCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	updated, err := scanUser(r.pool.QueryRow(ctx, q,
		u.ID, u.Name, u.Phone,
		u.Timezone, u.ReminderOffset, int(u.MinAdvanceNotice.Minutes()), u.MaxAdvanceDays,
		u.CalendarProvider, u.CalendarToken,
		u.RequiresPayment, u.PriceCents, u.Currency,
	))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return updated, err
}
