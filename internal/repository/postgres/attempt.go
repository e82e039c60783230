package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/utafrali/TableOrder/internal/domain"
	"github.com/utafrali/TableOrder/pkg/database"
	apperrors "github.com/utafrali/TableOrder/pkg/errors"
)

const attemptColumns = `id, tenant, table_number, restaurant_id, currency, state, method,
	tip, items, subtotal, service_fee, tip_amount, total,
	payment_id, client_secret, order_id, order_number,
	confirmation_pending, poll_attempts, failure_kind, failure_reason,
	abandoned, version, created_at, updated_at, completed_at`

// AttemptRepository implements repository.AttemptRepository using PostgreSQL.
type AttemptRepository struct {
	db database.DBTX
}

// NewAttemptRepository creates a new PostgreSQL-backed attempt repository.
func NewAttemptRepository(db database.DBTX) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// Create inserts a new checkout attempt.
func (r *AttemptRepository) Create(ctx context.Context, a *domain.Attempt) (err error) {
	ctx, end := database.TraceQuery(ctx, "attempt.create", "INSERT INTO checkout_attempts")
	defer func() { end(err) }()

	tipJSON, itemsJSON, err := marshalSnapshot(a)
	if err != nil {
		return err
	}

	query := `INSERT INTO checkout_attempts (` + attemptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`

	_, err = r.db.Exec(ctx, query,
		a.ID, a.Tenant, a.Table, a.RestaurantID, a.Currency, string(a.State), nullableString(string(a.Method)),
		tipJSON, itemsJSON, a.Totals.Subtotal, a.Totals.ServiceFee, a.Totals.Tip, a.Totals.Total,
		nullableString(a.PaymentID), nullableString(a.ClientSecret), nullableString(a.OrderID), nullableString(a.OrderNumber),
		a.ConfirmationPending, a.PollAttempts, nullableString(string(a.FailureKind)), nullableString(a.FailureReason),
		a.Abandoned, a.Version, a.CreatedAt, a.UpdatedAt, a.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict(fmt.Sprintf("table %d already has an open checkout", a.Table))
		}
		return fmt.Errorf("insert checkout attempt: %w", err)
	}
	return nil
}

// GetByID retrieves an attempt by its ID.
func (r *AttemptRepository) GetByID(ctx context.Context, id string) (_ *domain.Attempt, err error) {
	ctx, end := database.TraceQuery(ctx, "attempt.get", "SELECT checkout_attempts BY id")
	defer func() { end(err) }()

	query := `SELECT ` + attemptColumns + ` FROM checkout_attempts WHERE id = $1`
	a, err := scanAttempt(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("checkout attempt", id)
		}
		return nil, fmt.Errorf("get checkout attempt %s: %w", id, err)
	}
	return a, nil
}

// GetOpenByTable retrieves the table's attempt that is neither completed nor
// abandoned.
func (r *AttemptRepository) GetOpenByTable(ctx context.Context, tenant string, table int) (_ *domain.Attempt, err error) {
	ctx, end := database.TraceQuery(ctx, "attempt.get_open", "SELECT checkout_attempts BY open table")
	defer func() { end(err) }()

	query := `SELECT ` + attemptColumns + ` FROM checkout_attempts
		WHERE tenant = $1 AND table_number = $2 AND NOT abandoned AND state <> 'completed'
		ORDER BY created_at DESC LIMIT 1`
	a, err := scanAttempt(r.db.QueryRow(ctx, query, tenant, table))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("open checkout for table", fmt.Sprintf("%s/%d", tenant, table))
		}
		return nil, fmt.Errorf("get open checkout attempt: %w", err)
	}
	return a, nil
}

// GetByPaymentID retrieves the attempt holding a provisional payment.
func (r *AttemptRepository) GetByPaymentID(ctx context.Context, paymentID string) (_ *domain.Attempt, err error) {
	ctx, end := database.TraceQuery(ctx, "attempt.get_by_payment", "SELECT checkout_attempts BY payment_id")
	defer func() { end(err) }()

	query := `SELECT ` + attemptColumns + ` FROM checkout_attempts
		WHERE payment_id = $1 ORDER BY updated_at DESC LIMIT 1`
	a, err := scanAttempt(r.db.QueryRow(ctx, query, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("checkout attempt for payment", paymentID)
		}
		return nil, fmt.Errorf("get checkout attempt by payment %s: %w", paymentID, err)
	}
	return a, nil
}

// Update writes every mutable column of a. The write only applies when the
// stored version still equals a.Version.
func (r *AttemptRepository) Update(ctx context.Context, a *domain.Attempt) (err error) {
	ctx, end := database.TraceQuery(ctx, "attempt.update", "UPDATE checkout_attempts")
	defer func() { end(err) }()

	tipJSON, itemsJSON, err := marshalSnapshot(a)
	if err != nil {
		return err
	}

	query := `UPDATE checkout_attempts SET
			state = $2, method = $3, tip = $4, items = $5,
			subtotal = $6, service_fee = $7, tip_amount = $8, total = $9,
			payment_id = $10, client_secret = $11, order_id = $12, order_number = $13,
			confirmation_pending = $14, poll_attempts = $15,
			failure_kind = $16, failure_reason = $17, abandoned = $18,
			version = version + 1, updated_at = $19, completed_at = $20
		WHERE id = $1 AND version = $21`

	tag, err := r.db.Exec(ctx, query,
		a.ID, string(a.State), nullableString(string(a.Method)), tipJSON, itemsJSON,
		a.Totals.Subtotal, a.Totals.ServiceFee, a.Totals.Tip, a.Totals.Total,
		nullableString(a.PaymentID), nullableString(a.ClientSecret), nullableString(a.OrderID), nullableString(a.OrderNumber),
		a.ConfirmationPending, a.PollAttempts,
		nullableString(string(a.FailureKind)), nullableString(a.FailureReason), a.Abandoned,
		a.UpdatedAt, a.CompletedAt, a.Version,
	)
	if err != nil {
		return fmt.Errorf("update checkout attempt %s: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.Conflict(fmt.Sprintf("checkout %s was modified concurrently", a.ID))
	}
	a.Version++
	return nil
}

// ListUnresolved returns paid attempts whose order number is still unknown:
// completed ones awaiting confirmation and ones whose polling stopped
// without an outcome.
func (r *AttemptRepository) ListUnresolved(ctx context.Context, before time.Time, limit int) (_ []domain.Attempt, err error) {
	ctx, end := database.TraceQuery(ctx, "attempt.list_unresolved", "SELECT checkout_attempts WHERE confirmation_pending")
	defer func() { end(err) }()

	query := `SELECT ` + attemptColumns + ` FROM checkout_attempts
		WHERE NOT abandoned AND payment_id IS NOT NULL AND updated_at < $1
			AND ((state = 'completed' AND confirmation_pending) OR state = 'polling_order')
		ORDER BY updated_at ASC
		LIMIT $2`

	return r.list(ctx, query, before, limit)
}

// ListByTable returns the most recent attempts of a table.
func (r *AttemptRepository) ListByTable(ctx context.Context, tenant string, table int, limit int) (_ []domain.Attempt, err error) {
	ctx, end := database.TraceQuery(ctx, "attempt.list_by_table", "SELECT checkout_attempts BY table")
	defer func() { end(err) }()

	query := `SELECT ` + attemptColumns + ` FROM checkout_attempts
		WHERE tenant = $1 AND table_number = $2
		ORDER BY created_at DESC
		LIMIT $3`

	return r.list(ctx, query, tenant, table, limit)
}

func (r *AttemptRepository) list(ctx context.Context, query string, args ...any) ([]domain.Attempt, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list checkout attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkout attempt: %w", err)
		}
		attempts = append(attempts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkout attempts: %w", err)
	}
	return attempts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*domain.Attempt, error) {
	var (
		a             domain.Attempt
		state         string
		method        *string
		tipJSON       []byte
		itemsJSON     []byte
		paymentID     *string
		clientSecret  *string
		orderID       *string
		orderNumber   *string
		failureKind   *string
		failureReason *string
	)

	err := row.Scan(
		&a.ID, &a.Tenant, &a.Table, &a.RestaurantID, &a.Currency, &state, &method,
		&tipJSON, &itemsJSON, &a.Totals.Subtotal, &a.Totals.ServiceFee, &a.Totals.Tip, &a.Totals.Total,
		&paymentID, &clientSecret, &orderID, &orderNumber,
		&a.ConfirmationPending, &a.PollAttempts, &failureKind, &failureReason,
		&a.Abandoned, &a.Version, &a.CreatedAt, &a.UpdatedAt, &a.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	a.State = domain.State(state)
	a.Method = domain.PaymentMethod(deref(method))
	a.PaymentID = deref(paymentID)
	a.ClientSecret = deref(clientSecret)
	a.OrderID = deref(orderID)
	a.OrderNumber = deref(orderNumber)
	a.FailureKind = domain.FailureKind(deref(failureKind))
	a.FailureReason = deref(failureReason)

	if len(tipJSON) > 0 {
		if err := json.Unmarshal(tipJSON, &a.Tip); err != nil {
			return nil, fmt.Errorf("unmarshal tip: %w", err)
		}
	}
	if err := json.Unmarshal(itemsJSON, &a.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	return &a, nil
}

func marshalSnapshot(a *domain.Attempt) (tipJSON, itemsJSON []byte, err error) {
	tipJSON, err = json.Marshal(a.Tip)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal tip: %w", err)
	}
	items := a.Items
	if items == nil {
		items = []domain.CartItem{}
	}
	itemsJSON, err = json.Marshal(items)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal items: %w", err)
	}
	return tipJSON, itemsJSON, nil
}

// isUniqueViolation reports a PostgreSQL unique constraint violation
// (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
