package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/clinicore/clinicore/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Payment Repository ===========

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const paymentCols = `id, clinic_id, client_id, amount, method, source, credit_type, sessions_paid,
	receipt_number, recorded_by, status, notes, payment_date, created_at, updated_at`

func (r *repoPG) scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.ClinicID, &p.ClientID, &p.Amount, &p.Method, &p.Source, &p.CreditType,
		&p.SessionsPaid, &p.ReceiptNumber, &p.RecordedBy, &p.Status, &p.Notes, &p.PaymentDate,
		&p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO payment (id, clinic_id, client_id, amount, method, source, credit_type, sessions_paid,
			receipt_number, recorded_by, status, notes, payment_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		p.ID, p.ClinicID, p.ClientID, p.Amount, p.Method, p.Source, p.CreditType, p.SessionsPaid,
		p.ReceiptNumber, p.RecordedBy, p.Status, p.Notes, p.PaymentDate)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return r.scanPayment(r.conn(ctx).QueryRow(ctx, `SELECT `+paymentCols+` FROM payment WHERE id = $1`, id))
}

func (r *repoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return r.scanPayment(r.conn(ctx).QueryRow(ctx, `SELECT `+paymentCols+` FROM payment WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) ReceiptExists(ctx context.Context, receipt string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payment WHERE receipt_number = $1)`, receipt).Scan(&exists)
	return exists, err
}

func (r *repoPG) MarkVoided(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE payment SET status = 'voided', updated_at = NOW()
		WHERE id = $1 AND status = 'completed'`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) CreateLink(ctx context.Context, l *PaymentSession) error {
	l.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO payment_session (id, payment_id, session_id, amount)
		VALUES ($1,$2,$3,$4)`,
		l.ID, l.PaymentID, l.SessionID, l.Amount)
	return err
}

func (r *repoPG) CountLinks(ctx context.Context, paymentID uuid.UUID) (int, error) {
	var count int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM payment_session WHERE payment_id = $1`, paymentID).Scan(&count)
	return count, err
}

func (r *repoPG) LinkExistsForSession(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payment_session WHERE session_id = $1)`, sessionID).Scan(&exists)
	return exists, err
}

func (r *repoPG) ListLinks(ctx context.Context, paymentID uuid.UUID) ([]*PaymentSession, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, payment_id, session_id, amount, created_at
		FROM payment_session WHERE payment_id = $1 ORDER BY created_at ASC`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*PaymentSession
	for rows.Next() {
		var l PaymentSession
		if err := rows.Scan(&l.ID, &l.PaymentID, &l.SessionID, &l.Amount, &l.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &l)
	}
	return items, nil
}

func (r *repoPG) ListAdvanceByClient(ctx context.Context, clientID uuid.UUID) ([]*AdvanceCredit, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT p.id, p.clinic_id, p.client_id, p.amount, p.method, p.source, p.credit_type,
			p.sessions_paid, p.receipt_number, p.recorded_by, p.status, p.notes, p.payment_date,
			p.created_at, p.updated_at, COUNT(ps.id) AS used
		FROM payment p
		LEFT JOIN payment_session ps ON ps.payment_id = p.id
		WHERE p.client_id = $1 AND p.credit_type = 'advance' AND p.status = 'completed'
		GROUP BY p.id
		HAVING p.sessions_paid - COUNT(ps.id) > 0
		ORDER BY p.payment_date ASC`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*AdvanceCredit
	for rows.Next() {
		var p Payment
		var used int
		if err := rows.Scan(&p.ID, &p.ClinicID, &p.ClientID, &p.Amount, &p.Method, &p.Source, &p.CreditType,
			&p.SessionsPaid, &p.ReceiptNumber, &p.RecordedBy, &p.Status, &p.Notes, &p.PaymentDate,
			&p.CreatedAt, &p.UpdatedAt, &used); err != nil {
			return nil, err
		}
		items = append(items, &AdvanceCredit{
			Payment:           &p,
			SessionsUsed:      used,
			SessionsRemaining: p.SessionsPaid - used,
		})
	}
	return items, nil
}

func (r *repoPG) SumCompletedForRange(ctx context.Context, clinicID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM payment
		WHERE clinic_id = $1 AND status = 'completed' AND credit_type <> 'no_payment'
		  AND payment_date >= $2 AND payment_date < $3`,
		clinicID, from, to).Scan(&sum)
	return sum, err
}

func (r *repoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Payment, int, error) {
	query := `SELECT ` + paymentCols + ` FROM payment WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM payment WHERE 1=1`
	var args []interface{}
	idx := 1

	if p, ok := params["clinic"]; ok {
		query += fmt.Sprintf(` AND clinic_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND clinic_id = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["client"]; ok {
		query += fmt.Sprintf(` AND client_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND client_id = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["status"]; ok {
		query += fmt.Sprintf(` AND status = $%d`, idx)
		countQuery += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["credit_type"]; ok {
		query += fmt.Sprintf(` AND credit_type = $%d`, idx)
		countQuery += fmt.Sprintf(` AND credit_type = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["from"]; ok {
		query += fmt.Sprintf(` AND payment_date >= $%d`, idx)
		countQuery += fmt.Sprintf(` AND payment_date >= $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["to"]; ok {
		query += fmt.Sprintf(` AND payment_date < $%d`, idx)
		countQuery += fmt.Sprintf(` AND payment_date < $%d`, idx)
		args = append(args, p)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY payment_date DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Payment
	for rows.Next() {
		p, err := r.scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}

func (r *repoPG) HasLinkedPaymentForDay(ctx context.Context, clientID, clinicID uuid.UUID, day time.Time) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM payment_session ps
			JOIN payment p ON p.id = ps.payment_id
			JOIN session s ON s.id = ps.session_id
			WHERE p.status = 'completed'
			  AND s.client_id = $1 AND s.clinic_id = $2 AND s.scheduled_date = $3
		)`, clientID, clinicID, day).Scan(&exists)
	return exists, err
}

// =========== Rate Repository ===========

type rateRepoPG struct{ pool *pgxpool.Pool }

func NewRateRepoPG(pool *pgxpool.Pool) RateRepository { return &rateRepoPG{pool: pool} }

func (r *rateRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const rateCols = `id, clinic_id, role, rate, effective_from, effective_to, created_at`

func (r *rateRepoPG) Create(ctx context.Context, sr *SessionRate) error {
	sr.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO session_rate (id, clinic_id, role, rate, effective_from, effective_to)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		sr.ID, sr.ClinicID, sr.Role, sr.Rate, sr.EffectiveFrom, sr.EffectiveTo)
	return err
}

func (r *rateRepoPG) ListByClinic(ctx context.Context, clinicID uuid.UUID) ([]*SessionRate, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+rateCols+` FROM session_rate WHERE clinic_id = $1 ORDER BY role, effective_from DESC`, clinicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*SessionRate
	for rows.Next() {
		var sr SessionRate
		if err := rows.Scan(&sr.ID, &sr.ClinicID, &sr.Role, &sr.Rate,
			&sr.EffectiveFrom, &sr.EffectiveTo, &sr.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &sr)
	}
	return items, nil
}

func (r *rateRepoPG) Resolve(ctx context.Context, clinicID uuid.UUID, role string, asOf time.Time) (decimal.Decimal, error) {
	// Deterministic tie-break keeps resolution total even when two rows
	// share an effective_from.
	var rate decimal.Decimal
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT rate FROM session_rate
		WHERE clinic_id = $1 AND role = $2
		  AND effective_from <= $3
		  AND (effective_to IS NULL OR effective_to >= $3)
		ORDER BY effective_from DESC, created_at DESC, id DESC
		LIMIT 1`, clinicID, role, asOf).Scan(&rate)
	if err == pgx.ErrNoRows {
		return decimal.Zero, nil
	}
	return rate, err
}
