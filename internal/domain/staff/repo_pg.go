package staff

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const staffCols = `id, first_name, last_name, email, role, home_clinic_id, active, created_at, updated_at`

func (r *repoPG) scanActor(row pgx.Row) (*StaffActor, error) {
	var a StaffActor
	err := row.Scan(&a.ID, &a.FirstName, &a.LastName, &a.Email, &a.Role,
		&a.HomeClinicID, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *StaffActor) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO staff_actor (id, first_name, last_name, email, role, home_clinic_id, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, a.FirstName, a.LastName, a.Email, a.Role, a.HomeClinicID, a.Active)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*StaffActor, error) {
	return r.scanActor(r.conn(ctx).QueryRow(ctx, `SELECT `+staffCols+` FROM staff_actor WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*StaffActor, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM staff_actor`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+staffCols+` FROM staff_actor ORDER BY last_name, first_name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *repoPG) ListTherapists(ctx context.Context, clinicID *uuid.UUID, limit, offset int) ([]*StaffActor, int, error) {
	query := `SELECT ` + staffCols + ` FROM staff_actor WHERE active AND role LIKE '%therapist'`
	countQuery := `SELECT COUNT(*) FROM staff_actor WHERE active AND role LIKE '%therapist'`
	var args []interface{}
	idx := 1

	if clinicID != nil {
		query += fmt.Sprintf(` AND home_clinic_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND home_clinic_id = $%d`, idx)
		args = append(args, *clinicID)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY last_name, first_name LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *repoPG) collect(rows pgx.Rows, total int) ([]*StaffActor, int, error) {
	var items []*StaffActor
	for rows.Next() {
		a, err := r.scanActor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, nil
}

func (r *repoPG) RoleOf(ctx context.Context, id uuid.UUID) (string, error) {
	var role string
	err := r.conn(ctx).QueryRow(ctx, `SELECT role FROM staff_actor WHERE id = $1`, id).Scan(&role)
	return role, err
}

func (r *repoPG) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE staff_actor SET active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
