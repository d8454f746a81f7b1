package audit

import (
	"context"
	"fmt"
	"strings"

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

const auditCols = `id, actor_id, actor_email, actor_role, action, entity_type, entity_id,
	old_value, new_value, description, ip_address, clinic_id, created_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.ActorID, &e.ActorEmail, &e.ActorRole, &e.Action, &e.EntityType, &e.EntityID,
		&e.OldValue, &e.NewValue, &e.Description, &e.IPAddress, &e.ClinicID, &e.CreatedAt)
	return &e, err
}

func (r *repoPG) Create(ctx context.Context, e *Entry) error {
	e.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO audit_entry (id, actor_id, actor_email, actor_role, action, entity_type, entity_id,
			old_value, new_value, description, ip_address, clinic_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		e.ID, e.ActorID, e.ActorEmail, e.ActorRole, e.Action, e.EntityType, e.EntityID,
		e.OldValue, e.NewValue, e.Description, e.IPAddress, e.ClinicID)
	return err
}

func (r *repoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Entry, int, error) {
	var where []string
	var args []interface{}
	idx := 1

	addEq := func(col, val string) {
		where = append(where, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}

	if p, ok := params["entity_type"]; ok {
		addEq("entity_type", p)
	}
	if p, ok := params["entity_id"]; ok {
		addEq("entity_id", p)
	}
	if p, ok := params["actor_id"]; ok {
		addEq("actor_id", p)
	}
	if p, ok := params["action"]; ok {
		addEq("action", p)
	}
	if p, ok := params["clinic_id"]; ok {
		addEq("clinic_id", p)
	}
	if p, ok := params["from"]; ok {
		where = append(where, fmt.Sprintf("created_at >= $%d", idx))
		args = append(args, p)
		idx++
	}
	if p, ok := params["to"]; ok {
		where = append(where, fmt.Sprintf("created_at <= $%d", idx))
		args = append(args, p)
		idx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM audit_entry %s", whereClause)
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("SELECT %s FROM audit_entry %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		auditCols, whereClause, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, nil
}
