package parties

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerdesk/ledgerdesk/internal/platform/db"
	"github.com/ledgerdesk/ledgerdesk/internal/platform/httpx"
)

// Repository persists parties.
type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Party, error)
	Get(ctx context.Context, id int64) (Party, error)
	Create(ctx context.Context, party Party) (Party, error)
}

type repository struct {
	db *pgxpool.Pool
}

var _ Repository = (*repository)(nil)

// NewRepository returns a Postgres backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const partyColumns = `id, kind, name, tax_id, postal_code, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Party, error) {
	query := `SELECT ` + partyColumns + ` FROM parties WHERE kind = $1`
	args := []interface{}{string(filters.Kind)}

	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		query += ` AND (name ILIKE $` + strconv.Itoa(len(args)) + ` OR tax_id ILIKE $` + strconv.Itoa(len(args)) + `)`
	}
	query += ` ORDER BY id ASC`
	if filters.Limit > 0 {
		args = append(args, filters.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
		args = append(args, filters.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list parties: %w", err)
	}
	defer rows.Close()

	var out []Party
	for rows.Next() {
		var p Party
		var kind string
		if err := rows.Scan(&p.ID, &kind, &p.Name, &p.TaxID, &p.PostalCode, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Kind = Kind(kind)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Party, error) {
	var p Party
	var kind string
	err := r.db.QueryRow(ctx, `SELECT `+partyColumns+` FROM parties WHERE id = $1`, id).
		Scan(&p.ID, &kind, &p.Name, &p.TaxID, &p.PostalCode, &p.CreatedAt, &p.UpdatedAt)
	if db.IsNoRows(err) {
		return Party{}, fmt.Errorf("party %d: %w", id, httpx.ErrNotFound)
	}
	if err != nil {
		return Party{}, err
	}
	p.Kind = Kind(kind)
	return p, nil
}

func (r *repository) Create(ctx context.Context, party Party) (Party, error) {
	now := time.Now().UTC()
	err := r.db.QueryRow(ctx,
		`INSERT INTO parties (kind, name, tax_id, postal_code, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $5) RETURNING id`,
		string(party.Kind), party.Name, party.TaxID, party.PostalCode, now,
	).Scan(&party.ID)
	if db.IsUniqueViolation(err) {
		return Party{}, fmt.Errorf("%s with tax id %s: %w", party.Kind, party.TaxID, httpx.ErrDuplicate)
	}
	if err != nil {
		return Party{}, err
	}
	party.CreatedAt = now
	party.UpdatedAt = now
	return party, nil
}
