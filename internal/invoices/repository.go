package invoices

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ledgerdesk/ledgerdesk/internal/platform/db"
	"github.com/ledgerdesk/ledgerdesk/internal/platform/httpx"
)

// Repository defines invoice data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	ListInvoices(ctx context.Context, filters ListFilters) ([]Invoice, error)
	ListParts(ctx context.Context, invoiceID int64) ([]Part, error)
}

// TxRepository defines operations within a transaction.
type TxRepository interface {
	LockInvoice(ctx context.Context, id int64) (Invoice, error)
	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	InsertPart(ctx context.Context, part Part) (Part, error)
}

var _ Repository = (*pgRepository)(nil)
var _ TxRepository = (*pgTxRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

type pgTxRepository struct {
	tx pgx.Tx
}

// NewRepository returns a Postgres backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

// amounts travel as text so numeric precision survives the round trip
const invoiceColumns = `id, direction, reference, issue_date, due_date, gross::text, net::text, tax::text, currency, party_id, project_id, created_at`

const partColumns = `id, code, description, quantity::text, unit_price::text, invoice_id, party_id, project_id, created_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var direction, gross, net, tax string
	if err := row.Scan(&inv.ID, &direction, &inv.Reference, &inv.IssueDate, &inv.DueDate,
		&gross, &net, &tax, &inv.Currency, &inv.PartyID, &inv.ProjectID, &inv.CreatedAt); err != nil {
		return Invoice{}, err
	}
	inv.Direction = Direction(direction)
	var err error
	if inv.Gross, err = decimal.NewFromString(gross); err != nil {
		return Invoice{}, fmt.Errorf("invoice %d gross: %w", inv.ID, err)
	}
	if inv.Net, err = decimal.NewFromString(net); err != nil {
		return Invoice{}, fmt.Errorf("invoice %d net: %w", inv.ID, err)
	}
	if inv.Tax, err = decimal.NewFromString(tax); err != nil {
		return Invoice{}, fmt.Errorf("invoice %d tax: %w", inv.ID, err)
	}
	return inv, nil
}

func scanPart(row pgx.Row) (Part, error) {
	var p Part
	var qty, price string
	if err := row.Scan(&p.ID, &p.Code, &p.Description, &qty, &price, &p.InvoiceID, &p.PartyID, &p.ProjectID, &p.CreatedAt); err != nil {
		return Part{}, err
	}
	var err error
	if p.Quantity, err = decimal.NewFromString(qty); err != nil {
		return Part{}, fmt.Errorf("part %d quantity: %w", p.ID, err)
	}
	if p.UnitPrice, err = decimal.NewFromString(price); err != nil {
		return Part{}, fmt.Errorf("part %d unit price: %w", p.ID, err)
	}
	return p, nil
}

func (r *pgRepository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return Invoice{}, fmt.Errorf("invoice %d: %w", id, ErrInvoiceNotFound)
	}
	return inv, err
}

func (r *pgRepository) ListInvoices(ctx context.Context, filters ListFilters) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE 1=1`
	var args []interface{}
	if filters.Direction != "" {
		args = append(args, string(filters.Direction))
		query += ` AND direction = $` + strconv.Itoa(len(args))
	}
	if filters.PartyID > 0 {
		args = append(args, filters.PartyID)
		query += ` AND party_id = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY issue_date DESC, id DESC`
	if filters.Limit > 0 {
		args = append(args, filters.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
		args = append(args, filters.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *pgRepository) ListParts(ctx context.Context, invoiceID int64) ([]Part, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+partColumns+` FROM parts WHERE invoice_id = $1 ORDER BY id ASC`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list parts: %w", err)
	}
	defer rows.Close()
	var out []Part
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *pgTxRepository) LockInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(t.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR SHARE`, id))
	if db.IsNoRows(err) {
		return Invoice{}, fmt.Errorf("invoice %d: %w", id, ErrInvoiceNotFound)
	}
	return inv, err
}

func (t *pgTxRepository) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	now := time.Now().UTC()
	err := t.tx.QueryRow(ctx, `INSERT INTO invoices
		(direction, reference, issue_date, due_date, gross, net, tax, currency, party_id, project_id, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8, $9, $10, $11)
		RETURNING id`,
		string(inv.Direction), inv.Reference, inv.IssueDate, inv.DueDate,
		inv.Gross.String(), inv.Net.String(), inv.Tax.String(),
		inv.Currency, inv.PartyID, inv.ProjectID, now,
	).Scan(&inv.ID)
	if db.IsForeignKeyViolation(err) {
		return Invoice{}, fmt.Errorf("%w: party %d or project %d does not exist", httpx.ErrValidation, inv.PartyID, inv.ProjectID)
	}
	if err != nil {
		return Invoice{}, fmt.Errorf("insert invoice: %w", err)
	}
	inv.CreatedAt = now
	return inv, nil
}

func (t *pgTxRepository) InsertPart(ctx context.Context, part Part) (Part, error) {
	now := time.Now().UTC()
	err := t.tx.QueryRow(ctx, `INSERT INTO parts
		(code, description, quantity, unit_price, invoice_id, party_id, project_id, created_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6, $7, $8)
		RETURNING id`,
		part.Code, part.Description, part.Quantity.String(), part.UnitPrice.String(),
		part.InvoiceID, part.PartyID, part.ProjectID, now,
	).Scan(&part.ID)
	if db.IsForeignKeyViolation(err) {
		return Part{}, fmt.Errorf("%w: part references a missing row", httpx.ErrValidation)
	}
	if err != nil {
		return Part{}, fmt.Errorf("insert part: %w", err)
	}
	part.CreatedAt = now
	return part, nil
}
