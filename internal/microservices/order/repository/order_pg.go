package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"restaurant-sync/internal/domain"
)

type OrderRepository struct {
	db *pgxpool.Pool
}

func NewOrderRepository(db *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, o domain.Order, changedBy string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// 1. order row
	if _, err := tx.Exec(ctx, `
		INSERT INTO orders (id, session_id, table_number, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, o.ID, o.SessionID, o.TableNumber, string(o.Status), o.Version, o.CreatedAt, o.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	// 2. items
	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (order_id, name, quantity, price)
			VALUES ($1, $2, $3, $4)
		`, o.ID, it.Name, it.Quantity, it.Price); err != nil {
			return fmt.Errorf("failed to insert order item %s: %w", it.Name, err)
		}
	}

	// 3. status log
	if err := insertLog(ctx, tx, o.ID, "", o.Status, o.Version, changedBy, o.CreatedAt); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertLog(ctx context.Context, tx pgx.Tx, id string, from, to domain.Status, version int64, by string, at any) error {
	var fromCol any
	if from != "" {
		fromCol = string(from)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO order_status_log (order_id, from_status, status, version, changed_by, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, fromCol, string(to), version, by, at); err != nil {
		return fmt.Errorf("failed to insert order status log: %w", err)
	}
	return nil
}

const selectOrder = `
	SELECT id, session_id, table_number, status, version, created_at, updated_at
	FROM orders`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o      domain.Order
		status string
	)
	if err := row.Scan(&o.ID, &o.SessionID, &o.TableNumber, &status, &o.Version, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.Status(status)
	return o, nil
}

func (r *OrderRepository) items(ctx context.Context, q interface {
	Query(context.Context, string, ...any) (pgx.Rows, error)
}, id string) ([]domain.OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT name, quantity, price::float8 FROM order_items WHERE order_id = $1 ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.OrderItem, error) {
		var it domain.OrderItem
		err := row.Scan(&it.Name, &it.Quantity, &it.Price)
		return it, err
	})
}

func (r *OrderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, selectOrder+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	if o.Items, err = r.items(ctx, r.db, id); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (r *OrderRepository) ListBySession(ctx context.Context, sessionID string) ([]domain.Order, error) {
	rows, err := r.db.Query(ctx, selectOrder+` WHERE session_id = $1 ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan orders: %w", err)
	}
	for i := range orders {
		if orders[i].Items, err = r.items(ctx, r.db, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *OrderRepository) Transition(ctx context.Context, id, changedBy string, fn MutateFunc) (domain.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.Order{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := scanOrder(tx.QueryRow(ctx, selectOrder+` WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("lock order: %w", err)
	}
	if cur.Items, err = r.items(ctx, tx, id); err != nil {
		return domain.Order{}, err
	}

	next, err := fn(cur)
	if err != nil {
		return domain.Order{}, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE orders SET status = $2, version = $3, updated_at = $4
		WHERE id = $1 AND version = $5
	`, id, string(next.Status), next.Version, next.UpdatedAt, cur.Version)
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return domain.Order{}, fmt.Errorf("order %s at version %d: %w", id, cur.Version, domain.ErrVersionConflict)
	}
	if err := insertLog(ctx, tx, id, cur.Status, next.Status, next.Version, changedBy, next.UpdatedAt); err != nil {
		return domain.Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return next, nil
}

func (r *OrderRepository) Timeline(ctx context.Context, id string) ([]domain.StatusLogEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT order_id, COALESCE(from_status, ''), status, version, changed_by, changed_at
		FROM order_status_log WHERE order_id = $1
		ORDER BY version ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("select timeline: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.StatusLogEntry, error) {
		var (
			e        domain.StatusLogEntry
			from, to string
		)
		err := row.Scan(&e.OrderID, &from, &to, &e.Version, &e.ChangedBy, &e.ChangedAt)
		e.From, e.Status = domain.Status(from), domain.Status(to)
		return e, err
	})
}
