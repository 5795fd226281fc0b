package postgres

import (
	"context"
	"errors"
	"fmt"

	"prediction-trade-gateway/internal/core/domain"
	"prediction-trade-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const orderColumns = `id, user_id, client_order_id, market_id, token_id, side,
	size, limit_price, status, tx_signature, created_at, updated_at`

// OrderRepo implements ports.OrderRepository. The orders table has a
// unique index on (user_id, client_order_id) enforcing idempotency at
// the storage layer.
type OrderRepo struct {
	pool Pool
}

// NewOrderRepo creates a new OrderRepo.
func NewOrderRepo(pool Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

// Create inserts a new order within a database transaction.
func (r *OrderRepo) Create(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	query := `INSERT INTO orders (id, user_id, client_order_id, market_id, token_id, side,
		size, limit_price, status, tx_signature, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := tx.Exec(ctx, query,
		o.ID, o.UserID, o.ClientOrderID, o.MarketID, o.TokenID, o.Side,
		o.Size, o.LimitPrice, o.Status, o.TxSignature, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ErrDuplicateOrder()
		}
		return apperror.ErrDatabaseError(fmt.Errorf("insert order: %w", err))
	}
	return nil
}

// GetByID fetches an order by its UUID.
func (r *OrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return r.scanOrder(r.pool.QueryRow(ctx, query, id), "get order by id")
}

// GetByClientOrderID is the idempotency lookup, scoped per user.
func (r *OrderRepo) GetByClientOrderID(ctx context.Context, userID uuid.UUID, clientOrderID string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 AND client_order_id = $2`
	return r.scanOrder(r.pool.QueryRow(ctx, query, userID, clientOrderID), "get order by client_order_id")
}

// UpdateStatus records an order state transition.
func (r *OrderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus, txSignature *string) error {
	query := `UPDATE orders SET status = $2, tx_signature = $3, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, status, txSignature)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("update order status: %w", err))
	}
	return nil
}

// ListByUser returns the user's most recent orders.
func (r *OrderRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("list orders: %w", err))
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		err := rows.Scan(
			&o.ID, &o.UserID, &o.ClientOrderID, &o.MarketID, &o.TokenID, &o.Side,
			&o.Size, &o.LimitPrice, &o.Status, &o.TxSignature, &o.CreatedAt, &o.UpdatedAt,
		)
		if err != nil {
			return nil, apperror.ErrDatabaseError(fmt.Errorf("scan order: %w", err))
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("iterate orders: %w", err))
	}
	return orders, nil
}

func (r *OrderRepo) scanOrder(row pgx.Row, op string) (*domain.Order, error) {
	o := &domain.Order{}
	err := row.Scan(
		&o.ID, &o.UserID, &o.ClientOrderID, &o.MarketID, &o.TokenID, &o.Side,
		&o.Size, &o.LimitPrice, &o.Status, &o.TxSignature, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperror.ErrDatabaseError(fmt.Errorf("%s: %w", op, err))
	}
	return o, nil
}
