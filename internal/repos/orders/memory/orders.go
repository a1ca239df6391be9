package memory

import (
	"context"
	"fmt"

	"github.com/fastprodman/vmpay-authorizer/internal/repos/orders"
)

func (r *ordersRepo) Save(ctx context.Context, order orders.Order) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("save order: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.orders[order.ID] = order

	return nil
}

func (r *ordersRepo) Get(ctx context.Context, orderID string) (orders.Order, error) {
	if err := ctx.Err(); err != nil {
		return orders.Order{}, fmt.Errorf("get order: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[orderID]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}

	return o, nil
}

func (r *ordersRepo) MarkRolledBack(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mark rolled back: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok {
		o = orders.Order{ID: orderID}
	}

	o.RolledBack = true
	r.orders[orderID] = o

	return nil
}
