package orders

import (
	"context"
	"errors"
)

var ErrOrderNotFound = errors.New("order not found")

// Order is what the service remembers about an authorization attempt.
type Order struct {
	ID            string
	Authorized    bool
	RolledBack    bool
	TagHolderName string
	TransactionID string
}

type Orders interface {
	// Save records an authorization attempt, replacing any earlier attempt
	// for the same order.
	Save(ctx context.Context, order Order) error
	Get(ctx context.Context, orderID string) (Order, error)
	// MarkRolledBack flags the order as reversed, creating the record when
	// the attempt predates this process.
	MarkRolledBack(ctx context.Context, orderID string) error
}
