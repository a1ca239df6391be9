package memory

import (
	"sync"

	"github.com/fastprodman/vmpay-authorizer/internal/repos/orders"
)

// ordersRepo keeps the ledger for the lifetime of the process.
type ordersRepo struct {
	mu     sync.RWMutex
	orders map[string]orders.Order
}

func New() *ordersRepo {
	return &ordersRepo{orders: make(map[string]orders.Order)}
}
