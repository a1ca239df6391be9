package authorizer

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fastprodman/vmpay-authorizer/internal/errcode"
)

type Product struct {
	Code      string
	Quantity  int
	UnitValue decimal.Decimal
}

type AuthorizeRequest struct {
	OrderID       string
	TagNumber     string
	MachineNumber string
	OccurredAt    time.Time
	Products      []Product
}

// AuthorizeOutcome is always a valid answer: failures are folded into
// ErrorCode.
type AuthorizeOutcome struct {
	Authorized    bool
	ErrorCode     errcode.Code
	TagHolderName string
}

type RollbackOutcome struct {
	RolledBack bool
	ErrorCode  errcode.Code
}

var ErrTagNotFound = errors.New("tag not found")

// BalanceError is returned by Balance for every failed lookup.
type BalanceError struct {
	Code    errcode.Code
	Message string
	Err     error
}

func (e *BalanceError) Error() string {
	return "balance lookup: " + string(e.Code) + ": " + e.Message
}

func (e *BalanceError) Unwrap() error { return e.Err }

func (e *BalanceError) Is(target error) bool {
	return target == ErrTagNotFound && e.Code == errcode.InvalidTag
}
