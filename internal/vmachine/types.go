package vmachine

import (
	"time"

	"github.com/shopspring/decimal"
)

// Operation names as published by the service contract.
const (
	OpPerformConsumption = "PerformConsumption"
	OpReverseConsumption = "ReverseConsumption"
	OpGetBalance         = "GetBalance"
	OpPerformSale        = "PerformSale"
	OpCancelSale         = "CancelSale"
	OpSearchAccounts     = "SearchAccounts"
)

// StatusSuccess is the only Status value meaning the operation went through.
const StatusSuccess = "Success"

// ProductItem is one line of a consumption or sale.
type ProductItem struct {
	Code      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// ConsumptionRequest debits a tag for the given items.
type ConsumptionRequest struct {
	TransactionID string
	TagNumber     string
	MachineNumber string
	Products      []ProductItem
}

type ConsumptionResult struct {
	Status                 string
	CustomerName           string
	AvailableCredit        decimal.NullDecimal
	Total                  decimal.NullDecimal
	PrintOrderTicketNumber string
}

// Succeeded reports whether the service accepted the consumption.
func (r ConsumptionResult) Succeeded() bool { return r.Status == StatusSuccess }

// ReverseRequest undoes a previous consumption.
type ReverseRequest struct {
	TransactionID string
}

type ReverseResult struct {
	Status  string
	Message string
}

func (r ReverseResult) Succeeded() bool { return r.Status == StatusSuccess }

type BalanceRequest struct {
	TagNumber     string
	MachineNumber string
}

// BalanceResult carries whatever the service chose to return; every field
// is optional.
type BalanceResult struct {
	AvailableCredit    decimal.NullDecimal
	ConsumptionAccount string
	CustomerName       string
	Document           string
}

// SaleRequest is the direct-sale variant of a consumption.
type SaleRequest struct {
	TransactionID string
	TagNumber     string
	MachineNumber string
	Products      []ProductItem
	Date          time.Time
}

type SaleResult struct {
	Status                 string
	CustomerName           string
	AvailableCredit        decimal.NullDecimal
	Total                  decimal.NullDecimal
	PrintOrderTicketNumber string
}

func (r SaleResult) Succeeded() bool { return r.Status == StatusSuccess }

type CancelSaleRequest struct {
	TransactionID string
	MachineNumber string
	Date          time.Time
}

type CancelSaleResult struct {
	Status  string
	Message string
}

func (r CancelSaleResult) Succeeded() bool { return r.Status == StatusSuccess }

// SearchAccountsRequest filters accounts; empty fields are not sent.
type SearchAccountsRequest struct {
	TagNumber string
	Name      string
	Document  string
}

type Account struct {
	ID        string
	Name      string
	Document  string
	TagNumber string
	Balance   decimal.NullDecimal
	Active    bool
}

type SearchAccountsResult struct {
	Status   string
	Message  string
	Accounts []Account
}
