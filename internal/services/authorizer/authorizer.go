package authorizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/fastprodman/vmpay-authorizer/internal/errcode"
	"github.com/fastprodman/vmpay-authorizer/internal/infra/metrics"
	"github.com/fastprodman/vmpay-authorizer/internal/repos/orders"
	"github.com/fastprodman/vmpay-authorizer/internal/vmachine"
)

// Vmachine is the slice of the SOAP client the service needs.
type Vmachine interface {
	PerformConsumption(ctx context.Context, req vmachine.ConsumptionRequest) (vmachine.ConsumptionResult, error)
	ReverseConsumption(ctx context.Context, req vmachine.ReverseRequest) (vmachine.ReverseResult, error)
	GetBalance(ctx context.Context, req vmachine.BalanceRequest) (vmachine.BalanceResult, error)
	Ping(ctx context.Context) error
}

type AuthorizerService struct {
	vm      Vmachine
	orders  orders.Orders
	metrics *metrics.Registry
}

func New(vm Vmachine, repo orders.Orders, m *metrics.Registry) *AuthorizerService {
	return &AuthorizerService{
		vm:      vm,
		orders:  repo,
		metrics: m,
	}
}

// Authorize debits the tag for the order's products:
//
// 1) Perform the consumption on the remote service.
// 2) Fold transport failures, faults and non-success statuses into one error code.
// 3) Record the attempt in the ledger, whatever its outcome.
func (s *AuthorizerService) Authorize(ctx context.Context, req AuthorizeRequest) AuthorizeOutcome {
	items := make([]vmachine.ProductItem, 0, len(req.Products))
	for _, p := range req.Products {
		items = append(items, vmachine.ProductItem{
			Code:      p.Code,
			Quantity:  p.Quantity,
			UnitPrice: p.UnitValue,
		})
	}

	res, err := s.vm.PerformConsumption(ctx, vmachine.ConsumptionRequest{
		TransactionID: req.OrderID,
		TagNumber:     req.TagNumber,
		MachineNumber: req.MachineNumber,
		Products:      items,
	})
	if err != nil {
		code := classifyFailure(errcode.FlowAuthorize, err)

		slog.WarnContext(ctx, "authorization failed",
			"order_uuid", req.OrderID, "occurred_at", req.OccurredAt, "error_code", code, "err", vmachine.Message(err))

		s.record(ctx, orders.Order{ID: req.OrderID})
		s.decline(errcode.FlowAuthorize, code)

		return AuthorizeOutcome{ErrorCode: code}
	}

	out := AuthorizeOutcome{
		Authorized:    res.Succeeded(),
		TagHolderName: res.CustomerName,
	}

	if !out.Authorized {
		out.ErrorCode = errcode.ClassifyStatus(errcode.FlowAuthorize, res.Status, "")
		s.decline(errcode.FlowAuthorize, out.ErrorCode)

		slog.InfoContext(ctx, "authorization declined",
			"order_uuid", req.OrderID, "status", res.Status, "error_code", out.ErrorCode)
	}

	s.record(ctx, orders.Order{
		ID:            req.OrderID,
		Authorized:    out.Authorized,
		TagHolderName: res.CustomerName,
		TransactionID: req.OrderID,
	})

	return out
}

// Rollback reverses the consumption recorded for orderID. An order the
// ledger already marks as reversed is answered locally.
func (s *AuthorizerService) Rollback(ctx context.Context, orderID string) RollbackOutcome {
	prev, err := s.orders.Get(ctx, orderID)
	if err == nil && prev.RolledBack {
		s.decline(errcode.FlowRollback, errcode.PreviouslyRolledBack)
		return RollbackOutcome{ErrorCode: errcode.PreviouslyRolledBack}
	}

	if err != nil && !errors.Is(err, orders.ErrOrderNotFound) {
		slog.ErrorContext(ctx, "read order ledger", "order_uuid", orderID, "err", err)
	}

	res, err := s.vm.ReverseConsumption(ctx, vmachine.ReverseRequest{TransactionID: orderID})
	if err != nil {
		code := classifyFailure(errcode.FlowRollback, err)

		slog.WarnContext(ctx, "rollback failed",
			"order_uuid", orderID, "error_code", code, "err", vmachine.Message(err))

		s.decline(errcode.FlowRollback, code)

		return RollbackOutcome{ErrorCode: code}
	}

	if !res.Succeeded() {
		code := errcode.ClassifyStatus(errcode.FlowRollback, res.Status, res.Message)
		s.decline(errcode.FlowRollback, code)

		slog.InfoContext(ctx, "rollback declined",
			"order_uuid", orderID, "status", res.Status, "error_code", code)

		return RollbackOutcome{ErrorCode: code}
	}

	// The remote reversal already happened; the ledger must reflect it.
	err = s.orders.MarkRolledBack(context.WithoutCancel(ctx), orderID)
	if err != nil {
		slog.ErrorContext(ctx, "mark order rolled back", "order_uuid", orderID, "err", err)
	}

	return RollbackOutcome{RolledBack: true}
}

// Balance returns the credit available to tagNumber. A result without a
// credit figure reads as zero.
func (s *AuthorizerService) Balance(ctx context.Context, tagNumber, machineNumber string) (decimal.Decimal, error) {
	res, err := s.vm.GetBalance(ctx, vmachine.BalanceRequest{
		TagNumber:     tagNumber,
		MachineNumber: machineNumber,
	})
	if err != nil {
		code := classifyFailure(errcode.FlowBalance, err)
		s.decline(errcode.FlowBalance, code)

		return decimal.Zero, &BalanceError{
			Code:    code,
			Message: vmachine.Message(err),
			Err:     err,
		}
	}

	if !res.AvailableCredit.Valid {
		return decimal.Zero, nil
	}

	return res.AvailableCredit.Decimal, nil
}

// Ready reports whether the remote service answers.
func (s *AuthorizerService) Ready(ctx context.Context) error {
	err := s.vm.Ping(ctx)
	if err != nil {
		return fmt.Errorf("vmachine not ready: %w", err)
	}

	return nil
}

// classifyFailure maps a failed call onto a code. Undecodable or shapeless
// responses carry no business signal.
func classifyFailure(flow errcode.Flow, err error) errcode.Code {
	if errors.Is(err, vmachine.ErrDecode) || errors.Is(err, vmachine.ErrExtraction) ||
		errors.Is(err, vmachine.ErrEnvelope) {
		return errcode.InternalError
	}

	return errcode.Classify(flow, vmachine.Message(err))
}

// record writes the ledger even when the caller has gone away.
func (s *AuthorizerService) record(ctx context.Context, o orders.Order) {
	err := s.orders.Save(context.WithoutCancel(ctx), o)
	if err != nil {
		slog.ErrorContext(ctx, "save order", "order_uuid", o.ID, "err", err)
	}
}

func (s *AuthorizerService) decline(flow errcode.Flow, code errcode.Code) {
	s.metrics.ObserveDecline(string(flow), string(code))
}
