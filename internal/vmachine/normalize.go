package vmachine

import (
	"errors"
	"strings"
)

// ErrExtraction reports a result payload without its outcome field.
var ErrExtraction = errors.New("vmachine: result outcome not found")

// maxSearchDepth bounds the fallback walk; real envelopes nest a handful of
// levels.
const maxSearchDepth = 32

// Match tells how Normalize located the result payload.
type Match int

const (
	MatchNone Match = iota
	MatchPrimary
	MatchFallback
)

func (m Match) String() string {
	switch m {
	case MatchPrimary:
		return "primary"
	case MatchFallback:
		return "fallback"
	default:
		return "none"
	}
}

// Normalize locates the payload of op inside a decoded response.
//
// It first follows Envelope/Body/{op}Response/{op}Result. When the service
// skips a level, it falls back to a depth-first walk, in document order, for
// the first key containing "Result". Failing both it hands back tree itself
// and callers read every field as optional.
func Normalize(tree *Node, op string) (*Node, Match) {
	if n, ok := tree.Path("Envelope", "Body", op+"Response", op+"Result"); ok {
		return n, MatchPrimary
	}

	if n := findResult(tree, 0); n != nil {
		return n, MatchFallback
	}

	return tree, MatchNone
}

func findResult(n *Node, depth int) *Node {
	if n == nil || depth > maxSearchDepth {
		return nil
	}

	switch n.Kind {
	case Mapping:
		for _, k := range n.keys {
			child := n.index[k]
			if strings.Contains(k, "Result") {
				return child
			}

			if found := findResult(child, depth+1); found != nil {
				return found
			}
		}
	case Sequence:
		for _, item := range n.Items {
			if found := findResult(item, depth+1); found != nil {
				return found
			}
		}
	}

	return nil
}

func consumptionFrom(n *Node) (ConsumptionResult, error) {
	status, ok := n.String("Status")
	if !ok {
		return ConsumptionResult{}, ErrExtraction
	}

	name, _ := n.String("CustomerName")
	ticket, _ := n.String("PrintOrderTicketNumber")

	return ConsumptionResult{
		Status:                 status,
		CustomerName:           name,
		AvailableCredit:        n.Decimal("AvailableCredit"),
		Total:                  n.Decimal("Total"),
		PrintOrderTicketNumber: ticket,
	}, nil
}

func saleFrom(n *Node) (SaleResult, error) {
	c, err := consumptionFrom(n)
	if err != nil {
		return SaleResult{}, err
	}

	return SaleResult(c), nil
}

func reverseFrom(n *Node) (ReverseResult, error) {
	status, ok := n.String("Status")
	if !ok {
		return ReverseResult{}, ErrExtraction
	}

	msg, _ := n.String("Message")

	return ReverseResult{Status: status, Message: msg}, nil
}

func cancelSaleFrom(n *Node) (CancelSaleResult, error) {
	r, err := reverseFrom(n)
	if err != nil {
		return CancelSaleResult{}, err
	}

	return CancelSaleResult(r), nil
}

// balanceFrom has no Status to anchor on; any of the known fields counts as
// an outcome.
func balanceFrom(n *Node) (BalanceResult, error) {
	account, hasAccount := n.String("ConsumptionAccount")
	name, hasName := n.String("CustomerName")
	doc, hasDoc := n.String("Document")
	credit := n.Decimal("AvailableCredit")

	if !credit.Valid && !hasAccount && !hasName && !hasDoc {
		return BalanceResult{}, ErrExtraction
	}

	return BalanceResult{
		AvailableCredit:    credit,
		ConsumptionAccount: account,
		CustomerName:       name,
		Document:           doc,
	}, nil
}

func searchAccountsFrom(n *Node) (SearchAccountsResult, error) {
	status, ok := n.String("Status")
	if !ok {
		return SearchAccountsResult{}, ErrExtraction
	}

	msg, _ := n.String("Message")
	res := SearchAccountsResult{Status: status, Message: msg}

	list, ok := n.Path("Accounts", "AccountResult")
	if !ok {
		return res, nil
	}

	for _, a := range list.List() {
		id, _ := a.String("Id")
		name, _ := a.String("Name")
		doc, _ := a.String("Document")
		tag, _ := a.String("TagNumber")

		res.Accounts = append(res.Accounts, Account{
			ID:        id,
			Name:      name,
			Document:  doc,
			TagNumber: tag,
			Balance:   a.Decimal("Balance"),
			Active:    a.Bool("Active"),
		})
	}

	return res, nil
}
