// Package errcode turns the free-text rejections of the vending-machine
// service into the fixed set of codes the REST API reports.
package errcode

import "strings"

// Code is a REST-facing rejection reason.
type Code string

const (
	InvalidTag           Code = "INVALID_TAG"
	InvalidMachine       Code = "INVALID_MACHINE"
	InvalidProduct       Code = "INVALID_PRODUCT"
	InsufficientBalance  Code = "INSUFFICIENT_BALANCE"
	MachineNotAllowed    Code = "MACHINE_NOT_ALLOWED"
	ProductNotAllowed    Code = "PRODUCT_NOT_ALLOWED"
	PreviouslyRolledBack Code = "PREVIOUSLY_ROLLED_BACK"
	InternalError        Code = "INTERNAL_ERROR"
)

// All lists every code in declaration order.
var All = []Code{
	InvalidTag,
	InvalidMachine,
	InvalidProduct,
	InsufficientBalance,
	MachineNotAllowed,
	ProductNotAllowed,
	PreviouslyRolledBack,
	InternalError,
}

func (c Code) String() string { return string(c) }

// Flow names the call site asking for a classification. Only rollback and
// balance recognize the "already reversed" rule.
type Flow string

const (
	FlowAuthorize Flow = "authorize"
	FlowRollback  Flow = "rollback"
	FlowBalance   Flow = "balance"
)

type rule struct {
	code    Code
	needles []string
	// flows restricts the rule; nil means every flow.
	flows []Flow
}

// rules are evaluated top to bottom; the first hit wins.
var rules = []rule{
	{
		code:    InsufficientBalance,
		needles: []string{"insufficient", "insuficient", "saldo", "not enough credit"},
	},
	{
		code: InvalidTag,
		needles: []string{
			"invalidtag", "invalidconsumptionaccount", "invalidconsumptionuid", "invalidaccount",
			"accountnotfound", "tag", "account", "cartão", "cartao",
		},
	},
	{
		code: InvalidMachine,
		needles: []string{
			"invalidposeid", "invalidpos", "invalidmachine", "machinenotfound", "posnotfound",
			"máquina inválida", "maquina invalida", "máquina não encontrada", "maquina nao encontrada",
		},
	},
	{
		code: InvalidProduct,
		needles: []string{
			"invalidproduct", "invaliditem", "productnotfound", "itemnotfound",
			"produto inválido", "produto invalido", "produto não encontrado", "produto nao encontrado",
		},
	},
	{
		code:    PreviouslyRolledBack,
		needles: []string{"consumptionalreadyreversed", "alreadyreversed", "already reversed", "já estornad", "ja estornad"},
		flows:   []Flow{FlowRollback, FlowBalance},
	},
}

var (
	notAllowedNeedles = []string{"notallowed", "not allowed", "não permitid", "nao permitid"}
	machineNeedles    = []string{"machine", "máquina", "maquina", "poseid"}
)

// Classify maps message onto exactly one Code. Matching is case-insensitive
// and stateless, so the same input always yields the same code.
func Classify(flow Flow, message string) Code {
	msg := strings.ToLower(message)

	for _, r := range rules {
		if !r.appliesTo(flow) {
			continue
		}

		if containsAny(msg, r.needles) {
			return r.code
		}
	}

	if containsAny(msg, notAllowedNeedles) {
		if containsAny(msg, machineNeedles) {
			return MachineNotAllowed
		}

		return ProductNotAllowed
	}

	return InternalError
}

// ClassifyStatus classifies a business-level decline: the remote call
// succeeded but reported a non-success status. The status wins over the
// accompanying message when both carry a signal.
func ClassifyStatus(flow Flow, status, message string) Code {
	if code := Classify(flow, status); code != InternalError {
		return code
	}

	return Classify(flow, message)
}

func (r rule) appliesTo(flow Flow) bool {
	if r.flows == nil {
		return true
	}

	for _, f := range r.flows {
		if f == flow {
			return true
		}
	}

	return false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}

	return false
}
