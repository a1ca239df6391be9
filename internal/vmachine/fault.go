package vmachine

import (
	"errors"
	"strings"
)

// ErrFault reports a SOAP fault returned in place of a result.
var ErrFault = errors.New("vmachine: soap fault")

const (
	msgTimeout          = "vending service request timed out"
	msgConnectionFailed = "vending service connection failed"
)

// CallError is what every failed Client call returns. Message is the text
// the error classifier works on.
type CallError struct {
	Operation   string
	Type        string
	FaultString string
	Message     string
	StatusCode  int
	// Fault is set when the response carried a SOAP fault.
	Fault bool
	Err   error
}

func (e *CallError) Error() string { return e.Message }

func (e *CallError) Unwrap() error { return e.Err }

func (e *CallError) Is(target error) bool { return target == ErrFault && e.Fault }

// Message returns the classifier input carried by err.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Message
	}

	return err.Error()
}

type fault struct {
	typ    string
	reason string
}

// findFault looks for a fault node at the places the service is known to
// put one.
func findFault(tree *Node) (*Node, bool) {
	for _, path := range [][]string{
		{"Envelope", "Body", "Fault"},
		{"Body", "Fault"},
		{"Fault"},
	} {
		if n, ok := tree.Path(path...); ok {
			return n, true
		}
	}

	return nil, false
}

// readFault extracts the fault string and the optional detail type.
func readFault(n *Node) fault {
	var f fault

	f.reason, _ = n.String("faultstring")
	if f.reason == "" {
		// SOAP 1.2
		if text, ok := n.Path("Reason", "Text"); ok {
			f.reason = text.Value()
		}
	}

	detail, ok := n.Get("detail")
	if !ok {
		detail, ok = n.Get("Detail")
	}

	if ok {
		f.typ = detailType(detail)
	}

	return f
}

// detailType unwraps detail/Fault, then a scalar detail, then the first
// scalar found directly under detail.
func detailType(detail *Node) string {
	if v, ok := detail.String("Fault"); ok {
		return v
	}

	if v := detail.Value(); v != "" {
		return v
	}

	for _, k := range detail.Keys() {
		if strings.HasPrefix(k, attrPrefix) {
			continue
		}

		child, _ := detail.Get(k)
		if child.Kind == Scalar {
			if v := child.Value(); v != "" {
				return v
			}
		}
	}

	return ""
}

func (f fault) message() string {
	switch {
	case f.typ != "" && f.reason != "":
		return f.typ + ": " + f.reason
	case f.typ != "":
		return f.typ
	default:
		return f.reason
	}
}

// interpretFailure turns a transport failure into a CallError, reading a
// fault out of the response body when one is there.
func interpretFailure(op string, terr *TransportError) *CallError {
	ce := &CallError{
		Operation:  op,
		StatusCode: terr.StatusCode,
		Err:        terr,
	}

	if len(terr.Body) > 0 {
		if tree, err := Decode(terr.Body); err == nil {
			if n, ok := findFault(tree); ok {
				f := readFault(n)
				if msg := f.message(); msg != "" {
					ce.Fault = true
					ce.Type = f.typ
					ce.FaultString = f.reason
					ce.Message = msg

					return ce
				}
			}
		}
	}

	ce.Message = failureMessage(terr)

	return ce
}

// failureMessage keeps network errors to a fixed text. The raw error names
// the endpoint URL, whose path must never reach the classifier.
func failureMessage(terr *TransportError) string {
	switch {
	case terr.Err != nil && terr.Timeout:
		return msgTimeout
	case terr.Err != nil:
		return msgConnectionFailed
	case terr.Status != "":
		return "HTTP " + terr.Status
	default:
		return terr.Error()
	}
}

// faultError builds the CallError for a fault delivered with a 2xx status.
func faultError(op string, n *Node) *CallError {
	f := readFault(n)

	msg := f.message()
	if msg == "" {
		msg = "soap fault without faultstring"
	}

	return &CallError{
		Operation:   op,
		Type:        f.typ,
		FaultString: f.reason,
		Message:     msg,
		Fault:       true,
		Err:         ErrFault,
	}
}
