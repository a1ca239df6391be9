// Package vmachine talks SOAP to the vending-machine credit service.
//
// A call renders a typed request into an envelope, posts it, decodes the XML
// into a namespace-free tree and pulls the typed result out of it. Every
// failure comes back as a *CallError whose Message feeds the error
// classifier.
package vmachine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fastprodman/vmpay-authorizer/internal/config"
	"github.com/fastprodman/vmpay-authorizer/internal/infra/metrics"
)

// maxLoggedBody caps response bodies written to debug logs.
const maxLoggedBody = 500

const redactedKey = "[REDACTED]"

type Client struct {
	authKey    string
	transport  Transport
	httpClient *http.Client
	log        *slog.Logger
	metrics    *metrics.Registry
}

type Option func(*Client)

// WithTransport replaces the HTTP transport, typically with a test double.
func WithTransport(t Transport) Option {
	return func(c *Client) { c.transport = t }
}

// WithHTTPClient keeps the HTTP transport but uses hc for the round trips.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithMetrics(m *metrics.Registry) Option {
	return func(c *Client) { c.metrics = m }
}

func New(cfg config.VmachineConfig, opts ...Option) *Client {
	c := &Client{authKey: cfg.AuthKey}

	for _, opt := range opts {
		opt(c)
	}

	if c.log == nil {
		c.log = slog.Default()
	}

	if c.transport == nil {
		if c.httpClient == nil {
			c.httpClient = NewHTTPClient(cfg.Timeout, cfg.InsecureSkipVerify)
		}

		c.transport = NewHTTPTransport(cfg.Endpoint, c.httpClient)
	}

	return c
}

func (c *Client) PerformConsumption(ctx context.Context, req ConsumptionRequest) (ConsumptionResult, error) {
	return invoke(ctx, c, req, consumptionFrom)
}

func (c *Client) ReverseConsumption(ctx context.Context, req ReverseRequest) (ReverseResult, error) {
	return invoke(ctx, c, req, reverseFrom)
}

func (c *Client) GetBalance(ctx context.Context, req BalanceRequest) (BalanceResult, error) {
	return invoke(ctx, c, req, balanceFrom)
}

func (c *Client) PerformSale(ctx context.Context, req SaleRequest) (SaleResult, error) {
	return invoke(ctx, c, req, saleFrom)
}

func (c *Client) CancelSale(ctx context.Context, req CancelSaleRequest) (CancelSaleResult, error) {
	return invoke(ctx, c, req, cancelSaleFrom)
}

func (c *Client) SearchAccounts(ctx context.Context, req SearchAccountsRequest) (SearchAccountsResult, error) {
	return invoke(ctx, c, req, searchAccountsFrom)
}

// Ping checks the service answers an unfiltered account search.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.SearchAccounts(ctx, SearchAccountsRequest{})
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	return nil
}

func invoke[T any](ctx context.Context, c *Client, req operation, extract func(*Node) (T, error)) (T, error) {
	var zero T

	op := req.opName()
	start := time.Now()

	node, status, err := c.roundTrip(ctx, req)
	if err == nil {
		var res T

		res, err = extract(node)
		if err == nil {
			c.observe(ctx, op, status, metrics.OutcomeSuccess, time.Since(start), nil)
			return res, nil
		}

		err = &CallError{
			Operation:  op,
			Message:    op + ": result has no outcome field",
			StatusCode: status,
			Err:        err,
		}
	}

	c.observe(ctx, op, status, outcomeOf(err), time.Since(start), err)

	return zero, err
}

// roundTrip returns the located result node and the HTTP status.
func (c *Client) roundTrip(ctx context.Context, req operation) (*Node, int, error) {
	op := req.opName()

	env, err := buildEnvelope(c.authKey, req)
	if err != nil {
		return nil, 0, &CallError{Operation: op, Message: err.Error(), Err: err}
	}

	c.logRequest(ctx, req)

	raw, err := c.transport.Do(ctx, SOAPAction(op), env)
	if err != nil {
		var terr *TransportError
		if errors.As(err, &terr) {
			c.logBody(ctx, op, terr.Body)
			ce := interpretFailure(op, terr)

			return nil, terr.StatusCode, ce
		}

		return nil, 0, &CallError{Operation: op, Message: err.Error(), Err: fmt.Errorf("%w: %w", ErrTransport, err)}
	}

	c.logBody(ctx, op, raw)

	tree, err := Decode(raw)
	if err != nil {
		return nil, http.StatusOK, &CallError{
			Operation:  op,
			Message:    op + ": " + err.Error(),
			StatusCode: http.StatusOK,
			Err:        err,
		}
	}

	if n, ok := findFault(tree); ok {
		ce := faultError(op, n)
		ce.StatusCode = http.StatusOK

		return nil, http.StatusOK, ce
	}

	node, match := Normalize(tree, op)
	if match != MatchPrimary {
		c.log.DebugContext(ctx, "vmachine result located off the primary path",
			"operation", op, "match", match.String())
	}

	return node, http.StatusOK, nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrFault):
		return metrics.OutcomeFault
	case errors.Is(err, ErrTransport):
		return metrics.OutcomeTransport
	case errors.Is(err, ErrExtraction):
		return metrics.OutcomeExtraction
	case errors.Is(err, ErrEnvelope):
		return metrics.OutcomeEnvelope
	default:
		return metrics.OutcomeDecode
	}
}

func (c *Client) observe(ctx context.Context, op string, status int, outcome string, took time.Duration, err error) {
	c.metrics.ObserveCall(op, outcome, took)

	if err == nil {
		c.log.InfoContext(ctx, "vmachine call",
			"operation", op, "status", status, "duration", took, "outcome", outcome)

		return
	}

	attrs := []any{"operation", op, "status", status, "duration", took, "outcome", outcome, "err", Message(err)}

	var terr *TransportError
	if errors.As(err, &terr) && terr.Err != nil {
		attrs = append(attrs, "cause", terr.Err.Error())
	}

	c.log.WarnContext(ctx, "vmachine call failed", attrs...)
}

// logRequest renders the envelope a second time with the key blanked out, so
// the credential never reaches the log.
func (c *Client) logRequest(ctx context.Context, req operation) {
	if !c.log.Enabled(ctx, slog.LevelDebug) {
		return
	}

	env, err := buildEnvelope(redactedKey, req)
	if err != nil {
		return
	}

	c.log.DebugContext(ctx, "vmachine request", "operation", req.opName(), "envelope", string(env))
}

func (c *Client) logBody(ctx context.Context, op string, body []byte) {
	if len(body) == 0 || !c.log.Enabled(ctx, slog.LevelDebug) {
		return
	}

	if len(body) > maxLoggedBody {
		body = body[:maxLoggedBody]
	}

	c.log.DebugContext(ctx, "vmachine response", "operation", op, "body", string(body))
}
