package vmachine

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// ErrTransport reports a failed round trip: no connection, a timeout or a
// non-2xx status.
var ErrTransport = errors.New("vmachine: transport failure")

const (
	contentType = "text/xml; charset=utf-8"
	// maxBodyBytes caps how much of a response is buffered.
	maxBodyBytes = 4 << 20
)

// Transport posts an envelope and returns the raw response body.
type Transport interface {
	Do(ctx context.Context, action string, body []byte) ([]byte, error)
}

// TransportError carries what is known about a failed round trip. Body is
// kept so a fault payload sent with a 500 can still be interpreted.
type TransportError struct {
	StatusCode int
	Status     string
	Body       []byte
	Timeout    bool
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil:
		return e.Err.Error()
	case e.Status != "":
		return e.Status
	default:
		return fmt.Sprintf("status %d", e.StatusCode)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// HTTPTransport is the production Transport.
type HTTPTransport struct {
	endpoint string
	client   *http.Client
}

func NewHTTPTransport(endpoint string, client *http.Client) *HTTPTransport {
	return &HTTPTransport{endpoint: endpoint, client: client}
}

// NewHTTPClient builds the client used against the service. insecure turns
// off certificate verification.
func NewHTTPClient(timeout time.Duration, insecure bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: insecure, //nolint:gosec // the upstream certificate does not validate
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

func (t *HTTPTransport) Do(ctx context.Context, action string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("SOAPAction", action)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err, Timeout: isTimeout(err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Err:        fmt.Errorf("read response: %w", err),
			Timeout:    isTimeout(err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       raw,
		}
	}

	return raw, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}
