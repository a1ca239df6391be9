package e2etests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fastprodman/vmpay-authorizer/internal/api"
	"github.com/fastprodman/vmpay-authorizer/internal/config"
	"github.com/fastprodman/vmpay-authorizer/internal/infra/metrics"
	"github.com/fastprodman/vmpay-authorizer/internal/repos/orders/memory"
	"github.com/fastprodman/vmpay-authorizer/internal/services/authorizer"
	"github.com/fastprodman/vmpay-authorizer/internal/vmachine"
)

const (
	apiKey  = "e2e-api-key"
	authKey = "e2e-soap-key"
	timeout = 5 * time.Second
)

var httpClient = &http.Client{Timeout: timeout}

// fakeVendingService mimics the SOAP endpoint, including its habit of
// skipping the Response wrapper and returning faults with HTTP 500.
type fakeVendingService struct {
	mu       sync.Mutex
	reversed map[string]bool
}

func (f *fakeVendingService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)

	tree, err := vmachine.Decode(raw)
	if err != nil {
		writeSOAP(w, http.StatusBadRequest, fault("BadRequest", "unparseable envelope"))
		return
	}

	key, _ := tree.Path("Envelope", "Header", "_AuthenticationKey")
	if key.Value() != authKey {
		writeSOAP(w, http.StatusInternalServerError, fault("Unauthorized", "invalid authentication key"))
		return
	}

	body, _ := tree.Path("Envelope", "Body")
	action := r.Header.Get("SOAPAction")

	switch {
	case strings.HasSuffix(action, `/PerformConsumption"`):
		data, _ := body.Path("PerformConsumption", "data")
		tag, _ := data.String("ConsumptionAccount")

		switch tag {
		case "TAG-OK":
			writeSOAP(w, http.StatusOK, `<PerformConsumptionResponse xmlns="http://multiclubes.com.br/retail/vendingmachine">`+
				`<PerformConsumptionResult><Status>Success</Status><CustomerName>Ana Souza</CustomerName></PerformConsumptionResult>`+
				`</PerformConsumptionResponse>`)
		case "TAG-BROKE":
			writeSOAP(w, http.StatusOK, `<PerformConsumptionResponse xmlns="http://multiclubes.com.br/retail/vendingmachine">`+
				`<PerformConsumptionResult><Status>InsuficientBalance</Status><CustomerName>Bia</CustomerName></PerformConsumptionResult>`+
				`</PerformConsumptionResponse>`)
		default:
			writeSOAP(w, http.StatusInternalServerError, fault("InvalidTag", "Tag not registered"))
		}

	case strings.HasSuffix(action, `/ReverseConsumption"`):
		uid, _ := body.Path("ReverseConsumption", "data", "ConsumptionUid")

		f.mu.Lock()
		already := f.reversed[uid.Value()]
		f.reversed[uid.Value()] = true
		f.mu.Unlock()

		if already {
			writeSOAP(w, http.StatusInternalServerError, fault("ConsumptionAlreadyReversed", "consumption already reversed"))
			return
		}

		writeSOAP(w, http.StatusOK, `<ReverseConsumptionResponse><ReverseConsumptionResult>`+
			`<Status>Success</Status></ReverseConsumptionResult></ReverseConsumptionResponse>`)

	case strings.HasSuffix(action, `/GetBalance"`):
		tag, _ := body.Path("GetBalance", "data", "ConsumptionAccount")
		if tag.Value() != "TAG-OK" {
			writeSOAP(w, http.StatusInternalServerError, fault("InvalidTag", "Tag not registered"))
			return
		}

		// no GetBalanceResponse level
		writeSOAP(w, http.StatusOK, `<GetBalanceResult><AvailableCredit>42.50</AvailableCredit>`+
			`<CustomerName>Ana Souza</CustomerName></GetBalanceResult>`)

	case strings.HasSuffix(action, `/SearchAccounts"`):
		writeSOAP(w, http.StatusOK, `<SearchAccountsResponse><SearchAccountsResult><Status>Success</Status>`+
			`</SearchAccountsResult></SearchAccountsResponse>`)

	default:
		writeSOAP(w, http.StatusInternalServerError, fault("ActionNotSupported", action))
	}
}

func fault(typ, msg string) string {
	return `<s:Fault><faultcode>s:Client</faultcode><faultstring xml:lang="en-US">` + msg + `</faultstring>` +
		`<detail><Fault xmlns="http://multiclubes.com.br/retail/vendingmachine">` + typ + `</Fault></detail></s:Fault>`
}

func writeSOAP(w http.ResponseWriter, status int, inner string) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(status)

	_, _ = fmt.Fprintf(w, `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body>%s</s:Body></s:Envelope>`, inner)
}

// newStack wires the real router, service, ledger and SOAP client against
// the fake endpoint.
func newStack(t *testing.T) (string, *fakeVendingService) {
	t.Helper()

	fake := &fakeVendingService{reversed: map[string]bool{}}

	soap := httptest.NewServer(fake)
	t.Cleanup(soap.Close)

	reg := metrics.New()

	vm := vmachine.New(config.VmachineConfig{
		Endpoint: soap.URL,
		AuthKey:  authKey,
		Timeout:  timeout,
	}, vmachine.WithMetrics(reg))

	svc := authorizer.New(vm, memory.New(), reg)

	srv := httptest.NewServer(api.NewRouter(svc, apiKey, reg))
	t.Cleanup(srv.Close)

	return srv.URL, fake
}

func TestE2E_AuthorizeAndRollback(t *testing.T) {
	baseURL, fake := newStack(t)

	t.Run("authorized", func(t *testing.T) {
		code, body := postAuthorization(t, baseURL, "0f5ab1f0-7d8b-4f0e-9a0c-52b0b1a1c001", "TAG-OK")
		if code != http.StatusOK {
			t.Fatalf("authorize: want 200, got %d (%v)", code, body)
		}

		if body["authorized"] != true || body["tag_holder_name"] != "Ana Souza" {
			t.Fatalf("authorize: unexpected body %v", body)
		}

		if _, ok := body["error_code"]; ok {
			t.Fatalf("authorize: unexpected error_code in %v", body)
		}
	})

	t.Run("insufficient_balance", func(t *testing.T) {
		_, body := postAuthorization(t, baseURL, "0f5ab1f0-7d8b-4f0e-9a0c-52b0b1a1c002", "TAG-BROKE")
		if body["authorized"] != false || body["error_code"] != "INSUFFICIENT_BALANCE" {
			t.Fatalf("authorize: unexpected body %v", body)
		}
	})

	t.Run("unknown_tag_fault", func(t *testing.T) {
		code, body := postAuthorization(t, baseURL, "0f5ab1f0-7d8b-4f0e-9a0c-52b0b1a1c003", "TAG-NOPE")
		if code != http.StatusOK {
			t.Fatalf("authorize: want 200 even on failure, got %d", code)
		}

		if body["authorized"] != false || body["error_code"] != "INVALID_TAG" {
			t.Fatalf("authorize: unexpected body %v", body)
		}
	})

	t.Run("rollback_then_rollback_again", func(t *testing.T) {
		path := "/vmpay/v1/authorizer/authorizations/0f5ab1f0-7d8b-4f0e-9a0c-52b0b1a1c001/rollback"

		code, body := send(t, http.MethodPost, baseURL+path, nil, true)
		if code != http.StatusOK || body["rolled_back"] != true {
			t.Fatalf("first rollback: got %d %v", code, body)
		}

		code, body = send(t, http.MethodPost, baseURL+path, nil, true)
		if code != http.StatusOK || body["rolled_back"] != false || body["error_code"] != "PREVIOUSLY_ROLLED_BACK" {
			t.Fatalf("second rollback: got %d %v", code, body)
		}
	})

	t.Run("rollback_reversed_upstream_only", func(t *testing.T) {
		// reversed before this process started, so only the remote service knows
		fake.mu.Lock()
		fake.reversed["0f5ab1f0-7d8b-4f0e-9a0c-52b0b1a1c009"] = true
		fake.mu.Unlock()

		path := "/vmpay/v1/authorizer/authorizations/0f5ab1f0-7d8b-4f0e-9a0c-52b0b1a1c009/rollback"

		code, body := send(t, http.MethodPost, baseURL+path, nil, true)
		if code != http.StatusOK || body["error_code"] != "PREVIOUSLY_ROLLED_BACK" {
			t.Fatalf("rollback: got %d %v", code, body)
		}
	})
}

func TestE2E_Balance(t *testing.T) {
	baseURL, _ := newStack(t)

	t.Run("known_tag", func(t *testing.T) {
		code, body := send(t, http.MethodGet, baseURL+"/vmpay/v1/authorizer/tags/TAG-OK/balance?machine_asset_number=M-1", nil, true)
		if code != http.StatusOK {
			t.Fatalf("balance: want 200, got %d (%v)", code, body)
		}

		if body["current_balance"] != 42.5 {
			t.Fatalf("balance: want 42.5, got %v", body["current_balance"])
		}
	})

	t.Run("unknown_tag", func(t *testing.T) {
		code, body := send(t, http.MethodGet, baseURL+"/vmpay/v1/authorizer/tags/TAG-NOPE/balance?machine_asset_number=M-1", nil, true)
		if code != http.StatusNotFound {
			t.Fatalf("balance: want 404, got %d (%v)", code, body)
		}

		if _, ok := body["current_balance"]; ok {
			t.Fatalf("balance: unexpected current_balance in %v", body)
		}
	})

	t.Run("missing_api_key", func(t *testing.T) {
		code, _ := send(t, http.MethodGet, baseURL+"/vmpay/v1/authorizer/tags/TAG-OK/balance?machine_asset_number=M-1", nil, false)
		if code != http.StatusUnauthorized {
			t.Fatalf("balance: want 401, got %d", code)
		}
	})
}

func TestE2E_ReadinessAndMetrics(t *testing.T) {
	baseURL, _ := newStack(t)

	code, body := send(t, http.MethodGet, baseURL+"/readyz", nil, false)
	if code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("readyz: got %d %v", code, body)
	}

	resp, err := httpClient.Get(baseURL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), `vmpay_vmachine_calls_total{operation="SearchAccounts",outcome="success"} 1`) {
		t.Fatalf("metrics: readiness probe not counted:\n%s", raw)
	}
}

// --- helpers ---

func postAuthorization(t *testing.T, baseURL, orderID, tag string) (int, map[string]any) {
	t.Helper()

	payload := map[string]any{
		"order_uuid":           orderID,
		"occurred_at":          time.Now().UTC().Format(time.RFC3339),
		"tag_number":           tag,
		"machine_asset_number": "M-1",
		"products": []map[string]any{
			{"upc_code": "7891000", "quantity": 1, "unit_value": "4.50"},
			{"upc_code": "7891001", "quantity": 2, "unit_value": "2.00"},
		},
	}

	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	return send(t, http.MethodPost, baseURL+"/vmpay/v1/authorizer/authorizations", b, true)
}

func send(t *testing.T, method, url string, payload []byte, withKey bool) (int, map[string]any) {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), method, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if withKey {
		req.Header.Set("API-Key", apiKey)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var out map[string]any

	err = json.NewDecoder(resp.Body).Decode(&out)
	if err != nil {
		t.Fatalf("decode response (%d): %v", resp.StatusCode, err)
	}

	return resp.StatusCode, out
}
