package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newPayoutTestServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, body map[string]interface{})) (*httptest.Server, *int32) {
	t.Helper()
	var tokenCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/oauth2/token" {
			atomic.AddInt32(&tokenCalls, 1)
			user, pass, ok := r.BasicAuth()
			if !ok || user != "cid" || pass != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if err := r.ParseForm(); err != nil || r.Form.Get("grant_type") != "client_credentials" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer"}`))
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]interface{}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		handler(w, r, body)
	}))
	t.Cleanup(server.Close)
	return server, &tokenCalls
}

func validInput() PayoutInput {
	return PayoutInput{
		SenderBatchID: "payout-12",
		SenderItemID:  "affiliate-3",
		Receiver:      "payee@example.com",
		Amount:        "50.00",
		Currency:      "eur",
		Note:          "Affiliate commission payout",
	}
}

func TestSendPayoutSubmitsSingleItemBatch(t *testing.T) {
	server, tokenCalls := newPayoutTestServer(t, func(w http.ResponseWriter, r *http.Request, body map[string]interface{}) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/payments/payouts" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if got := readString(body, "sender_batch_header", "sender_batch_id"); got != "payout-12" {
			t.Errorf("unexpected sender_batch_id: %s", got)
		}
		items := readArray(body, "items")
		if len(items) != 1 {
			t.Errorf("expected single item batch, got %d", len(items))
		}
		if got := readString(body, "items", "0", "amount", "currency"); got != "EUR" {
			t.Errorf("currency should be upper-cased, got %s", got)
		}
		if got := readString(body, "items", "0", "receiver"); got != "payee@example.com" {
			t.Errorf("unexpected receiver: %s", got)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"batch_header":{"payout_batch_id":"BATCH-1","batch_status":"PENDING"}}`))
	})

	client := NewClient(Config{ClientID: "cid", ClientSecret: "secret", BaseURL: server.URL + "/"})
	result, err := client.SendPayout(context.Background(), validInput())
	if err != nil {
		t.Fatalf("send payout failed: %v", err)
	}
	if result.BatchID != "BATCH-1" || result.BatchStatus != "PENDING" || result.Simulated {
		t.Fatalf("unexpected result: %+v", result)
	}
	if atomic.LoadInt32(tokenCalls) != 1 {
		t.Fatalf("expected one token request per call")
	}
}

func TestSendPayoutRejected(t *testing.T) {
	server, _ := newPayoutTestServer(t, func(w http.ResponseWriter, r *http.Request, body map[string]interface{}) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"name":"USER_BUSINESS_ERROR","message":"Batch with given sender_batch_id already exists"}`))
	})
	client := NewClient(Config{ClientID: "cid", ClientSecret: "secret", BaseURL: server.URL})
	_, err := client.SendPayout(context.Background(), validInput())
	if !errors.Is(err, ErrPayoutRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if !strings.Contains(err.Error(), "USER_BUSINESS_ERROR") {
		t.Fatalf("expected provider error name in message: %v", err)
	}
}

func TestSendPayoutAuthFailure(t *testing.T) {
	server, _ := newPayoutTestServer(t, func(w http.ResponseWriter, r *http.Request, body map[string]interface{}) {})
	client := NewClient(Config{ClientID: "cid", ClientSecret: "wrong", BaseURL: server.URL})
	if _, err := client.SendPayout(context.Background(), validInput()); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected auth failure, got %v", err)
	}
}

func TestSendPayoutHonoursTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(server.Close)
	client := NewClient(Config{ClientID: "cid", ClientSecret: "secret", BaseURL: server.URL, Timeout: 20 * time.Millisecond})
	if _, err := client.SendPayout(context.Background(), validInput()); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected token request to time out, got %v", err)
	}
}

func TestSimulatedPayoutIsDeterministic(t *testing.T) {
	client := NewClient(Config{Mode: ModeSandbox, AllowSimulation: true})
	first, err := client.SendPayout(context.Background(), validInput())
	if err != nil {
		t.Fatalf("simulated payout failed: %v", err)
	}
	second, err := client.SendPayout(context.Background(), validInput())
	if err != nil {
		t.Fatalf("simulated payout failed: %v", err)
	}
	if !first.Simulated || first.BatchID != second.BatchID {
		t.Fatalf("simulated results must be tagged and deterministic: %+v %+v", first, second)
	}
	if !strings.HasPrefix(first.BatchID, "SIM-") {
		t.Fatalf("unexpected simulated id: %s", first.BatchID)
	}
	other := validInput()
	other.Amount = "51.00"
	third, _ := client.SendPayout(context.Background(), other)
	if third.BatchID == first.BatchID {
		t.Fatalf("different inputs must yield different ids")
	}

	nextPayout := validInput()
	nextPayout.SenderBatchID = "payout-13"
	fourth, _ := client.SendPayout(context.Background(), nextPayout)
	if fourth.BatchID == first.BatchID {
		t.Fatalf("different payouts with equal amounts must yield different ids")
	}

	status, err := client.GetPayoutStatus(context.Background(), first.BatchID)
	if err != nil || !status.Simulated || status.BatchStatus != "SUCCESS" {
		t.Fatalf("unexpected simulated status: %+v err=%v", status, err)
	}
}

func TestLiveModeNeverSimulates(t *testing.T) {
	client := NewClient(Config{Mode: "LIVE", AllowSimulation: true})
	if client.SimulationAllowed() {
		t.Fatalf("live mode must not allow simulation")
	}
	if _, err := client.SendPayout(context.Background(), validInput()); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected config error in live mode, got %v", err)
	}
	if client.cfg.BaseURL != defaultLiveBaseURL {
		t.Fatalf("unexpected live base url: %s", client.cfg.BaseURL)
	}
}

func TestSendPayoutValidatesInput(t *testing.T) {
	client := NewClient(Config{AllowSimulation: true})
	cases := []func(in *PayoutInput){
		func(in *PayoutInput) { in.Receiver = "not-an-email" },
		func(in *PayoutInput) { in.Amount = "0" },
		func(in *PayoutInput) { in.Currency = "EURO" },
		func(in *PayoutInput) { in.SenderBatchID = "" },
	}
	for i, mutate := range cases {
		input := validInput()
		mutate(&input)
		if _, err := client.SendPayout(context.Background(), input); !errors.Is(err, ErrInputInvalid) {
			t.Fatalf("case %d: expected input error, got %v", i, err)
		}
	}
}

func TestGetPayoutStatusParsesItems(t *testing.T) {
	server, _ := newPayoutTestServer(t, func(w http.ResponseWriter, r *http.Request, body map[string]interface{}) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/payments/payouts/BATCH-9" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{
			"batch_header":{"payout_batch_id":"BATCH-9","batch_status":"SUCCESS"},
			"items":[{"payout_item_id":"ITEM-1","transaction_id":"TXN-1","transaction_status":"success",
				"payout_item":{"sender_item_id":"affiliate-3","receiver":"payee@example.com","amount":{"value":"50.00","currency":"EUR"}}}]
		}`))
	})
	client := NewClient(Config{ClientID: "cid", ClientSecret: "secret", BaseURL: server.URL})
	status, err := client.GetPayoutStatus(context.Background(), "BATCH-9")
	if err != nil {
		t.Fatalf("get status failed: %v", err)
	}
	if status.BatchStatus != "SUCCESS" || len(status.Items) != 1 {
		t.Fatalf("unexpected status: %+v", status)
	}
	item := status.Items[0]
	if item.TransactionID != "TXN-1" || item.TransactionStatus != "SUCCESS" || item.Amount != "50.00" {
		t.Fatalf("unexpected item: %+v", item)
	}
}
