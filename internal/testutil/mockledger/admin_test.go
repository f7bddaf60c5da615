package mockledger

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sipico/subscription-relay/internal/program"
	"github.com/sipico/subscription-relay/internal/solana"
)

func newHandler(t *testing.T) *Server {
	t.Helper()
	start := time.Unix(1_700_000_000, 0)
	s, err := NewServer(WithClock(func() time.Time { return start }))
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestAdminClock(t *testing.T) {
	t.Parallel()
	s := newHandler(t)

	rec := doRequest(s, http.MethodGet, "/admin/clock", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var clock ClockResponse
	if err := json.NewDecoder(rec.Body).Decode(&clock); err != nil {
		t.Fatal(err)
	}
	if clock.Now != 1_700_000_000 {
		t.Errorf("expected frozen clock, got %d", clock.Now)
	}

	rec = doRequest(s, http.MethodPost, "/admin/clock", `{"advance":90}`)
	if rec.Code != http.StatusOK || s.Now() != 1_700_000_090 {
		t.Errorf("advance: status %d, now %d", rec.Code, s.Now())
	}

	rec = doRequest(s, http.MethodPost, "/admin/clock", `{"set":1800000000}`)
	if rec.Code != http.StatusOK || s.Now() != 1_800_000_000 {
		t.Errorf("set: status %d, now %d", rec.Code, s.Now())
	}

	for _, body := range []string{`{}`, `nope`} {
		if rec := doRequest(s, http.MethodPost, "/admin/clock", body); rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestAdminFail(t *testing.T) {
	t.Parallel()
	s := newHandler(t)

	rec := doRequest(s, http.MethodPost, "/admin/fail", `{"method":"getHealth","code":-32005,"message":"behind","count":2}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	rpc := `{"jsonrpc":"2.0","id":7,"method":"getHealth"}`
	for i := 0; i < 2; i++ {
		var out rpcResponse
		rec = doRequest(s, http.MethodPost, "/", rpc)
		if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		if out.Error == nil || out.Error.Code != -32005 || out.Error.Message != "behind" {
			t.Errorf("call %d: expected injected error, got %+v", i, out.Error)
		}
		if string(out.ID) != "7" {
			t.Errorf("expected id echoed, got %s", out.ID)
		}
	}
	var out rpcResponse
	rec = doRequest(s, http.MethodPost, "/", rpc)
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Error != nil || out.Result != "ok" {
		t.Errorf("expected recovery, got %+v", out)
	}

	if rec := doRequest(s, http.MethodPost, "/admin/fail", `{"method":"getHealth"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without code, got %d", rec.Code)
	}
}

func TestAdminAccounts(t *testing.T) {
	t.Parallel()
	s := newHandler(t)
	kp, _ := solana.NewKeypair(rand.Reader)
	addr := kp.PublicKey().String()

	if rec := doRequest(s, http.MethodGet, "/admin/accounts/"+addr, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec := doRequest(s, http.MethodGet, "/admin/accounts/not-base58-0OIl", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}

	rec := doRequest(s, http.MethodPost, "/admin/accounts/"+addr+"/airdrop", `{"lamports":500}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	rec = doRequest(s, http.MethodGet, "/admin/accounts/"+addr, "")
	var acct AccountResponse
	if err := json.NewDecoder(rec.Body).Decode(&acct); err != nil {
		t.Fatal(err)
	}
	if acct.Lamports != 500 || acct.Owner != solana.SystemProgramID.String() || acct.Subscription != nil {
		t.Errorf("unexpected account %+v", acct)
	}

	sub := &program.Subscription{Owner: kp.PublicKey(), PlanID: 4, Duration: 10, Amount: 3, Active: true, History: program.NewHistory(1)}
	data, _ := sub.MarshalBinary()
	pda, _, _ := program.SubscriptionAddress(s.ProgramID(), kp.PublicKey(), 4)
	if err := s.SetAccountData(pda, data); err != nil {
		t.Fatal(err)
	}
	rec = doRequest(s, http.MethodGet, "/admin/accounts/"+pda.String(), "")
	acct = AccountResponse{}
	if err := json.NewDecoder(rec.Body).Decode(&acct); err != nil {
		t.Fatal(err)
	}
	if acct.Subscription == nil || acct.Subscription.PlanID != 4 || !acct.Subscription.Active {
		t.Errorf("expected decoded subscription, got %+v", acct.Subscription)
	}
}

func TestLoggingMiddleware(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	s, err := NewServer(WithLogger(newTextLogger(&buf)))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)

	doRequest(s, http.MethodPost, "/", `{"jsonrpc":"2.0","id":1,"method":"getHealth"}`)
	doRequest(s, http.MethodPost, "/", `{"jsonrpc":"2.0","id":2,"method":"nope"}`)

	out := buf.String()
	if !strings.Contains(out, "rpc_method=getHealth") {
		t.Errorf("expected rpc method in log, got %q", out)
	}
	if !strings.Contains(out, "rpc_error=-32601") {
		t.Errorf("expected rpc error in log, got %q", out)
	}
}
