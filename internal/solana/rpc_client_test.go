package solana

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"solana-sniper/internal/observability"
)

func rpcServer(t *testing.T, result string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":%s}`, result)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPClient_GetBalance(t *testing.T) {
	srv := rpcServer(t, `{"context":{"slot":1},"value":2000000000}`)
	c := NewHTTPClient(srv.URL)

	got, err := c.GetBalance(context.Background(), "11111111111111111111111111111111")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if got != 2_000_000_000 {
		t.Errorf("balance = %d, want 2000000000", got)
	}
}

func TestHTTPClient_RecordsCallLatency(t *testing.T) {
	srv := rpcServer(t, `{"context":{"slot":1},"value":1}`)
	c := NewHTTPClient(srv.URL)

	before := testutil.CollectAndCount(observability.DefaultMetrics.RPCCallLatency)

	if _, err := c.GetBalance(context.Background(), "11111111111111111111111111111111"); err != nil {
		t.Fatalf("GetBalance: %v", err)
	}

	// Every call reports its latency, so the getBalance series exists now.
	after := testutil.CollectAndCount(observability.DefaultMetrics.RPCCallLatency)
	if after <= before {
		t.Errorf("rpc latency series = %d, want more than %d", after, before)
	}
	if n := testutil.CollectAndCount(observability.DefaultMetrics.RPCCallLatency, "solana_sniper_solana_rpc_call_latency_seconds"); n == 0 {
		t.Error("no rpc_call_latency_seconds series collected")
	}
}

func TestHTTPClient_RetriesRateLimit(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":7}}`)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, WithRetryDelay(time.Millisecond))
	got, err := c.GetBalance(context.Background(), "11111111111111111111111111111111")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if got != 7 {
		t.Errorf("balance = %d, want 7", got)
	}
	if calls != 2 {
		t.Errorf("server saw %d calls, want 2", calls)
	}
}
