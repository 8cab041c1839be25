package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const samplePayload = `{
  "records": {
    "timestamp": "16-Oct-2026 10:00:00",
    "expiryDates": ["30-Oct-2026", "23-Oct-2026"],
    "data": []
  },
  "filtered": {
    "data": [
      {"strikePrice": 22000, "expiryDate": "23-Oct-2026",
       "PE": {"identifier": "OPTIDXNIFTY23-10-2026PE22000.00", "underlying": "NIFTY", "strikePrice": 22000,
              "expiryDate": "23-Oct-2026", "openInterest": 100, "pChange": 12.5, "underlyingValue": 21800}}
    ]
  }
}`

func newTestNSE(url string) *NSE {
	return NewNSE(NSEOptions{
		BaseURL:         url,
		UserAgent:       "test-agent",
		Timeout:         time.Second,
		RatePerSecond:   1000,
		Burst:           10,
		BreakerFailures: 2,
		BreakerCooldown: time.Hour,
	}, zerolog.Nop())
}

func nseServer(t *testing.T, chainStatus *atomic.Int32, primes, chains *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(primePath, func(w http.ResponseWriter, r *http.Request) {
		primes.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "nsit", Value: "session", Path: "/"})
		_, _ = w.Write([]byte("<html></html>"))
	})
	mux.HandleFunc(optionChainPath, func(w http.ResponseWriter, r *http.Request) {
		chains.Add(1)
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("missing user agent, got %q", r.Header.Get("User-Agent"))
		}
		if r.URL.Query().Get("symbol") != "NIFTY" {
			t.Errorf("unexpected symbol %q", r.URL.Query().Get("symbol"))
		}
		if _, err := r.Cookie("nsit"); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if status := int(chainStatus.Load()); status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(samplePayload))
	})
	return httptest.NewServer(mux)
}

func TestFetchChainPrimesSession(t *testing.T) {
	var status, primes, chains atomic.Int32
	status.Store(http.StatusOK)
	srv := nseServer(t, &status, &primes, &chains)
	defer srv.Close()

	n := newTestNSE(srv.URL)
	for i := 0; i < 3; i++ {
		payload, err := n.FetchChain(context.Background(), "nifty")
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if len(payload) == 0 {
			t.Fatal("payload should not be empty")
		}
	}
	if primes.Load() != 1 {
		t.Fatalf("session should be primed once, got %d", primes.Load())
	}
	if chains.Load() != 3 {
		t.Fatalf("expected 3 chain requests, got %d", chains.Load())
	}
}

func TestFetchChainReprimesAfterForbidden(t *testing.T) {
	var status, primes, chains atomic.Int32
	status.Store(http.StatusForbidden)
	srv := nseServer(t, &status, &primes, &chains)
	defer srv.Close()

	n := newTestNSE(srv.URL)
	if _, err := n.FetchChain(context.Background(), "NIFTY"); !errors.Is(err, ErrDataSourceUnavailable) {
		t.Fatalf("403 should be ErrDataSourceUnavailable, got %v", err)
	}

	status.Store(http.StatusOK)
	if _, err := n.FetchChain(context.Background(), "NIFTY"); err != nil {
		t.Fatalf("second fetch should succeed: %v", err)
	}
	if primes.Load() != 2 {
		t.Fatalf("a 403 should force a new prime, got %d primes", primes.Load())
	}
}

func TestFetchChainBreakerOpens(t *testing.T) {
	var status, primes, chains atomic.Int32
	status.Store(http.StatusInternalServerError)
	srv := nseServer(t, &status, &primes, &chains)
	defer srv.Close()

	n := newTestNSE(srv.URL)
	for i := 0; i < 2; i++ {
		if _, err := n.FetchChain(context.Background(), "NIFTY"); err == nil {
			t.Fatalf("fetch %d should fail", i)
		}
	}

	status.Store(http.StatusOK)
	_, err := n.FetchChain(context.Background(), "NIFTY")
	if !errors.Is(err, ErrDataSourceUnavailable) {
		t.Fatalf("open breaker should report ErrDataSourceUnavailable, got %v", err)
	}
	if chains.Load() != 2 {
		t.Fatalf("open breaker should not reach the server, got %d requests", chains.Load())
	}
}

func TestFetchChainEmptySymbol(t *testing.T) {
	n := newTestNSE("http://127.0.0.1:1")
	if _, err := n.FetchChain(context.Background(), "  "); !errors.Is(err, ErrDataSourceUnavailable) {
		t.Fatalf("empty symbol should fail, got %v", err)
	}
}

func TestListExpiries(t *testing.T) {
	var status, primes, chains atomic.Int32
	status.Store(http.StatusOK)
	srv := nseServer(t, &status, &primes, &chains)
	defer srv.Close()

	n := newTestNSE(srv.URL)
	expiries, err := n.ListExpiries(context.Background(), "NIFTY")
	if err != nil {
		t.Fatalf("ListExpiries: %v", err)
	}
	if len(expiries) != 2 {
		t.Fatalf("expected 2 expiries, got %d", len(expiries))
	}
	if !expiries[0].Before(expiries[1]) {
		t.Fatalf("expiries should be ascending: %v", expiries)
	}
	if expiries[0].Day() != 23 {
		t.Fatalf("nearest expiry should be the 23rd, got %v", expiries[0])
	}
}
