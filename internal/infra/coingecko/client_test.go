package coingecko

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vietddude/tokend/internal/provider"
)

func TestFetch_ParsesBatchPrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/simple/price" {
			t.Errorf("Expected /simple/price, got %s", r.URL.Path)
		}
		if ids := r.URL.Query().Get("ids"); ids != "bitcoin,arweave" {
			t.Errorf("Expected ids=bitcoin,arweave, got %s", ids)
		}
		if vs := r.URL.Query().Get("vs_currencies"); vs != "usd" {
			t.Errorf("Expected vs_currencies=usd, got %s", vs)
		}
		w.Write([]byte(`{"bitcoin":{"usd":42000.5},"arweave":{"usd":6.25}}`))
	}))
	defer srv.Close()

	client := NewClient("coingecko", srv.URL, "", "usd", 5*time.Second)
	prices, err := client.Fetch(context.Background(), []string{"bitcoin", "arweave"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if p := prices["bitcoin"]; p == nil || *p != 42000.5 {
		t.Errorf("Expected bitcoin 42000.5, got %v", p)
	}
	if p := prices["arweave"]; p == nil || *p != 6.25 {
		t.Errorf("Expected arweave 6.25, got %v", p)
	}
}

func TestFetch_UnknownIdAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bitcoin":{"usd":42000.5}}`))
	}))
	defer srv.Close()

	client := NewClient("coingecko", srv.URL, "", "usd", 5*time.Second)
	prices, err := client.Fetch(context.Background(), []string{"bitcoin", "no-such-coin"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if _, ok := prices["no-such-coin"]; ok {
		t.Error("Expected unknown id absent from result")
	}
}

func TestFetch_Non200FailsBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"status":{"error_message":"rate limited"}}`))
	}))
	defer srv.Close()

	client := NewClient("coingecko", srv.URL, "", "usd", 5*time.Second)
	if _, err := client.Fetch(context.Background(), []string{"bitcoin"}); err == nil {
		t.Fatal("Expected error for 429 response")
	}
}

func TestFetch_MalformedBodyIsInvalidShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	client := NewClient("coingecko", srv.URL, "", "usd", 5*time.Second)
	_, err := client.Fetch(context.Background(), []string{"bitcoin"})
	if err == nil {
		t.Fatal("Expected error for non-JSON body")
	}
	if !errors.Is(err, provider.ErrInvalidShape) {
		t.Errorf("Expected ErrInvalidShape, got %v", err)
	}
}

func TestFetch_SendsAPIKeyHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key := r.Header.Get("x-cg-api-key"); key != "secret" {
			t.Errorf("Expected api key header, got %q", key)
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient("coingecko-pro", srv.URL, "secret", "usd", 5*time.Second)
	if _, err := client.Fetch(context.Background(), []string{"bitcoin"}); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
}
