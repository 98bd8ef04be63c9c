package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mtgmarket/cardgate/pkg/models"
	"github.com/mtgmarket/cardgate/pkg/ratelimit"
)

type countingLimiter struct {
	calls atomic.Int64
	err   error
}

func (l *countingLimiter) Acquire(context.Context) error {
	l.calls.Add(1)
	return l.err
}

type memoryRecorder struct {
	mu    sync.Mutex
	calls []models.UpstreamCall
}

func (r *memoryRecorder) Record(_ context.Context, call models.UpstreamCall) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	return nil
}

func setupClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Client, *countingLimiter) {
	t.Helper()
	upstream := httptest.NewServer(handler)
	t.Cleanup(upstream.Close)

	lim := &countingLimiter{}
	c, err := New(Config{BaseURL: upstream.URL, UserAgent: "mtg-app/1.0 (+local)", Timeout: 5 * time.Second}, lim, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return c, lim
}

func TestSearch(t *testing.T) {
	c, lim := setupClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cards/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("q"); got != "t:goblin c:r" {
			t.Errorf("unexpected query %q", got)
		}
		if got := r.URL.Query().Get("page"); got != "2" {
			t.Errorf("unexpected page %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != "mtg-app/1.0 (+local)" {
			t.Errorf("unexpected user agent %q", got)
		}
		w.Write([]byte(`{"object":"list","total_cards":1,"data":[{"id":"abc"}]}`))
	})

	body, err := c.Search(context.Background(), "t:goblin c:r", 2)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != `{"object":"list","total_cards":1,"data":[{"id":"abc"}]}` {
		t.Errorf("expected body verbatim, got %s", body)
	}
	if lim.calls.Load() != 1 {
		t.Errorf("expected one limiter acquisition, got %d", lim.calls.Load())
	}
}

func TestSearchDefaultsPage(t *testing.T) {
	c, _ := setupClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("page"); got != "1" {
			t.Errorf("expected page 1, got %q", got)
		}
		w.Write([]byte(`{}`))
	})
	if _, err := c.Search(context.Background(), "bolt", 0); err != nil {
		t.Fatal(err)
	}
}

func TestCardByIDAndPrints(t *testing.T) {
	var paths []string
	var mu sync.Mutex
	c, _ := setupClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.Write([]byte(`{"id":"123"}`))
	})
	ctx := context.Background()

	if _, err := c.CardByID(ctx, "123"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Prints(ctx, "123"); err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 || paths[0] != "/cards/123" || paths[1] != "/cards/123/prints" {
		t.Errorf("unexpected paths %v", paths)
	}
}

func TestNamed(t *testing.T) {
	c, _ := setupClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("fuzzy") != "lightning bolt" || q.Has("exact") {
			t.Errorf("unexpected query %v", q)
		}
		w.Write([]byte(`{"name":"Lightning Bolt"}`))
	})

	if _, err := c.Named(context.Background(), models.NameQuery{Fuzzy: "lightning bolt"}); err != nil {
		t.Fatal(err)
	}
}

func TestInvalidArgumentsSkipUpstream(t *testing.T) {
	c, lim := setupClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called")
	})
	ctx := context.Background()

	calls := []func() error{
		func() error { _, err := c.Search(ctx, "", 1); return err },
		func() error { _, err := c.CardByID(ctx, ""); return err },
		func() error { _, err := c.Prints(ctx, ""); return err },
		func() error { _, err := c.Named(ctx, models.NameQuery{}); return err },
		func() error { _, err := c.Named(ctx, models.NameQuery{Exact: "a", Fuzzy: "b"}); return err },
	}
	for i, call := range calls {
		if err := call(); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("call %d: expected ErrInvalidArgument, got %v", i, err)
		}
	}
	if lim.calls.Load() != 0 {
		t.Errorf("invalid calls must not take tokens, took %d", lim.calls.Load())
	}
}

func TestUpstreamError(t *testing.T) {
	rec := &memoryRecorder{}
	c, _ := setupClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"object":"error","code":"not_found"}`))
	}, WithRecorder(rec))

	_, err := c.CardByID(context.Background(), "missing")
	var uerr *UpstreamError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if uerr.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", uerr.StatusCode)
	}
	if uerr.Body != `{"object":"error","code":"not_found"}` {
		t.Errorf("expected body to be carried, got %q", uerr.Body)
	}

	if len(rec.calls) != 1 {
		t.Fatalf("expected one recorded call, got %d", len(rec.calls))
	}
	got := rec.calls[0]
	if got.Endpoint != models.EndpointCard || got.StatusCode != 404 || got.Error == "" || got.ID == "" {
		t.Errorf("unexpected record %+v", got)
	}
}

func TestInvalidJSON(t *testing.T) {
	c, _ := setupClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>oops</html>`))
	})
	_, err := c.CardByID(context.Background(), "1")
	if !errors.Is(err, ErrInvalidJSON) {
		t.Fatalf("expected ErrInvalidJSON, got %v", err)
	}
}

func TestLimiterErrorStopsRequest(t *testing.T) {
	c, lim := setupClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called without a token")
	})
	lim.err = context.Canceled

	_, err := c.CardByID(context.Background(), "1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRequestsAreRateLimited(t *testing.T) {
	var hits atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	reg := ratelimit.NewRegistry(ratelimit.NewMemoryStore())
	lim, err := reg.Limiter("catalog", ratelimit.Limit{Capacity: 2, RefillRate: 10})
	if err != nil {
		t.Fatal(err)
	}
	c, err := New(Config{BaseURL: upstream.URL}, lim)
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	for range 4 {
		if _, err := c.CardByID(context.Background(), "1"); err != nil {
			t.Fatal(err)
		}
	}
	// two free tokens, two more at 10/s
	if elapsed := time.Since(start); elapsed < 180*time.Millisecond {
		t.Errorf("expected throttling after the burst, 4 calls took %v", elapsed)
	}
	if hits.Load() != 4 {
		t.Errorf("expected 4 upstream hits, got %d", hits.Load())
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{BaseURL: "http://x"}, nil); err == nil {
		t.Error("expected error without limiter")
	}
	if _, err := New(Config{BaseURL: "not a url"}, &countingLimiter{}); err == nil {
		t.Error("expected error for invalid base url")
	}
}
