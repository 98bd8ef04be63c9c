package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/mtgmarket/cardgate/pkg/catalog"
	"github.com/mtgmarket/cardgate/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeCards struct {
	err      error
	lastName models.NameQuery
	lastPage int
}

func (f *fakeCards) SearchCards(_ context.Context, q string, page int) (json.RawMessage, error) {
	f.lastPage = page
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(fmt.Sprintf(`{"object":"list","total_cards":1,"data":[{"name":%q}]}`, q)), nil
}

func (f *fakeCards) CardByID(_ context.Context, id string) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(fmt.Sprintf(`{"id":%q}`, id)), nil
}

func (f *fakeCards) Prints(_ context.Context, id string) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{"object":"list","data":[]}`), nil
}

func (f *fakeCards) ByName(_ context.Context, q models.NameQuery) (json.RawMessage, error) {
	f.lastName = q
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{"name":"Opt"}`), nil
}

func (f *fakeCards) Images(context.Context, string) (models.ImageURIs, error) {
	if f.err != nil {
		return nil, f.err
	}
	return models.ImageURIs{"normal": "n.jpg"}, nil
}

func (f *fakeCards) Prices(context.Context, string) (models.Prices, error) {
	if f.err != nil {
		return models.Prices{}, f.err
	}
	return models.Prices{
		USD:      decimal.NewNullDecimal(decimal.RequireFromString("0.25")),
		Provider: models.PriceProvider,
	}, nil
}

func (f *fakeCards) CacheStats() models.CacheStats {
	return models.CacheStats{Entries: 3, Capacity: 10, Hits: 5}
}

type fakeLedger struct{}

func (fakeLedger) Summary(context.Context, time.Time) ([]models.EndpointSummary, error) {
	return []models.EndpointSummary{{Endpoint: models.EndpointCard, Calls: 4, AvgLatencyMs: 12}}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func do(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s: %v (%s)", path, err, w.Body.String())
	}
	return w, body
}

func TestCardRoutes(t *testing.T) {
	s := New(":0", &fakeCards{}, WithLogger(quietLogger()))

	tests := []struct {
		path string
		key  string
		want string
	}{
		{"/api/cards/abc", "data", `{"id":"abc"}`},
		{"/api/cards/abc/prints", "data", `{"data":[],"object":"list"}`},
		{"/api/cards/abc/images", "images", `{"normal":"n.jpg"}`},
		{"/api/cards/abc/prices", "prices", `{"eur":null,"eur_foil":null,"provider":"scryfall","tix":null,"usd":"0.25","usd_foil":null}`},
		{"/api/cards/by-name/exact/Opt", "data", `{"name":"Opt"}`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w, body := do(t, s, tt.path)
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
			}
			if body["ok"] != true {
				t.Errorf("expected ok=true, got %v", body["ok"])
			}
			data, _ := json.Marshal(body[tt.key])
			if string(data) != tt.want {
				t.Errorf("expected %s %s, got %s", tt.key, tt.want, data)
			}
		})
	}
}

func TestImagesAndPricesUseNamedKeys(t *testing.T) {
	s := New(":0", &fakeCards{}, WithLogger(quietLogger()))

	for path, key := range map[string]string{
		"/api/cards/abc/images": "images",
		"/api/cards/abc/prices": "prices",
	} {
		_, body := do(t, s, path)
		if _, ok := body[key]; !ok {
			t.Errorf("%s: expected %q key, got %v", path, key, body)
		}
		if _, ok := body["data"]; ok {
			t.Errorf("%s: unexpected data key", path)
		}
	}

	_, body := do(t, s, "/api/cards/abc/prices")
	prices := body["prices"].(map[string]any)
	if prices["usd"] != "0.25" || prices["eur"] != nil {
		t.Errorf("unexpected prices %v", prices)
	}
}

func TestSearchMergesProviderObject(t *testing.T) {
	cards := &fakeCards{}
	s := New(":0", cards, WithLogger(quietLogger()))

	w, body := do(t, s, "/api/cards/search?q=opt&page=2")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body["ok"] != true || body["object"] != "list" || body["total_cards"] != float64(1) {
		t.Errorf("unexpected body %v", body)
	}
	if cards.lastPage != 2 {
		t.Errorf("expected page 2, got %d", cards.lastPage)
	}

	do(t, s, "/api/cards/search?q=opt")
	if cards.lastPage != 1 {
		t.Errorf("expected default page 1, got %d", cards.lastPage)
	}
}

func TestSearchValidation(t *testing.T) {
	s := New(":0", &fakeCards{}, WithLogger(quietLogger()))

	for _, path := range []string{
		"/api/cards/search",
		"/api/cards/search?q=opt&page=0",
		"/api/cards/search?q=opt&page=two",
	} {
		w, body := do(t, s, path)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, w.Code)
		}
		if body["ok"] != false || body["error"] == "" {
			t.Errorf("%s: unexpected body %v", path, body)
		}
	}
}

func TestFuzzyName(t *testing.T) {
	cards := &fakeCards{}
	s := New(":0", cards, WithLogger(quietLogger()))

	do(t, s, "/api/cards/by-name/fuzzy/lightning%20bolt")
	if cards.lastName.Fuzzy != "lightning bolt" || cards.lastName.Exact != "" {
		t.Errorf("unexpected name query %+v", cards.lastName)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found passes through", &catalog.UpstreamError{StatusCode: 404, Body: "{}"}, http.StatusNotFound},
		{"upstream 5xx", &catalog.UpstreamError{StatusCode: 503}, http.StatusBadGateway},
		{"invalid argument", fmt.Errorf("wrapped: %w", catalog.ErrInvalidArgument), http.StatusBadRequest},
		{"transport", errors.New("connection reset"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(":0", &fakeCards{err: tt.err}, WithLogger(quietLogger()))
			w, body := do(t, s, "/api/cards/abc")
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
			if body["ok"] != false {
				t.Errorf("expected ok=false, got %v", body["ok"])
			}
		})
	}
}

func TestStats(t *testing.T) {
	s := New(":0", &fakeCards{}, WithLogger(quietLogger()), WithLedger(fakeLedger{}))

	w, body := do(t, s, "/api/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	data := body["data"].(map[string]any)
	cache := data["cache"].(map[string]any)
	if cache["entries"] != float64(3) || cache["hits"] != float64(5) {
		t.Errorf("unexpected cache stats %v", cache)
	}
	upstream := data["upstream"].([]any)
	if len(upstream) != 1 {
		t.Errorf("expected 1 upstream summary, got %v", upstream)
	}
}

func TestRequestID(t *testing.T) {
	s := New(":0", &fakeCards{}, WithLogger(quietLogger()))

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated request id")
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	s.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("expected caller's request id, got %q", got)
	}
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	s := New(":0", &fakeCards{}, WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))))

	do(t, s, "/api/cards/abc")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if entry["path"] != "/api/cards/abc" || entry["status"] != float64(200) {
		t.Errorf("unexpected log entry %v", entry)
	}
}

func TestListenAndServeShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	s := New(addr, &fakeCards{}, WithLogger(quietLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("server did not shut down")
	}
}
