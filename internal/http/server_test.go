package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"saldo/internal/core"
	"saldo/internal/services"
	"saldo/internal/storage"
	"saldo/internal/storage/memory"
)

func fixedNow() time.Time {
	return time.Date(2024, time.January, 15, 9, 0, 0, 0, time.Local)
}

type readOnlyStore struct{}

func (readOnlyStore) Get(context.Context, string) ([]byte, error) { return nil, storage.ErrNotFound }
func (readOnlyStore) Set(context.Context, string, []byte) error   { return errors.New("read-only") }

func newTestServer(t *testing.T, store storage.KeyValueStore, opts Options) (*Server, *services.Tracker) {
	t.Helper()
	tr := services.NewTracker(store, services.WithClock(fixedNow), services.WithLocale(core.LocaleFor("pt-BR")))
	tr.Load(context.Background())
	srv := NewServer(":0", tr, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, tr
}

func seededStore(t *testing.T) storage.KeyValueStore {
	t.Helper()
	kv := memory.New()
	blob := `{"2023-12":[{"description":"Freela","amount":"250","type":"receita"}],"2024-01":[]}`
	if err := kv.Set(context.Background(), services.DefaultStorageKey, []byte(blob)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return kv
}

func do(srv *Server, method, target, contentType, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.RemoteAddr = "192.0.2.10:4321"
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

const formType = "application/x-www-form-urlencoded"

func TestIndexAndHealth(t *testing.T) {
	srv, _ := newTestServer(t, memory.New(), Options{})

	rr := do(srv, http.MethodGet, "/", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"Nova transação", "janeiro de 2024", "R$ 0,00", `value="2024-01" selected`} {
		if !strings.Contains(body, want) {
			t.Errorf("index body missing %q", want)
		}
	}
	if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
	if !strings.HasPrefix(rr.Header().Get("X-Request-ID"), "req_") {
		t.Errorf("missing request id header")
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		if rr := do(srv, http.MethodGet, path, "", ""); rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	if rr := do(srv, http.MethodGet, "/nope", "", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown path status=%d", rr.Code)
	}
}

func TestIndexWithoutMonthsShowsNoData(t *testing.T) {
	tr := services.NewTracker(memory.New(), services.WithLocale(core.LocaleFor("pt-BR")))
	srv := NewServer(":0", tr, Options{})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	rr := do(srv, http.MethodGet, "/", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Sem dados") {
		t.Fatalf("expected no-data placeholder in body")
	}
}

func TestMissingTemplates(t *testing.T) {
	srv, _ := newTestServer(t, memory.New(), Options{})
	srv.templates = nil

	if rr := do(srv, http.MethodGet, "/", "", ""); rr.Code != http.StatusInternalServerError {
		t.Fatalf("index status=%d, want 500", rr.Code)
	}
	if rr := do(srv, http.MethodGet, "/readyz", "", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d, want 503", rr.Code)
	}
}

func TestCreateTransactionValidationAndSuccess(t *testing.T) {
	srv, tr := newTestServer(t, memory.New(), Options{})

	rr := do(srv, http.MethodGet, "/transactions", "", "")
	if rr.Code != http.StatusMethodNotAllowed || rr.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("expected 405 with Allow: POST, got %d %q", rr.Code, rr.Header().Get("Allow"))
	}

	rr = do(srv, http.MethodPost, "/transactions", formType, "description=&amount=1&type=income")
	if rr.Code != http.StatusUnprocessableEntity || !strings.Contains(rr.Body.String(), "Descrição obrigatória") {
		t.Fatalf("missing description: %d %s", rr.Code, rr.Body.String())
	}
	if trigger := rr.Header().Get("HX-Trigger"); !strings.Contains(trigger, `"type":"error"`) {
		t.Fatalf("422 should raise an error notification, got %q", trigger)
	}

	rr = do(srv, http.MethodPost, "/transactions", formType, "description=x&amount=1&type=gift")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid type: expected 422, got %d", rr.Code)
	}

	rr = do(srv, http.MethodPost, "/transactions", "application/json", `{"description":`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("broken json: expected 400, got %d", rr.Code)
	}

	rr = do(srv, http.MethodPost, "/transactions", formType, "description=Salary&amount=1000&type=income")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	trigger := rr.Header().Get("HX-Trigger")
	if !strings.Contains(trigger, `"transaction:created"`) || !strings.Contains(trigger, `"month":"2024-01"`) {
		t.Fatalf("unexpected HX-Trigger %s", trigger)
	}
	body := rr.Body.String()
	for _, want := range []string{"Salary", "R$ 1000,00", `class="income"`, "Receitas"} {
		if !strings.Contains(body, want) {
			t.Errorf("partial missing %q", want)
		}
	}

	rr = do(srv, http.MethodPost, "/transactions", "application/json", `{"description":"Rent","amount":300,"type":"expense"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "R$ 700,00") || !strings.Contains(rr.Body.String(), `class="expense"`) {
		t.Fatalf("balance not updated: %s", rr.Body.String())
	}

	if n := len(tr.Snapshot().Transactions("2024-01")); n != 2 {
		t.Fatalf("stored %d transactions, want 2", n)
	}
}

func TestCreateTransactionAccentedDescription(t *testing.T) {
	srv, tr := newTestServer(t, memory.New(), Options{})

	desc := strings.Repeat("ç", 150)
	rr := do(srv, http.MethodPost, "/transactions", formType, "description="+strings.Repeat("%C3%A7", 150)+"&amount=10&type=expense")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for 150 accented characters, got %d: %s", rr.Code, rr.Body.String())
	}
	if txs := tr.Snapshot().Transactions("2024-01"); len(txs) != 1 || txs[0].Description != desc {
		t.Fatalf("stored %v", txs)
	}

	rr = do(srv, http.MethodPost, "/transactions", formType, "description="+strings.Repeat("%C3%A7", 201)+"&amount=10&type=expense")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for 201 characters, got %d", rr.Code)
	}
}

func TestCreateTransactionSaveFailure(t *testing.T) {
	srv, _ := newTestServer(t, readOnlyStore{}, Options{})

	rr := do(srv, http.MethodPost, "/transactions", formType, "description=x&amount=1&type=income")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Erro ao salvar") {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
	if trigger := rr.Header().Get("HX-Trigger"); !strings.Contains(trigger, `"show-notification"`) || !strings.Contains(trigger, `"type":"error"`) {
		t.Fatalf("500 should raise an error notification, got %q", trigger)
	}
}

func TestMonthPartial(t *testing.T) {
	srv, tr := newTestServer(t, seededStore(t), Options{})

	rr := do(srv, http.MethodGet, "/ui/month?month=2023-12", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "dezembro de 2023") || !strings.Contains(rr.Body.String(), "R$ 250,00") {
		t.Fatalf("unexpected partial %s", rr.Body.String())
	}
	if got := tr.Snapshot().Selected(); got != "2023-12" {
		t.Fatalf("selected = %q, want 2023-12", got)
	}

	rr = do(srv, http.MethodGet, "/ui/month", "", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "dezembro de 2023") {
		t.Fatalf("without month param the selected month should render, got %d", rr.Code)
	}

	if rr := do(srv, http.MethodGet, "/ui/month?month=2030-01", "", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown month status=%d", rr.Code)
	}
	if rr := do(srv, http.MethodGet, "/ui/month?month=2024-1", "", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid month status=%d", rr.Code)
	}
}

func TestAPIMonths(t *testing.T) {
	srv, _ := newTestServer(t, seededStore(t), Options{})

	rr := do(srv, http.MethodGet, "/api/months", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var months []services.MonthEntry
	if err := json.NewDecoder(rr.Body).Decode(&months); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(months) != 2 || months[0].Key != "2024-01" || months[1].Label != "dezembro de 2023" {
		t.Fatalf("months = %+v", months)
	}

	rr = do(srv, http.MethodGet, "/api/months/2023-12", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var view core.MonthView
	if err := json.NewDecoder(rr.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.FormattedBalance != "R$ 250,00" || len(view.Transactions) != 1 || view.Transactions[0].Type != core.Income {
		t.Fatalf("view = %+v", view)
	}
	if len(view.Chart.Colors) != 1 || view.Chart.Colors[0] != "#2ecc71" {
		t.Fatalf("chart = %+v", view.Chart)
	}

	if rr := do(srv, http.MethodGet, "/api/months/2030-01", "", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown month status=%d", rr.Code)
	}
	if rr := do(srv, http.MethodGet, "/api/months/bad", "", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid month status=%d", rr.Code)
	}
}

func TestMonthViewCacheInvalidatedOnRecord(t *testing.T) {
	srv, _ := newTestServer(t, memory.New(), Options{CacheTTL: time.Hour})

	do(srv, http.MethodGet, "/api/months/2024-01", "", "")
	do(srv, http.MethodGet, "/api/months/2024-01", "", "")
	if st := srv.viewCache.Stats(); st.Hits != 1 || st.Misses != 1 {
		t.Fatalf("stats after two reads = %+v", st)
	}

	do(srv, http.MethodPost, "/transactions", formType, "description=Bonus&amount=50&type=income")

	rr := do(srv, http.MethodGet, "/api/months/2024-01", "", "")
	var view core.MonthView
	if err := json.NewDecoder(rr.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.FormattedBalance != "R$ 50,00" {
		t.Fatalf("stale view served: %+v", view)
	}

	rr = do(srv, http.MethodGet, "/api/security", "", "")
	if !strings.Contains(rr.Body.String(), `"hits"`) {
		t.Fatalf("unexpected security body %s", rr.Body.String())
	}
}

func TestMonthViewCacheIgnoresViewBuiltBeforeRecord(t *testing.T) {
	srv, tr := newTestServer(t, memory.New(), Options{CacheTTL: time.Hour})

	// A reader builds the view, a record lands and invalidates the cache,
	// then the reader stores its view.
	old, version, err := tr.VersionedView("2024-01")
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if rr := do(srv, http.MethodPost, "/transactions", formType, "description=Salary&amount=1000&type=income"); rr.Code != http.StatusOK {
		t.Fatalf("record status=%d", rr.Code)
	}
	srv.viewCache.Set("2024-01", cachedView{version: version, view: old})

	rr := do(srv, http.MethodGet, "/api/months/2024-01", "", "")
	var view core.MonthView
	if err := json.NewDecoder(rr.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.FormattedBalance != "R$ 1000,00" || len(view.Transactions) != 1 {
		t.Fatalf("outdated view served: %+v", view)
	}

	rr = do(srv, http.MethodGet, "/", "", "")
	if !strings.Contains(rr.Body.String(), "R$ 1000,00") {
		t.Fatal("index rendered an outdated month")
	}
}

func TestRateLimitOnPost(t *testing.T) {
	srv, _ := newTestServer(t, memory.New(), Options{RequestsPerMinute: 2})

	for i := 0; i < 2; i++ {
		if rr := do(srv, http.MethodPost, "/transactions", formType, "description=x&amount=1&type=income"); rr.Code != http.StatusOK {
			t.Fatalf("request %d status=%d", i, rr.Code)
		}
	}
	rr := do(srv, http.MethodPost, "/transactions", formType, "description=x&amount=1&type=income")
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected 429 with Retry-After, got %d", rr.Code)
	}

	if rr := do(srv, http.MethodGet, "/api/months", "", ""); rr.Code != http.StatusOK {
		t.Fatalf("GET should not be rate limited, got %d", rr.Code)
	}
	if hits := srv.metrics.snapshot().RateLimitHits; hits != 1 {
		t.Fatalf("rate limit hits = %d", hits)
	}
}

func TestExport(t *testing.T) {
	srv, _ := newTestServer(t, seededStore(t), Options{})

	rr := do(srv, http.MethodGet, "/export.xlsx?month=2023-12", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if rr.Header().Get("Content-Type") != xlsxContentType {
		t.Fatalf("Content-Type = %q", rr.Header().Get("Content-Type"))
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "saldo-2023-12.xlsx") {
		t.Fatalf("Content-Disposition = %q", rr.Header().Get("Content-Disposition"))
	}
	f, err := excelize.OpenReader(bytes.NewReader(rr.Body.Bytes()))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	if sheets := f.GetSheetList(); len(sheets) != 2 || sheets[1] != "2023-12" {
		t.Fatalf("sheets = %v", sheets)
	}

	if rr := do(srv, http.MethodGet, "/export.xlsx", "", ""); rr.Code != http.StatusOK {
		t.Fatalf("full export status=%d", rr.Code)
	}
	if rr := do(srv, http.MethodGet, "/export.xlsx?month=2030-01", "", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown month status=%d", rr.Code)
	}
}
