package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func decodeTriggers(t *testing.T, w *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	header := w.Header().Get("HX-Trigger")
	if header == "" {
		return nil
	}
	var events map[string]json.RawMessage
	if err := json.Unmarshal([]byte(header), &events); err != nil {
		t.Fatalf("HX-Trigger is not JSON: %v (%s)", err, header)
	}
	return events
}

func TestHTMXResponse_Events(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		TransactionCreated("2024-01").
		FormReset().
		MonthSelected("2024-01").
		Notify(NotificationSuccess, "Saved").
		Write(w)

	events := decodeTriggers(t, w)
	want := map[string]string{
		eventTransactionCreated: `{"month":"2024-01"}`,
		eventFormReset:          `{}`,
		eventMonthSelected:      `{"month":"2024-01"}`,
		eventNotification:       `{"type":"success","message":"Saved","duration":3000}`,
	}
	for name, detail := range want {
		if got := string(events[name]); got != detail {
			t.Errorf("%s = %s, want %s", name, got, detail)
		}
	}
}

func TestHTMXResponse_HTML(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Status(http.StatusCreated).
		HTML(`<section id="month"></section>`).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Body.String() != `<section id="month"></section>` {
		t.Errorf("Body = %q", w.Body.String())
	}
	if w.Header().Get("HX-Trigger") != "" {
		t.Error("HX-Trigger should be absent without events")
	}
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		message  string
		wantBody string
	}{
		{"bad request", http.StatusBadRequest, "Invalid input", `<div class="error">Invalid input</div>`},
		{"unprocessable entity", http.StatusUnprocessableEntity, "Descrição obrigatória", `<div class="error">Descrição obrigatória</div>`},
		{"internal server error", http.StatusInternalServerError, "Erro ao salvar", `<div class="error">Erro ao salvar</div>`},
		{"escaped", http.StatusBadRequest, "<script>alert('x')</script>", `<div class="error">&lt;script&gt;alert(&#39;x&#39;)&lt;/script&gt;</div>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			ErrorResponse(tt.status, tt.message).Write(w)

			if w.Code != tt.status {
				t.Errorf("Status code = %d, want %d", w.Code, tt.status)
			}
			if w.Body.String() != tt.wantBody {
				t.Errorf("Body = %q, want %q", w.Body.String(), tt.wantBody)
			}

			var n notification
			if err := json.Unmarshal(decodeTriggers(t, w)[eventNotification], &n); err != nil {
				t.Fatalf("notification: %v", err)
			}
			if n.Type != NotificationError || n.Message != tt.message || n.Duration != 5000 {
				t.Errorf("notification = %+v", n)
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	w := httptest.NewRecorder()

	MethodNotAllowed(http.MethodPost).Write(w)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
	if w.Header().Get("Allow") != http.MethodPost {
		t.Errorf("Allow header = %q", w.Header().Get("Allow"))
	}
	if strings.TrimSpace(w.Body.String()) != "" {
		t.Errorf("unexpected body %q", w.Body.String())
	}
}
