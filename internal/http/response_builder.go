package http

import (
	"encoding/json"
	"html/template"
	"net/http"

	"saldo/internal/core"
)

// Events raised through HX-Trigger; web/static/app.js listens for them.
const (
	eventTransactionCreated = "transaction:created"
	eventFormReset          = "form:reset"
	eventMonthSelected      = "month:selected"
	eventNotification       = "show-notification"
)

type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
)

type notification struct {
	Type     NotificationType `json:"type"`
	Message  string           `json:"message"`
	Duration int              `json:"duration"`
}

type monthEvent struct {
	Month core.MonthKey `json:"month"`
}

// HTMXResponse collects the status, headers, body and HX-Trigger events of
// one response.
type HTMXResponse struct {
	status int
	header http.Header
	events map[string]any
	body   []byte
}

func NewHTMXResponse() *HTMXResponse {
	return &HTMXResponse{
		status: http.StatusOK,
		header: make(http.Header),
		events: make(map[string]any),
	}
}

func (r *HTMXResponse) Status(code int) *HTMXResponse {
	r.status = code
	return r
}

func (r *HTMXResponse) Header(name, value string) *HTMXResponse {
	r.header.Set(name, value)
	return r
}

// Trigger raises event on the client with detail as its payload. A later
// call with the same event replaces the detail.
func (r *HTMXResponse) Trigger(event string, detail any) *HTMXResponse {
	r.events[event] = detail
	return r
}

func (r *HTMXResponse) TransactionCreated(month core.MonthKey) *HTMXResponse {
	return r.Trigger(eventTransactionCreated, monthEvent{Month: month})
}

func (r *HTMXResponse) FormReset() *HTMXResponse {
	return r.Trigger(eventFormReset, struct{}{})
}

// MonthSelected tells the month selector which month is shown.
func (r *HTMXResponse) MonthSelected(month core.MonthKey) *HTMXResponse {
	return r.Trigger(eventMonthSelected, monthEvent{Month: month})
}

// Notify shows a toast. Errors stay on screen longer than successes.
func (r *HTMXResponse) Notify(kind NotificationType, message string) *HTMXResponse {
	duration := 3000
	if kind == NotificationError {
		duration = 5000
	}
	return r.Trigger(eventNotification, notification{Type: kind, Message: message, Duration: duration})
}

func (r *HTMXResponse) HTML(html string) *HTMXResponse {
	r.header.Set("Content-Type", "text/html; charset=utf-8")
	r.body = []byte(html)
	return r
}

func (r *HTMXResponse) Write(w http.ResponseWriter) {
	for name, values := range r.header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	if len(r.events) > 0 {
		if buf, err := json.Marshal(r.events); err == nil {
			w.Header().Set("HX-Trigger", string(buf))
		}
	}
	w.WriteHeader(r.status)
	if len(r.body) > 0 {
		_, _ = w.Write(r.body)
	}
}

// ErrorResponse renders message as an escaped error fragment and raises an
// error notification with the same text.
func ErrorResponse(status int, message string) *HTMXResponse {
	return NewHTMXResponse().
		Status(status).
		Notify(NotificationError, message).
		HTML(`<div class="error">` + template.HTMLEscapeString(message) + `</div>`)
}

func MethodNotAllowed(allowed string) *HTMXResponse {
	return NewHTMXResponse().
		Status(http.StatusMethodNotAllowed).
		Header("Allow", allowed)
}
