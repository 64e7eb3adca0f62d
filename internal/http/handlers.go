package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"saldo/internal/cache"
	"saldo/internal/core"
	"saldo/internal/export"
	applog "saldo/internal/log"
	"saldo/internal/services"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var templateFuncs = template.FuncMap{
	"typeLabel": func(l core.Locale, t core.TransactionType) string { return l.TypeLabel(t) },
}

type monthData struct {
	Text      uiText
	Locale    core.Locale
	View      core.MonthView
	ChartJSON string
}

type indexData struct {
	Text     uiText
	Locale   core.Locale
	Months   []services.MonthEntry
	Selected core.MonthKey
	Month    *monthData
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("templates not loaded"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if s.templates == nil {
		slog.ErrorContext(r.Context(), "Templates not loaded", applog.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	snap := s.tracker.Snapshot()
	data := indexData{
		Text:     s.text,
		Locale:   s.tracker.Locale(),
		Months:   s.tracker.Months(),
		Selected: snap.Selected(),
	}
	if data.Selected != "" {
		view, err := s.monthView(r.Context(), data.Selected)
		if err != nil {
			slog.ErrorContext(r.Context(), "Selected month view failed", applog.FieldMonth, data.Selected, "error", err)
		} else {
			md := s.monthData(view)
			data.Month = &md
		}
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "index.html", data); err != nil {
		slog.ErrorContext(r.Context(), "Index template execution failed", "error", err, "template", "index.html")
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleCreateTransaction records a transaction in the current month and
// answers with the refreshed month partial.
func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		slog.WarnContext(ctx, "Parse body error", "error", err, applog.FieldMethod, r.Method, applog.FieldPath, r.URL.Path)
		ErrorResponse(http.StatusBadRequest, s.text.InvalidRequest).Write(w)
		return
	}
	tx, err := p.Transaction()
	if err != nil {
		if msg, ok := s.text.validationMessage(err); ok {
			ErrorResponse(http.StatusUnprocessableEntity, msg).Write(w)
			return
		}
		ErrorResponse(http.StatusBadRequest, s.text.InvalidRequest).Write(w)
		return
	}

	key, err := s.tracker.Record(ctx, tx)
	if err != nil {
		if msg, ok := s.text.validationMessage(err); ok {
			ErrorResponse(http.StatusUnprocessableEntity, msg).Write(w)
			return
		}
		s.log.LogError(ctx, "Transaction record failed", err, applog.ComponentHTTP, applog.OpRecord,
			applog.NewFields().WithTransaction(key.String(), tx.Description, tx.Amount, string(tx.Type)))
		ErrorResponse(http.StatusInternalServerError, s.text.SaveFailed).Write(w)
		return
	}
	s.viewCache.Delete(key.String())

	resp := NewHTMXResponse().
		TransactionCreated(key).
		FormReset().
		MonthSelected(key).
		Notify(NotificationSuccess, s.text.Recorded)

	html, err := s.renderMonth(ctx, key)
	if err != nil {
		slog.ErrorContext(ctx, "Month render after record failed", applog.FieldMonth, key, "error", err)
		html = `<div class="success">` + template.HTMLEscapeString(s.text.Recorded) + `</div>`
	}
	resp.HTML(html).Write(w)
}

// handleMonthPartial selects a month and renders its partial. Without a
// month parameter the selected month is rendered.
func (s *Server) handleMonthPartial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, err := parseMonthParam(r.URL.Query())
	if err != nil {
		ErrorResponse(http.StatusBadRequest, s.text.InvalidMonth).Write(w)
		return
	}
	if key == "" {
		key = s.tracker.Snapshot().Selected()
	}
	if err := s.tracker.Select(key); err != nil {
		if errors.Is(err, core.ErrUnknownMonth) {
			ErrorResponse(http.StatusNotFound, s.text.UnknownMonth).Write(w)
			return
		}
		ErrorResponse(http.StatusBadRequest, s.text.InvalidMonth).Write(w)
		return
	}

	html, err := s.renderMonth(ctx, key)
	if err != nil {
		slog.ErrorContext(ctx, "Month render failed", applog.FieldMonth, key, "error", err)
		ErrorResponse(http.StatusInternalServerError, "template error").Write(w)
		return
	}
	NewHTMXResponse().MonthSelected(key).HTML(html).Write(w)
}

func (s *Server) handleAPIMonths(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Months())
}

func (s *Server) handleAPIMonth(w http.ResponseWriter, r *http.Request) {
	key, err := core.ParseMonthKey(r.PathValue("key"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	view, err := s.monthView(r.Context(), key)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleAPISecurity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Security SecuritySnapshot `json:"security"`
		Cache    cache.Stats      `json:"cache"`
	}{
		Security: s.metrics.snapshot(),
		Cache:    s.viewCache.Stats(),
	})
}

// handleExport streams an XLSX workbook of one month (?month=) or all months.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, err := parseMonthParam(r.URL.Query())
	if err != nil {
		http.Error(w, s.text.InvalidMonth, http.StatusBadRequest)
		return
	}

	var keys []core.MonthKey
	filename := "saldo.xlsx"
	if key != "" {
		keys = append(keys, key)
		filename = "saldo-" + key.String() + ".xlsx"
	}

	buf, err := export.MonthsXLSX(s.tracker.Snapshot(), s.tracker.Locale(), keys...)
	if err != nil {
		if errors.Is(err, core.ErrUnknownMonth) {
			http.Error(w, s.text.UnknownMonth, http.StatusNotFound)
			return
		}
		s.log.LogError(ctx, "Export failed", err, applog.ComponentExport, applog.OpExport, nil)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	_, _ = w.Write(buf)
}

type cachedView struct {
	version uint64
	view    core.MonthView
}

// monthView returns the cached view of key, building it on a miss or when the
// entry predates the tracker's current version.
func (s *Server) monthView(ctx context.Context, key core.MonthKey) (core.MonthView, error) {
	if c, ok := s.viewCache.Get(key.String()); ok {
		if c.version == s.tracker.Version() {
			slog.DebugContext(ctx, "Month view cache hit", applog.FieldMonth, key)
			return c.view, nil
		}
		slog.DebugContext(ctx, "Month view cache entry outdated", applog.FieldMonth, key, "version", c.version)
	}
	v, version, err := s.tracker.VersionedView(key)
	if err != nil {
		return core.MonthView{}, err
	}
	s.viewCache.Set(key.String(), cachedView{version: version, view: v})
	return v, nil
}

func (s *Server) monthData(view core.MonthView) monthData {
	chart, err := json.Marshal(view.Chart)
	if err != nil {
		chart = []byte("{}")
	}
	return monthData{
		Text:      s.text,
		Locale:    s.tracker.Locale(),
		View:      view,
		ChartJSON: string(chart),
	}
}

func (s *Server) renderMonth(ctx context.Context, key core.MonthKey) (string, error) {
	if s.templates == nil {
		return "", errors.New("templates not loaded")
	}
	view, err := s.monthView(ctx, key)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "month", s.monthData(view)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
