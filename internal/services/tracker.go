package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"saldo/internal/core"
	applog "saldo/internal/log"
	"saldo/internal/storage"
)

const DefaultStorageKey = "monthlyData"

// Publisher announces transactions after they are persisted.
type Publisher interface {
	PublishTransactionRecorded(ctx context.Context, month core.MonthKey, tx core.Transaction) error
}

// MonthEntry is one option of the month selector.
type MonthEntry struct {
	Key   core.MonthKey `json:"key"`
	Label string        `json:"label"`
}

// Tracker owns the current State. Persistence happens only in Load and Save;
// every mutation saves before returning.
type Tracker struct {
	mu        sync.Mutex
	state     core.State
	version   uint64 // bumped whenever transactions change
	store     storage.KeyValueStore
	publisher Publisher
	key       string
	locale    core.Locale
	now       func() time.Time
	log       *applog.StructuredLogger
}

type Option func(*Tracker)

func WithPublisher(p Publisher) Option {
	return func(t *Tracker) { t.publisher = p }
}

func WithStorageKey(key string) Option {
	return func(t *Tracker) {
		if key != "" {
			t.key = key
		}
	}
}

func WithLocale(loc core.Locale) Option {
	return func(t *Tracker) { t.locale = loc }
}

// WithClock replaces time.Now when deciding the current month.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

func NewTracker(store storage.KeyValueStore, opts ...Option) *Tracker {
	t := &Tracker{
		state:  core.NewState(nil),
		store:  store,
		key:    DefaultStorageKey,
		locale: core.LocaleFor(""),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = applog.NewStructuredLogger(applog.New(applog.Config{
		Handler:   slog.Default().Handler(),
		Component: applog.ComponentTracker,
	}))
	return t
}

// Load replaces the in-memory state with the persisted one. Missing or
// unreadable data gives an empty store; the failure is only logged. An empty
// store gets the current month, and the most recent month is selected.
func (t *Tracker) Load(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := core.NewState(nil)
	buf, err := t.store.Get(ctx, t.key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		slog.InfoContext(ctx, "No stored data, starting empty", applog.FieldStorageKey, t.key)
	case err != nil:
		slog.WarnContext(ctx, "Failed to read stored data, starting empty", applog.FieldStorageKey, t.key, "error", err)
	default:
		decoded, err := core.UnmarshalState(buf)
		if err != nil {
			slog.WarnContext(ctx, "Stored data is malformed, starting empty", applog.FieldStorageKey, t.key, "error", err)
		} else {
			state = decoded
		}
	}

	if state.Len() == 0 {
		state = state.EnsureMonth(core.MonthKeyOf(t.now()))
	}
	if keys := state.Keys(); len(keys) > 0 {
		state, _ = state.Select(keys[0])
	}
	t.state = state
	t.version++

	slog.DebugContext(ctx, "Loaded tracker state", "months", state.Len(), "selected", state.Selected())
}

// Save writes the full month mapping under the storage key.
func (t *Tracker) Save(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveLocked(ctx, t.state)
}

func (t *Tracker) saveLocked(ctx context.Context, s core.State) error {
	buf, err := core.MarshalState(s)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := t.store.Set(ctx, t.key, buf); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Record adds tx to the current month, selects that month and saves.
func (t *Tracker) Record(ctx context.Context, tx core.Transaction) (core.MonthKey, error) {
	key := core.MonthKeyOf(t.now())
	return key, t.RecordIn(ctx, key, tx)
}

// RecordIn adds tx to an explicit month. When saving fails the in-memory
// state is left as it was.
func (t *Tracker) RecordIn(ctx context.Context, key core.MonthKey, tx core.Transaction) error {
	if _, err := core.ParseMonthKey(key.String()); err != nil {
		return err
	}
	if err := tx.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	next, err := t.state.AddTransaction(key, tx).Select(key)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	if err := t.saveLocked(ctx, next); err != nil {
		t.mu.Unlock()
		t.log.LogError(ctx, "Failed to persist transaction", err, applog.ComponentTracker, applog.OpSave,
			applog.NewFields().WithTransaction(key.String(), tx.Description, tx.Amount, string(tx.Type)))
		return err
	}
	t.state = next
	t.version++
	t.mu.Unlock()

	t.log.LogTransactionRecorded(ctx, key.String(), tx.Description, tx.Amount, string(tx.Type))

	if t.publisher != nil {
		if err := t.publisher.PublishTransactionRecorded(ctx, key, tx); err != nil {
			slog.ErrorContext(ctx, "Failed to publish transaction recorded event",
				applog.FieldMonth, key, "error", err)
		}
	}
	return nil
}

// Select changes the selected month. The selection is not persisted.
func (t *Tracker) Select(key core.MonthKey) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	next, err := t.state.Select(key)
	if err != nil {
		return err
	}
	t.state = next
	return nil
}

// Snapshot returns the current state. States are immutable, so the caller
// may keep it.
func (t *Tracker) Snapshot() core.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tracker) Locale() core.Locale {
	return t.locale
}

// Version identifies the transaction data. It changes on every Load and
// every recorded transaction, never on Select.
func (t *Tracker) Version() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.version
}

// View builds the month view for key, or ErrUnknownMonth.
func (t *Tracker) View(key core.MonthKey) (core.MonthView, error) {
	v, _, err := t.VersionedView(key)
	return v, err
}

// VersionedView is View plus the Version of the state it was built from.
func (t *Tracker) VersionedView(key core.MonthKey) (core.MonthView, uint64, error) {
	t.mu.Lock()
	s, version := t.state, t.version
	t.mu.Unlock()

	if !s.Has(key) {
		return core.MonthView{}, version, fmt.Errorf("%w: %s", core.ErrUnknownMonth, key)
	}
	return core.BuildMonthView(s, key, t.locale), version, nil
}

// SelectedView is the view of the selected month; empty when there are no
// months at all.
func (t *Tracker) SelectedView() core.MonthView {
	s := t.Snapshot()
	return core.BuildMonthView(s, s.Selected(), t.locale)
}

// Months lists the month selector options, most recent first.
func (t *Tracker) Months() []MonthEntry {
	s := t.Snapshot()
	keys := s.Keys()
	out := make([]MonthEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, MonthEntry{Key: k, Label: t.locale.MonthLabel(k)})
	}
	return out
}
