package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"saldo/internal/core"
	"saldo/internal/storage"
	"saldo/internal/storage/memory"
)

type fakePublisher struct {
	mu     sync.Mutex
	months []core.MonthKey
	txs    []core.Transaction
	err    error
}

func (f *fakePublisher) PublishTransactionRecorded(_ context.Context, month core.MonthKey, tx core.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.months = append(f.months, month)
	f.txs = append(f.txs, tx)
	return f.err
}

type failingStore struct {
	getErr error
	setErr error
	data   []byte
}

func (f *failingStore) Get(context.Context, string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.data, nil
}

func (f *failingStore) Set(context.Context, string, []byte) error {
	return f.setErr
}

func fixedClock(year int, month time.Month) func() time.Time {
	return func() time.Time { return time.Date(year, month, 15, 10, 0, 0, 0, time.Local) }
}

func TestTrackerLoadEmptyStoreAddsCurrentMonth(t *testing.T) {
	tr := NewTracker(memory.New(), WithClock(fixedClock(2024, time.January)))
	tr.Load(context.Background())

	s := tr.Snapshot()
	if s.Len() != 1 || !s.Has("2024-01") {
		t.Fatalf("expected only the current month, got %v", s.Keys())
	}
	if s.Selected() != "2024-01" {
		t.Fatalf("selected = %q", s.Selected())
	}
	if len(s.Transactions("2024-01")) != 0 {
		t.Fatal("current month should start empty")
	}
}

func TestTrackerLoadMalformedBlob(t *testing.T) {
	cases := map[string][]byte{
		"not json":     []byte("{not json"),
		"wrong shape":  []byte(`["a","b"]`),
		"wrong values": []byte(`{"2024-01": 5}`),
	}
	for name, blob := range cases {
		t.Run(name, func(t *testing.T) {
			kv := memory.New()
			_ = kv.Set(context.Background(), DefaultStorageKey, blob)
			tr := NewTracker(kv, WithClock(fixedClock(2024, time.March)))
			tr.Load(context.Background())

			if keys := tr.Snapshot().Keys(); len(keys) != 1 || keys[0] != "2024-03" {
				t.Fatalf("keys = %v, want only current month", keys)
			}
		})
	}
}

func TestTrackerLoadReadError(t *testing.T) {
	tr := NewTracker(&failingStore{getErr: errors.New("disk on fire")}, WithClock(fixedClock(2024, time.May)))
	tr.Load(context.Background())
	if !tr.Snapshot().Has("2024-05") {
		t.Fatal("read errors should yield an empty store plus the current month")
	}
}

func TestTrackerLoadSelectsMostRecent(t *testing.T) {
	kv := memory.New()
	blob := []byte(`{"2023-11":[{"description":"a","amount":"1","type":"income"}],"2024-02":[],"2023-12":[]}`)
	_ = kv.Set(context.Background(), "custom", blob)

	tr := NewTracker(kv, WithStorageKey("custom"), WithClock(fixedClock(2024, time.June)))
	tr.Load(context.Background())

	s := tr.Snapshot()
	if s.Selected() != "2024-02" {
		t.Fatalf("selected = %q, want 2024-02", s.Selected())
	}
	if s.Has("2024-06") {
		t.Fatal("current month is only inserted into an empty store")
	}
}

func TestTrackerRecordScenario(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	pub := &fakePublisher{}
	tr := NewTracker(kv, WithPublisher(pub), WithClock(fixedClock(2024, time.January)), WithLocale(core.LocaleFor("pt-BR")))
	tr.Load(ctx)

	if _, err := tr.Record(ctx, core.Transaction{Description: "Salary", Amount: "1000", Type: core.Income}); err != nil {
		t.Fatalf("record salary: %v", err)
	}
	view, err := tr.View("2024-01")
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if view.FormattedBalance != "R$ 1000,00" {
		t.Fatalf("balance = %q, want R$ 1000,00", view.FormattedBalance)
	}

	if _, err := tr.Record(ctx, core.Transaction{Description: "Rent", Amount: "300", Type: core.Expense}); err != nil {
		t.Fatalf("record rent: %v", err)
	}
	view, _ = tr.View("2024-01")
	if view.FormattedBalance != "R$ 700,00" || float64(view.Balance) != 700 {
		t.Fatalf("balance = %q (%v), want R$ 700,00", view.FormattedBalance, view.Balance)
	}
	totals := core.GroupedTotals(tr.Snapshot().Transactions("2024-01"))
	if totals[core.Income] != 1000 || totals[core.Expense] != 300 {
		t.Fatalf("totals = %v", totals)
	}
	if view.Label != "janeiro de 2024" {
		t.Fatalf("label = %q", view.Label)
	}

	blob, err := kv.Get(ctx, DefaultStorageKey)
	if err != nil {
		t.Fatalf("stored blob: %v", err)
	}
	if !strings.Contains(string(blob), `"2024-01"`) || !strings.Contains(string(blob), `"Rent"`) {
		t.Fatalf("unexpected blob %s", blob)
	}

	if len(pub.months) != 2 || pub.months[1] != "2024-01" || pub.txs[1].Description != "Rent" {
		t.Fatalf("published = %v %v", pub.months, pub.txs)
	}
}

func TestTrackerRecordSelectsCurrentMonth(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	_ = kv.Set(ctx, DefaultStorageKey, []byte(`{"2024-01":[],"2024-02":[]}`))

	tr := NewTracker(kv, WithClock(fixedClock(2024, time.January)))
	tr.Load(ctx)
	if tr.Snapshot().Selected() != "2024-02" {
		t.Fatal("expected most recent selected after load")
	}

	key, err := tr.Record(ctx, core.Transaction{Description: "Bonus", Amount: "50", Type: core.Income})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if key != "2024-01" || tr.Snapshot().Selected() != "2024-01" {
		t.Fatalf("record went to %q, selected %q", key, tr.Snapshot().Selected())
	}
}

func TestTrackerRecordPersistsAcrossReload(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	clock := WithClock(fixedClock(2024, time.April))

	first := NewTracker(kv, clock)
	first.Load(ctx)
	if _, err := first.Record(ctx, core.Transaction{Description: "Café", Amount: "4.5", Type: core.Expense}); err != nil {
		t.Fatalf("record: %v", err)
	}

	second := NewTracker(kv, clock)
	second.Load(ctx)
	txs := second.Snapshot().Transactions("2024-04")
	if len(txs) != 1 || txs[0].Description != "Café" || txs[0].Amount != "4.5" {
		t.Fatalf("reloaded transactions = %v", txs)
	}
}

func TestTrackerRecordValidation(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(memory.New(), WithClock(fixedClock(2024, time.January)))
	tr.Load(ctx)

	if _, err := tr.Record(ctx, core.Transaction{Description: "  ", Amount: "1", Type: core.Income}); !errors.Is(err, core.ErrEmptyDescription) {
		t.Fatalf("err = %v, want ErrEmptyDescription", err)
	}
	if _, err := tr.Record(ctx, core.Transaction{Description: "x", Amount: "1", Type: "gift"}); !errors.Is(err, core.ErrInvalidType) {
		t.Fatalf("err = %v, want ErrInvalidType", err)
	}
	if err := tr.RecordIn(ctx, "2024-1", core.Transaction{Description: "x", Amount: "1", Type: core.Income}); !errors.Is(err, core.ErrInvalidMonthKey) {
		t.Fatalf("err = %v, want ErrInvalidMonthKey", err)
	}
	if n := len(tr.Snapshot().Transactions("2024-01")); n != 0 {
		t.Fatalf("invalid input must not be stored, got %d", n)
	}
}

func TestTrackerRecordNonNumericAmountPropagatesNaN(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(memory.New(), WithClock(fixedClock(2024, time.January)))
	tr.Load(ctx)

	if _, err := tr.Record(ctx, core.Transaction{Description: "typo", Amount: "abc", Type: core.Expense}); err != nil {
		t.Fatalf("record: %v", err)
	}
	view := tr.SelectedView()
	if !math.IsNaN(float64(view.Balance)) || view.FormattedBalance != "R$ NaN" {
		t.Fatalf("balance = %v %q, want NaN", view.Balance, view.FormattedBalance)
	}
}

func TestTrackerRecordSaveFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	tr := NewTracker(&failingStore{getErr: storage.ErrNotFound, setErr: errors.New("read-only")},
		WithPublisher(pub), WithClock(fixedClock(2024, time.January)))
	tr.Load(ctx)

	_, err := tr.Record(ctx, core.Transaction{Description: "x", Amount: "1", Type: core.Income})
	if err == nil || !strings.Contains(err.Error(), "save state") {
		t.Fatalf("err = %v, want save error", err)
	}
	if n := len(tr.Snapshot().Transactions("2024-01")); n != 0 {
		t.Fatalf("state changed despite failed save: %d transactions", n)
	}
	if len(pub.months) != 0 {
		t.Fatal("nothing should be published when saving fails")
	}
}

func TestTrackerPublishFailureDoesNotFailRecord(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(memory.New(), WithPublisher(&fakePublisher{err: errors.New("broker down")}),
		WithClock(fixedClock(2024, time.January)))
	tr.Load(ctx)

	if _, err := tr.Record(ctx, core.Transaction{Description: "x", Amount: "1", Type: core.Income}); err != nil {
		t.Fatalf("record should succeed when publishing fails: %v", err)
	}
}

func TestTrackerSelectAndView(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	_ = kv.Set(ctx, DefaultStorageKey, []byte(`{"2023-12":[{"description":"a","amount":"10","type":"receita"}],"2024-01":[]}`))
	tr := NewTracker(kv, WithLocale(core.LocaleFor("en")))
	tr.Load(ctx)

	if err := tr.Select("2030-01"); !errors.Is(err, core.ErrUnknownMonth) {
		t.Fatalf("err = %v, want ErrUnknownMonth", err)
	}
	if err := tr.Select("2023-12"); err != nil {
		t.Fatalf("select: %v", err)
	}
	view := tr.SelectedView()
	if view.Key != "2023-12" || view.Label != "December 2023" || float64(view.Balance) != 10 {
		t.Fatalf("unexpected view %+v", view)
	}
	if _, err := tr.View("1999-01"); !errors.Is(err, core.ErrUnknownMonth) {
		t.Fatalf("err = %v, want ErrUnknownMonth", err)
	}

	months := tr.Months()
	if len(months) != 2 || months[0].Key != "2024-01" || months[0].Label != "January 2024" {
		t.Fatalf("months = %+v", months)
	}
}

func TestTrackerSave(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	tr := NewTracker(kv, WithClock(fixedClock(2025, time.July)))
	tr.Load(ctx)

	if err := tr.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}
	blob, _ := kv.Get(ctx, DefaultStorageKey)
	if string(blob) != `{"2025-07":[]}` {
		t.Fatalf("blob = %s", blob)
	}
}

func TestTrackerVersion(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(memory.New(), WithClock(fixedClock(2024, time.January)))
	tr.Load(ctx)

	_, loaded, err := tr.VersionedView("2024-01")
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if loaded != tr.Version() {
		t.Fatalf("view version %d != tracker version %d", loaded, tr.Version())
	}

	if err := tr.Select("2024-01"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if tr.Version() != loaded {
		t.Fatal("selecting a month must not change the version")
	}

	if _, err := tr.Record(ctx, core.Transaction{Description: "x", Amount: "1", Type: core.Income}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if tr.Version() == loaded {
		t.Fatal("recording must change the version")
	}

	failing := NewTracker(&failingStore{getErr: storage.ErrNotFound, setErr: errors.New("read-only")},
		WithClock(fixedClock(2024, time.January)))
	failing.Load(ctx)
	before := failing.Version()
	_, _ = failing.Record(ctx, core.Transaction{Description: "x", Amount: "1", Type: core.Income})
	if failing.Version() != before {
		t.Fatal("a failed save must not change the version")
	}
}
