// Package worker mirrors recorded transactions into an external ledger.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"saldo/internal/amqp"
	"saldo/internal/cache"
	"saldo/internal/core"
	"saldo/internal/sheets"
)

const (
	defaultMaxAttempts = 3
	seenCacheSize      = 1024
	seenCacheTTL       = 24 * time.Hour
)

// MirrorWorker appends every TransactionRecordedMessage to a TransactionWriter.
// Redelivered messages are skipped by ID.
type MirrorWorker struct {
	writer        sheets.TransactionWriter
	retryInterval time.Duration
	maxAttempts   int
	seen          *cache.LRUCache[string]
}

func NewMirrorWorker(writer sheets.TransactionWriter, retryInterval time.Duration) *MirrorWorker {
	return &MirrorWorker{
		writer:        writer,
		retryInterval: retryInterval,
		maxAttempts:   defaultMaxAttempts,
		seen:          cache.NewLRUCache[string](seenCacheSize, seenCacheTTL),
	}
}

// SeenCache exposes the dedupe cache so it can be registered for cleanup.
func (w *MirrorWorker) SeenCache() *cache.LRUCache[string] {
	return w.seen
}

// HandleTransactionRecorded is an amqp.Handler. Transient errors make the
// consumer requeue the delivery; a bad month or a permanent writer failure
// discards it.
func (w *MirrorWorker) HandleTransactionRecorded(ctx context.Context, msg *amqp.TransactionRecordedMessage) error {
	if msg == nil {
		return errors.New("nil message")
	}
	if ref, ok := w.seen.Get(msg.ID); ok && msg.ID != "" {
		slog.InfoContext(ctx, "Skipping already mirrored message", "message_id", msg.ID, "row_ref", ref)
		return nil
	}

	month, err := core.ParseMonthKey(msg.Month)
	if err != nil {
		return fmt.Errorf("message month %q: %w: %w", msg.Month, amqp.ErrDiscard, err)
	}
	tx := msg.Transaction()

	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		ref, err := w.writer.AppendTransaction(ctx, month, tx)
		if err == nil {
			if msg.ID != "" {
				w.seen.Set(msg.ID, ref)
			}
			slog.InfoContext(ctx, "Mirrored transaction",
				"message_id", msg.ID,
				"month", msg.Month,
				"row_ref", ref,
				"attempt", attempt)
			return nil
		}
		if errors.Is(err, sheets.ErrPermanent) {
			slog.ErrorContext(ctx, "Mirror failed permanently, discarding message",
				"message_id", msg.ID,
				"attempt", attempt,
				"error", err)
			return fmt.Errorf("mirror message %s: %w: %w", msg.ID, amqp.ErrDiscard, err)
		}
		lastErr = err
		slog.WarnContext(ctx, "Mirror attempt failed",
			"message_id", msg.ID,
			"attempt", attempt,
			"error", err)

		if attempt == w.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.retryInterval):
		}
	}
	return fmt.Errorf("mirror message %s after %d attempts: %w", msg.ID, w.maxAttempts, lastErr)
}
