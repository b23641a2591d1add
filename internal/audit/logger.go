// Package audit records rule decisions per order on a best-effort basis.
// Audit loss is an accepted degradation; the operations being documented
// are never blocked or failed by it.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/brewrules/internal/domain"
)

const writeTimeout = 5 * time.Second

// Sink persists audit entries.
type Sink interface {
	Append(ctx context.Context, entry domain.AuditEntry) error
}

// Logger buffers entries and writes them from a background goroutine.
// Record never blocks: when the buffer is full the entry is dropped and a
// warning logged.
type Logger struct {
	sink    Sink
	entries chan domain.AuditEntry
	logger  *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func NewLogger(sink Sink, logger *slog.Logger, buffer int) *Logger {
	if buffer <= 0 {
		buffer = 256
	}
	l := &Logger{
		sink:    sink,
		entries: make(chan domain.AuditEntry, buffer),
		logger:  logger,
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

// Record queues one audit entry. Missing ids and timestamps are filled in.
func (l *Logger) Record(entry domain.AuditEntry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	select {
	case l.entries <- entry:
	default:
		l.logger.Warn("audit buffer full, dropping entry",
			"order_id", entry.OrderID, "category", entry.Category)
	}
}

// Close drains queued entries and stops the writer.
func (l *Logger) Close() {
	l.closeOnce.Do(func() {
		close(l.entries)
		<-l.done
	})
}

func (l *Logger) run() {
	defer close(l.done)

	for entry := range l.entries {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := l.sink.Append(ctx, entry); err != nil {
			l.logger.Warn("failed to persist audit entry",
				"order_id", entry.OrderID, "category", entry.Category, "error", err)
		}
		cancel()
	}
}
