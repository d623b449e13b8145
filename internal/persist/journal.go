package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"roomsync/pkg/interfaces"
	"roomsync/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS outbox (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	session_id TEXT NOT NULL,
	payload TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	enqueued_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outbox_enqueued_at ON outbox(enqueued_at);
`

// writeRequest carries one mutation to the writer goroutine.
type writeRequest struct {
	query  string
	args   []interface{}
	result chan error
}

// Journal is a SQLite-backed outbox. Entries are appended before a send
// is attempted and deleted once the backend acknowledges, so anything
// still on disk at startup is a send that never completed.
//
// All mutations flow through a single writer goroutine. SQLite allows
// one writer at a time; funnelling writes through one channel avoids
// SQLITE_BUSY instead of retrying around it.
type Journal struct {
	db      *sql.DB
	writeCh chan *writeRequest
	timeout time.Duration

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

var _ interfaces.OperationJournal = (*Journal)(nil)

// OpenJournal opens (creating if needed) the outbox database at path.
func OpenJournal(path string, timeout time.Duration) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating journal schema: %w", err)
	}

	j := &Journal{
		db:      db,
		writeCh: make(chan *writeRequest, 100),
		timeout: timeout,
		done:    make(chan struct{}),
	}
	j.wg.Add(1)
	go j.writeLoop()
	return j, nil
}

// writeLoop serializes every mutation. A failed write is retried once
// after a short pause; the second failure is reported to the caller.
func (j *Journal) writeLoop() {
	defer j.wg.Done()

	for {
		select {
		case req := <-j.writeCh:
			_, err := j.db.Exec(req.query, req.args...)
			if err != nil {
				log.Printf("[Journal] Write failed, retrying once: %v", err)
				time.Sleep(time.Second)
				_, err = j.db.Exec(req.query, req.args...)
			}
			req.result <- err
		case <-j.done:
			// Drain requests queued before close so callers never hang.
			for {
				select {
				case req := <-j.writeCh:
					_, err := j.db.Exec(req.query, req.args...)
					req.result <- err
				default:
					return
				}
			}
		}
	}
}

func (j *Journal) write(ctx context.Context, query string, args ...interface{}) error {
	req := &writeRequest{query: query, args: args, result: make(chan error, 1)}

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	select {
	case j.writeCh <- req:
	case <-ctx.Done():
		return fmt.Errorf("journal write: %w", ctx.Err())
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return fmt.Errorf("journal write: %w", ctx.Err())
	}
}

// AppendOperation journals a canvas operation before it is sent.
func (j *Journal) AppendOperation(ctx context.Context, op *types.CanvasOperation) (*types.OutboxEntry, error) {
	payload, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("encoding operation: %w", err)
	}
	return j.append(ctx, types.OutboxKindCanvasOperation, op.SessionID, payload)
}

// AppendMessage journals a chat message before it is sent.
func (j *Journal) AppendMessage(ctx context.Context, msg *types.SessionMessage) (*types.OutboxEntry, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	return j.append(ctx, types.OutboxKindSessionMessage, msg.SessionID, payload)
}

func (j *Journal) append(ctx context.Context, kind, sessionID string, payload []byte) (*types.OutboxEntry, error) {
	entry := &types.OutboxEntry{
		ID:         uuid.New().String(),
		Kind:       kind,
		SessionID:  sessionID,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}

	err := j.write(ctx,
		"INSERT INTO outbox (id, kind, session_id, payload, attempts, enqueued_at) VALUES (?, ?, ?, ?, 0, ?)",
		entry.ID, entry.Kind, entry.SessionID, string(entry.Payload), entry.EnqueuedAt)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Pending returns up to limit journaled entries in enqueue order.
func (j *Journal) Pending(ctx context.Context, limit int) ([]*types.OutboxEntry, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT id, kind, session_id, payload, attempts, enqueued_at FROM outbox ORDER BY enqueued_at, id LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}
	defer rows.Close()

	var entries []*types.OutboxEntry
	for rows.Next() {
		var entry types.OutboxEntry
		var payload string
		if err := rows.Scan(&entry.ID, &entry.Kind, &entry.SessionID, &payload, &entry.Attempts, &entry.EnqueuedAt); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		entry.Payload = json.RawMessage(payload)
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// MarkAttempt records one more failed delivery attempt for an entry.
func (j *Journal) MarkAttempt(ctx context.Context, entryID string) error {
	return j.write(ctx, "UPDATE outbox SET attempts = attempts + 1 WHERE id = ?", entryID)
}

// Delete removes an acknowledged entry.
func (j *Journal) Delete(ctx context.Context, entryID string) error {
	return j.write(ctx, "DELETE FROM outbox WHERE id = ?", entryID)
}

// Close stops the writer and closes the database.
func (j *Journal) Close() error {
	j.closeOnce.Do(func() {
		close(j.done)
	})
	j.wg.Wait()
	return j.db.Close()
}
