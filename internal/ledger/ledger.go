// Package ledger records webhook deliveries and the outcome of the
// detached work they triggered. Failures inside that work never reach the
// webhook caller, so the ledger is the only place they remain visible
// besides the logs.
package ledger

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// Status describes where a recorded delivery ended up.
type Status string

const (
	// StatusIgnored marks deliveries the service deliberately did not act
	// on (tag creations, non-default branches).
	StatusIgnored Status = "ignored"

	// StatusProtecting marks deliveries whose branch protection work is
	// still in flight.
	StatusProtecting Status = "protecting"

	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Delivery is one recorded webhook delivery.
type Delivery struct {
	ID          string
	Event       string
	Repository  string // owner/name
	Branch      string
	PayloadHash string
	Status      Status
	Detail      string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

var ErrDeliveryNotFound = errors.New("delivery not found")

// Ledger persists deliveries in SQLite.
type Ledger struct {
	db *sql.DB
}

func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// PayloadHash returns the hex BLAKE3 hash of a raw payload, used to spot
// redelivered payloads without storing their contents.
func PayloadHash(payload []byte) string {
	hash := blake3.Sum256(payload)
	return hex.EncodeToString(hash[:])
}

// Record inserts a new delivery and returns its id. An empty ID gets a
// generated UUID (GitHub's delivery GUID is used when present).
func (l *Ledger) Record(ctx context.Context, d Delivery) (string, error) {
	if d.Event == "" {
		return "", fmt.Errorf("event is empty")
	}
	if d.Status == "" {
		return "", fmt.Errorf("status is empty")
	}

	id := d.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := l.db.ExecContext(ctx, `
INSERT INTO deliveries(id, event, repository, branch, payload_hash, status, detail, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?);
`, id, d.Event, d.Repository, d.Branch, d.PayloadHash, d.Status, d.Detail, now)
	if err != nil {
		return "", fmt.Errorf("record delivery: %w", err)
	}
	return id, nil
}

// Complete marks a delivery's detached work as finished, storing a detail
// such as the created issue URL.
func (l *Ledger) Complete(ctx context.Context, id, detail string) error {
	return l.finish(ctx, id, StatusCompleted, detail)
}

// Fail marks a delivery's detached work as failed, storing the error text.
func (l *Ledger) Fail(ctx context.Context, id, detail string) error {
	return l.finish(ctx, id, StatusFailed, detail)
}

func (l *Ledger) finish(ctx context.Context, id string, status Status, detail string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := l.db.ExecContext(ctx, `
UPDATE deliveries SET status = ?, detail = ?, completed_at = ? WHERE id = ?;
`, status, detail, now, id)
	if err != nil {
		return fmt.Errorf("update delivery %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update delivery %q: %w", id, err)
	}
	if n == 0 {
		return ErrDeliveryNotFound
	}
	return nil
}

// Recent returns the most recently recorded deliveries, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.db.QueryContext(ctx, `
SELECT id, event, repository, branch, payload_hash, status, detail, created_at, completed_at
FROM deliveries
ORDER BY created_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var (
			d            Delivery
			detail       sql.NullString
			createdAtS   string
			completedAtS sql.NullString
			statusS      string
		)
		if err := rows.Scan(&d.ID, &d.Event, &d.Repository, &d.Branch, &d.PayloadHash,
			&statusS, &detail, &createdAtS, &completedAtS); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		d.Status = Status(statusS)
		d.Detail = detail.String
		if d.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtS); err != nil {
			return nil, fmt.Errorf("parse created_at for %q: %w", d.ID, err)
		}
		if completedAtS.Valid {
			ts, err := time.Parse(time.RFC3339Nano, completedAtS.String)
			if err != nil {
				return nil, fmt.Errorf("parse completed_at for %q: %w", d.ID, err)
			}
			d.CompletedAt = &ts
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SeenPayload reports whether a payload with the given hash was already
// recorded, which usually means GitHub redelivered an event.
func (l *Ledger) SeenPayload(ctx context.Context, payloadHash string) (bool, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM deliveries WHERE payload_hash = ?;", payloadHash).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count deliveries by hash: %w", err)
	}
	return n > 0, nil
}
