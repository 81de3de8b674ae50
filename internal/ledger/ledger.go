// Package ledger provides an append-only lifecycle history for lampd.
// It records when the lamp was provisioned, reset and started so operators
// can tell why a fixture went back into provisioning.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents the type of event in the ledger
type EventType string

const (
	EventCredentialsProvisioned EventType = "credentials_provisioned"
	EventCredentialsReset       EventType = "credentials_reset"
	EventLampStarted            EventType = "lamp_started"
)

// EventTypes lists every type the ledger records.
var EventTypes = []EventType{EventCredentialsProvisioned, EventCredentialsReset, EventLampStarted}

// Entry represents a single event in the ledger
type Entry struct {
	ID        int64          `json:"id"`
	EventType EventType      `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Ledger provides append-only event logging
type Ledger struct {
	db *sql.DB
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Append adds a new event to the ledger
func (l *Ledger) Append(eventType EventType, payload map[string]any) error {
	var payloadJSON []byte
	var err error

	if payload != nil {
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	now := time.Now().UTC().UnixMilli()

	_, err = l.db.Exec(
		`INSERT INTO event_ledger (event_type, timestamp, payload) VALUES (?, ?, ?)`,
		string(eventType), now, string(payloadJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to append %s: %w", eventType, err)
	}
	return nil
}

// Recent returns the newest entries first
func (l *Ledger) Recent(limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, payload
		FROM event_ledger
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// CountByType returns how many times an event was recorded
func (l *Ledger) CountByType(eventType EventType) (int, error) {
	var n int
	err := l.db.QueryRow(`SELECT COUNT(*) FROM event_ledger WHERE event_type = ?`, string(eventType)).Scan(&n)
	return n, err
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var (
			e       Entry
			typ     string
			ts      int64
			payload sql.NullString
		)
		if err := rows.Scan(&e.ID, &typ, &ts, &payload); err != nil {
			return nil, err
		}
		e.EventType = EventType(typ)
		e.Timestamp = time.UnixMilli(ts).UTC()
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
