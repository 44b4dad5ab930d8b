package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/formlink/internal/canonical"
	"github.com/roach88/formlink/internal/form"
)

// Entry is one stored event.
type Entry struct {
	Seq     int64          `json:"seq"`
	FormID  string         `json:"form_id"`
	Type    form.EventType `json:"type"`
	Path    string         `json:"path,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Append stores e and returns the entry as written.
func (j *Journal) Append(ctx context.Context, e form.Event) (Entry, error) {
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := canonical.Marshal(payload)
	if err != nil {
		return Entry{}, fmt.Errorf("append %s: %w", e.Type, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	seq := j.clock.Next()
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO events (seq, form_id, type, path, payload)
		VALUES (?, ?, ?, ?, ?)
	`, seq, e.FormID, string(e.Type), e.Path, string(data))
	if err != nil {
		return Entry{}, fmt.Errorf("append %s: %w", e.Type, err)
	}

	entry := Entry{Seq: seq, FormID: e.FormID, Type: e.Type, Path: e.Path}
	if len(e.Payload) > 0 {
		entry.Payload = e.Payload
	}
	return entry, nil
}

// Events returns the events of formID in emission order.
func (j *Journal) Events(ctx context.Context, formID string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, form_id, type, path, payload
		FROM events
		WHERE form_id = ?
		ORDER BY seq ASC, id ASC
	`, formID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e   Entry
			typ string
			raw string
		)
		if err := rows.Scan(&e.Seq, &e.FormID, &typ, &e.Path, &raw); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = form.EventType(typ)
		var payload map[string]any
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, fmt.Errorf("decode payload of event %d: %w", e.Seq, err)
		}
		if len(payload) > 0 {
			e.Payload = payload
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return entries, nil
}

// Forms returns the IDs of every journaled form, ordered by first event.
func (j *Journal) Forms(ctx context.Context) ([]string, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT form_id
		FROM events
		GROUP BY form_id
		ORDER BY MIN(seq) ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query forms: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan form: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate forms: %w", err)
	}
	return ids, nil
}
