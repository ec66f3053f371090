// Package activity records what the pipeline did to each payload.
package activity

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type classifies an activity entry.
type Type string

const (
	TypeInterception Type = "interception"
	TypeSubstitution Type = "substitution"
	TypeWarning      Type = "warning"
	TypeError        Type = "error"
)

// Entry is one line of the activity log.
type Entry struct {
	ID        string    `json:"id" db:"id"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	Type      Type      `json:"type" db:"type"`
	Service   string    `json:"service" db:"service"`
	Message   string    `json:"message" db:"message"`
	Details   Details   `json:"details" db:"details"`
}

// Details carries the counts behind an entry's message. It is stored as a
// single JSON column.
type Details struct {
	ServiceName       string   `json:"service_name,omitempty"`
	SubstitutionCount int      `json:"substitution_count,omitempty"`
	PIITypes          []string `json:"pii_types,omitempty"`
	Profiles          []string `json:"profiles,omitempty"`
	APIKeysProtected  int      `json:"api_keys_protected,omitempty"`
	APIKeysFound      int      `json:"api_keys_found,omitempty"`
	KeyTypes          []string `json:"key_types,omitempty"`
	RulesApplied      []string `json:"rules_applied,omitempty"`
	Error             string   `json:"error,omitempty"`
}

// Value implements driver.Valuer.
func (d Details) Value() (driver.Value, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal activity details: %w", err)
	}
	return b, nil
}

// Scan implements sql.Scanner.
func (d *Details) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = Details{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported activity details type %T", src)
	}
	if len(raw) == 0 {
		*d = Details{}
		return nil
	}
	return json.Unmarshal(raw, d)
}

// Recorder accepts activity entries.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// Reader lists recent entries, newest first.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// NewEntry stamps an entry with a fresh id and the current time.
func NewEntry(typ Type, service, message string, details Details) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      typ,
		Service:   service,
		Message:   message,
		Details:   details,
	}
}
