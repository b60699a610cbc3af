package share

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/glasspath/communique/storage"
	"github.com/google/uuid"
)

// Keys of history entries share this prefix so the store can hold other
// data later.
var historyPrefix = []byte("history/")

// Record describes one successful dispatch.
type Record struct {
	ID         string    `json:"id"`
	MessageID  string    `json:"messageId,omitempty"`
	Mode       Mode      `json:"mode"`
	Account    string    `json:"account,omitempty"`
	Subject    string    `json:"subject"`
	Recipients []string  `json:"recipients"`
	Time       time.Time `json:"time"`
}

// History keeps Records in a storage.KeyValue. Entries expire with the
// store's TTL.
type History struct {
	db storage.KeyValue
}

// NewHistory uses db, which may be a *storage.NoOpDB to keep no history.
func NewHistory(db storage.KeyValue) *History {
	return &History{db: db}
}

// Add stores r, filling in its ID and Time when they are empty.
func (h *History) Add(r *Record) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Time.IsZero() {
		r.Time = time.Now()
	}
	v, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("can't encode the history record: %w", err)
	}
	return h.db.Put(storage.KVEntry{
		Key:   append(append([]byte{}, historyPrefix...), r.ID...),
		Value: v,
	})
}

// List returns the live records, newest first. Entries that can't be
// decoded are skipped.
func (h *History) List() ([]Record, error) {
	entries, err := h.db.List(historyPrefix)
	if err != nil {
		return nil, fmt.Errorf("can't read the history: %w", err)
	}
	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		var r Record
		if err := json.Unmarshal(e.Value, &r); err != nil {
			continue
		}
		records = append(records, r)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Time.After(records[j].Time)
	})
	return records, nil
}

// Clear deletes every record and returns how many were deleted.
func (h *History) Clear() (int, error) {
	entries, err := h.db.List(historyPrefix)
	if err != nil {
		return 0, fmt.Errorf("can't read the history: %w", err)
	}
	for i, e := range entries {
		if err := h.db.Delete(e.Key); err != nil {
			return i, fmt.Errorf("can't delete history record %s: %w", e.Key, err)
		}
	}
	return len(entries), nil
}
