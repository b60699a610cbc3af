package share

import (
	"testing"
	"time"

	"github.com/glasspath/communique/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHistory(t *testing.T) *History {
	t.Helper()
	db, err := storage.NewBadgerDB(&storage.KVConfig{InMemory: true, KeyTTLDuration: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewHistory(db)
}

func TestHistoryNewestFirst(t *testing.T) {
	h := newTestHistory(t)
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	added := []struct {
		subject string
		offset  time.Duration
	}{
		{"first", 0},
		{"third", 2 * time.Minute},
		{"second", time.Minute},
	}
	for _, a := range added {
		r := &Record{
			Mode:       SMTP,
			Subject:    a.subject,
			Recipients: []string{"you@example.com"},
			Time:       start.Add(a.offset),
		}
		require.NoError(t, h.Add(r), a.subject)
		assert.NotEmpty(t, r.ID)
	}

	records, err := h.List()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "third", records[0].Subject)
	assert.Equal(t, "second", records[1].Subject)
	assert.Equal(t, "first", records[2].Subject)
	assert.Equal(t, SMTP, records[0].Mode)
	assert.Equal(t, []string{"you@example.com"}, records[0].Recipients)
}

func TestHistoryFillsTime(t *testing.T) {
	h := newTestHistory(t)
	r := &Record{Mode: Mailto}
	require.NoError(t, h.Add(r))
	assert.False(t, r.Time.IsZero())
}

func TestHistoryNoOp(t *testing.T) {
	h := NewHistory(&storage.NoOpDB{})
	assert.Error(t, h.Add(&Record{Mode: SMTP}))

	records, err := h.List()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestHistoryClear(t *testing.T) {
	h := newTestHistory(t)
	for _, s := range []string{"one", "two", "three"} {
		require.NoError(t, h.Add(&Record{Mode: EML, Subject: s}))
	}

	n, err := h.Clear()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	records, err := h.List()
	require.NoError(t, err)
	assert.Empty(t, records)

	n, err = NewHistory(&storage.NoOpDB{}).Clear()
	assert.NoError(t, err)
	assert.Zero(t, n)
}
