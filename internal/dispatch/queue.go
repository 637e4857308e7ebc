package dispatch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketEntries = []byte("entries")
	bucketDue     = []byte("due")
)

// Entry is one scheduled send: deliver campaign's template to contact no
// earlier than NotBefore. Entries are durable so staggered sends survive a
// process restart; losing them is still recoverable, because re-invoking
// the dispatch entry point re-derives remaining work from send records.
type Entry struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	ContactID  string    `json:"contact_id"`
	TemplateID string    `json:"template_id"`
	NotBefore  time.Time `json:"not_before"`
	CreatedAt  time.Time `json:"created_at"`
}

// Schedule is the durable dispatch queue, backed by BoltDB. A due-time
// index bucket keeps claims cheap: a cursor scan from the start stops at
// the first future key.
type Schedule struct {
	db *bolt.DB
}

// NewSchedule opens (creating if necessary) the schedule database
func NewSchedule(path string) (*Schedule, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create schedule directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open schedule database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketEntries, bucketDue} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Schedule{db: db}, nil
}

// Enqueue adds an entry to the schedule
func (s *Schedule) Enqueue(e *Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal entry: %w", err)
		}

		if err := tx.Bucket(bucketEntries).Put([]byte(e.ID), data); err != nil {
			return fmt.Errorf("failed to store entry: %w", err)
		}
		if err := tx.Bucket(bucketDue).Put(makeIndexKey(e.NotBefore, e.ID), []byte(e.ID)); err != nil {
			return fmt.Errorf("failed to index entry: %w", err)
		}
		return nil
	})
}

// ClaimDue removes and returns up to max entries whose NotBefore has
// passed. Claimed entries are gone from the schedule; if the process dies
// before they are dispatched, the next dispatch run re-derives them.
func (s *Schedule) ClaimDue(now time.Time, max int) ([]*Entry, error) {
	var claimed []*Entry

	err := s.db.Update(func(tx *bolt.Tx) error {
		dueBucket := tx.Bucket(bucketDue)
		entryBucket := tx.Bucket(bucketEntries)

		c := dueBucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if parseTimestampFromKey(k).After(now) {
				break // all remaining keys are in the future
			}
			if max > 0 && len(claimed) >= max {
				break
			}

			data := entryBucket.Get(v)
			if data == nil {
				// Entry was deleted, clean up index
				if err := c.Delete(); err != nil {
					return err
				}
				continue
			}

			var e Entry
			if err := json.Unmarshal(data, &e); err != nil {
				c.Delete()
				continue
			}

			if err := c.Delete(); err != nil {
				return err
			}
			if err := entryBucket.Delete(v); err != nil {
				return err
			}

			claimed = append(claimed, &e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return claimed, nil
}

// Size returns the number of scheduled entries
func (s *Schedule) Size() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketEntries).Stats().KeyN
		return nil
	})
	return n, err
}

// Close closes the schedule database
func (s *Schedule) Close() error {
	return s.db.Close()
}

// makeIndexKey builds a due-index key that sorts by time
func makeIndexKey(t time.Time, id string) []byte {
	return []byte(t.UTC().Format("2006-01-02T15:04:05.000000000Z") + ":" + id)
}

// parseTimestampFromKey extracts the timestamp from an index key
func parseTimestampFromKey(key []byte) time.Time {
	s := string(key)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			ts, _ := time.Parse("2006-01-02T15:04:05.000000000Z", s[:i])
			return ts
		}
	}
	return time.Time{}
}
