package dispatch

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestSchedule(t *testing.T) *Schedule {
	t.Helper()

	s, err := NewSchedule(filepath.Join(t.TempDir(), "schedule.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestScheduleClaimDue(t *testing.T) {
	s := newTestSchedule(t)
	now := time.Now()

	entries := []*Entry{
		{ID: "e1", CampaignID: "c1", ContactID: "a", NotBefore: now.Add(-2 * time.Minute)},
		{ID: "e2", CampaignID: "c1", ContactID: "b", NotBefore: now.Add(-1 * time.Minute)},
		{ID: "e3", CampaignID: "c1", ContactID: "c", NotBefore: now.Add(time.Hour)},
	}
	for _, e := range entries {
		if err := s.Enqueue(e); err != nil {
			t.Fatal(err)
		}
	}

	claimed, err := s.ClaimDue(now, 0)
	if err != nil {
		t.Fatal(err)
	}

	if len(claimed) != 2 {
		t.Fatalf("expected 2 due entries, got %d", len(claimed))
	}
	if claimed[0].ID != "e1" || claimed[1].ID != "e2" {
		t.Errorf("expected due-time order e1,e2, got %s,%s", claimed[0].ID, claimed[1].ID)
	}

	// Claimed entries are removed; the future one stays.
	n, err := s.Size()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 entry left, got %d", n)
	}
}

func TestScheduleClaimDueRespectsMax(t *testing.T) {
	s := newTestSchedule(t)
	now := time.Now()

	for i, id := range []string{"e1", "e2", "e3"} {
		err := s.Enqueue(&Entry{ID: id, NotBefore: now.Add(time.Duration(i-10) * time.Minute)})
		if err != nil {
			t.Fatal(err)
		}
	}

	claimed, err := s.ClaimDue(now, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 2 {
		t.Errorf("expected max 2 claimed, got %d", len(claimed))
	}
}

func TestScheduleClaimDueEmpty(t *testing.T) {
	s := newTestSchedule(t)

	claimed, err := s.ClaimDue(time.Now(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 0 {
		t.Errorf("expected nothing claimed, got %d", len(claimed))
	}
}

func TestScheduleEntryRoundTrip(t *testing.T) {
	s := newTestSchedule(t)
	now := time.Now()

	in := &Entry{
		ID:         "e1",
		CampaignID: "camp",
		ContactID:  "contact",
		TemplateID: "tmpl",
		NotBefore:  now.Add(-time.Second),
	}
	if err := s.Enqueue(in); err != nil {
		t.Fatal(err)
	}

	claimed, err := s.ClaimDue(now, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(claimed))
	}

	got := claimed[0]
	if got.CampaignID != "camp" || got.ContactID != "contact" || got.TemplateID != "tmpl" {
		t.Errorf("entry fields lost: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set on enqueue")
	}
}

func TestIndexKeyOrdering(t *testing.T) {
	t1 := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	k1 := string(makeIndexKey(t1, "zzz"))
	k2 := string(makeIndexKey(t2, "aaa"))

	if k1 >= k2 {
		t.Errorf("earlier entry must sort first: %q >= %q", k1, k2)
	}

	if !parseTimestampFromKey([]byte(k1)).Equal(t1) {
		t.Errorf("timestamp did not round-trip through key %q", k1)
	}
}
