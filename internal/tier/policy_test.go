package tier

import (
	"testing"
	"time"
)

func TestEvaluateDemotion(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	segments := []SegmentInfo{
		{ArchiveID: "a", ID: 2, SealedAt: now.Add(-1 * time.Hour)},
		{ArchiveID: "a", ID: 0, SealedAt: now.Add(-72 * time.Hour)},
		{ArchiveID: "b", ID: 1, SealedAt: now.Add(-25 * time.Hour)},
	}

	got := EvaluateDemotion(segments, 24*time.Hour, now)
	if len(got) != 2 {
		t.Fatalf("demotion candidates = %d, want 2", len(got))
	}
	// Oldest first
	if got[0].ID != 0 || got[1].ID != 1 {
		t.Errorf("candidate order = %d, %d, want 0, 1", got[0].ID, got[1].ID)
	}
}

func TestEvaluateDemotionDisabled(t *testing.T) {
	segments := []SegmentInfo{{ID: 0, SealedAt: time.Unix(0, 0)}}
	if got := EvaluateDemotion(segments, 0, time.Now()); got != nil {
		t.Errorf("zero demote-after should demote nothing, got %v", got)
	}
}
