// Package conflict provides unit tests for last-write-wins merging.
package conflict

import "testing"

// TestMergeAddsRemoteOnly tests that remote items absent locally are added.
func TestMergeAddsRemoteOnly(t *testing.T) {
	local := []Record{
		{"id": "1", "text": "scrap one", "timestamp": float64(100)},
	}
	remote := []Record{
		{"id": "2", "text": "scrap two", "timestamp": float64(200)},
	}

	merged, result := MergeByID(local, remote)

	if len(merged) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(merged))
	}
	if result.Added != 1 {
		t.Errorf("Expected 1 added, got %d", result.Added)
	}
	if result.Replaced != 0 {
		t.Errorf("Expected 0 replaced, got %d", result.Replaced)
	}
}

// TestMergeRemoteNewerWins tests that a strictly newer remote copy replaces
// the local one.
func TestMergeRemoteNewerWins(t *testing.T) {
	local := []Record{
		{"id": "1", "text": "old", "timestamp": float64(100)},
	}
	remote := []Record{
		{"id": "1", "text": "new", "timestamp": float64(200)},
	}

	merged, result := MergeByID(local, remote)

	if len(merged) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(merged))
	}
	if merged[0]["text"] != "new" {
		t.Errorf("Expected remote copy to win, got %v", merged[0]["text"])
	}
	if result.Replaced != 1 {
		t.Errorf("Expected 1 replaced, got %d", result.Replaced)
	}
}

// TestMergeLocalNewerKept tests that an older remote copy never overwrites a
// newer local one.
func TestMergeLocalNewerKept(t *testing.T) {
	local := []Record{
		{"id": "1", "text": "newer local", "timestamp": float64(300)},
	}
	remote := []Record{
		{"id": "1", "text": "stale remote", "timestamp": float64(200)},
	}

	merged, result := MergeByID(local, remote)

	if merged[0]["text"] != "newer local" {
		t.Errorf("Expected local copy kept, got %v", merged[0]["text"])
	}
	if result.Replaced != 0 {
		t.Errorf("Expected 0 replaced, got %d", result.Replaced)
	}
}

// TestMergeTimestampTieKeepsLocal tests that equal timestamps keep the local
// copy.
func TestMergeTimestampTieKeepsLocal(t *testing.T) {
	local := []Record{
		{"id": "1", "text": "local", "timestamp": float64(100)},
	}
	remote := []Record{
		{"id": "1", "text": "remote", "timestamp": float64(100)},
	}

	merged, _ := MergeByID(local, remote)

	if merged[0]["text"] != "local" {
		t.Errorf("Expected tie to keep local, got %v", merged[0]["text"])
	}
}

// TestMergeSortsDescending tests that the merged array comes back newest
// first.
func TestMergeSortsDescending(t *testing.T) {
	local := []Record{
		{"id": "1", "timestamp": float64(100)},
		{"id": "2", "timestamp": float64(300)},
	}
	remote := []Record{
		{"id": "3", "timestamp": float64(200)},
	}

	merged, _ := MergeByID(local, remote)

	if len(merged) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(merged))
	}
	for i := 1; i < len(merged); i++ {
		if timestampOf(merged[i-1]) < timestampOf(merged[i]) {
			t.Fatalf("Expected descending timestamps, got %v before %v",
				merged[i-1]["timestamp"], merged[i]["timestamp"])
		}
	}
}

// TestMergeFallsBackToTimestampIdentity tests matching items without an id
// field by timestamp.
func TestMergeFallsBackToTimestampIdentity(t *testing.T) {
	local := []Record{
		{"text": "anon local", "timestamp": float64(100)},
	}
	remote := []Record{
		{"text": "anon same", "timestamp": float64(100)},
		{"text": "anon other", "timestamp": float64(200)},
	}

	merged, result := MergeByID(local, remote)

	if len(merged) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(merged))
	}
	if result.Added != 1 {
		t.Errorf("Expected 1 added, got %d", result.Added)
	}
}

// TestMergeEmptySides tests merging with empty local or remote arrays.
func TestMergeEmptySides(t *testing.T) {
	remote := []Record{
		{"id": "1", "timestamp": float64(100)},
	}

	merged, result := MergeByID(nil, remote)
	if len(merged) != 1 || result.Added != 1 {
		t.Errorf("Expected remote-only merge to add 1, got %d items %d added", len(merged), result.Added)
	}

	local := []Record{
		{"id": "1", "timestamp": float64(100)},
	}
	merged, result = MergeByID(local, nil)
	if len(merged) != 1 || result.Added != 0 || result.Replaced != 0 {
		t.Errorf("Expected local unchanged, got %d items %+v", len(merged), result)
	}
}
