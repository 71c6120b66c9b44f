package unit

import (
	"path/filepath"
	"testing"
)

func TestStatusIsTerminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusSkipped, StatusAborted}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	active := []Status{StatusPending, StatusInProgress}
	for _, s := range active {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestIsValidStatus(t *testing.T) {
	for _, s := range ValidStatuses() {
		if !IsValidStatus(s) {
			t.Errorf("%s should be valid", s)
		}
	}
	if IsValidStatus(Status("running")) {
		t.Error("unknown status should be invalid")
	}
}

func TestRecordAttemptSequencing(t *testing.T) {
	u := New("UNIT-001", "fix login bug")

	first := &Attempt{Verification: VerificationFail, FailureDetail: "test A failed"}
	u.RecordAttempt(first)
	second := &Attempt{Verification: VerificationPass}
	u.RecordAttempt(second)

	if first.Seq != 1 || second.Seq != 2 {
		t.Errorf("attempt sequences wrong: %d, %d", first.Seq, second.Seq)
	}
	if u.AttemptCount() != 2 {
		t.Errorf("AttemptCount = %d, want 2", u.AttemptCount())
	}
}

func TestLastFailureDetail(t *testing.T) {
	u := New("UNIT-001", "desc")

	if u.LastFailureDetail() != "" {
		t.Error("no attempts should mean no failure detail")
	}

	u.RecordAttempt(&Attempt{Verification: VerificationFail, FailureDetail: "first failure"})
	u.RecordAttempt(&Attempt{Verification: VerificationFail, FailureDetail: "second failure"})
	u.RecordAttempt(&Attempt{Verification: VerificationPass})

	if got := u.LastFailureDetail(); got != "second failure" {
		t.Errorf("LastFailureDetail = %q, want most recent failure", got)
	}
}

func TestSequenceStoreNextID(t *testing.T) {
	store := NewSequenceStore(filepath.Join(t.TempDir(), "sequences.yaml"))

	id1, err := store.NextID("mut")
	if err != nil {
		t.Fatalf("NextID failed: %v", err)
	}
	if id1 != "MUT-001" {
		t.Errorf("first ID = %q, want MUT-001", id1)
	}

	id2, _ := store.NextID("mut")
	if id2 != "MUT-002" {
		t.Errorf("second ID = %q, want MUT-002", id2)
	}

	// Prefixes are independent
	other, _ := store.NextID("")
	if other != "UNIT-001" {
		t.Errorf("empty prefix ID = %q, want UNIT-001", other)
	}
}

func TestSequenceStorePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sequences.yaml")

	s1 := NewSequenceStore(path)
	if _, err := s1.NextID("ref"); err != nil {
		t.Fatalf("NextID failed: %v", err)
	}

	// Fresh store over the same file continues the sequence
	s2 := NewSequenceStore(path)
	id, err := s2.NextID("ref")
	if err != nil {
		t.Fatalf("NextID failed: %v", err)
	}
	if id != "REF-002" {
		t.Errorf("resumed ID = %q, want REF-002", id)
	}
}

func TestParseID(t *testing.T) {
	prefix, seq, err := ParseID("MUT-042")
	if err != nil {
		t.Fatalf("ParseID failed: %v", err)
	}
	if prefix != "MUT" || seq != 42 {
		t.Errorf("ParseID = %q/%d, want MUT/42", prefix, seq)
	}

	if _, _, err := ParseID("not an id"); err == nil {
		t.Error("ParseID should reject malformed IDs")
	}
}

func TestSlugID(t *testing.T) {
	cases := map[string]string{
		"internal/git/runner.go": "INTERNAL-GIT-RUNNER-GO",
		"PROJ-123":               "PROJ-123",
		"src/a b_c.py":           "SRC-A-B-C-PY",
	}
	for in, want := range cases {
		if got := SlugID(in); got != want {
			t.Errorf("SlugID(%q) = %q, want %q", in, got, want)
		}
	}
}
