package lineage

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"
)

type stepClock struct {
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func TestRecorderBeforeSetsLineageFields(t *testing.T) {
	t.Parallel()

	rec := NewRecorder()
	ic := NewInvocationContext("test-agent", "run")
	rec.Before(ic)

	if len(ic.LineageID) != 32 {
		t.Fatalf("LineageID length = %d, want 32", len(ic.LineageID))
	}
	if _, err := hex.DecodeString(ic.LineageID); err != nil {
		t.Fatalf("LineageID %q is not hex: %v", ic.LineageID, err)
	}
	if ic.LineageAgent != "test-agent" {
		t.Fatalf("LineageAgent = %q, want %q", ic.LineageAgent, "test-agent")
	}
	if _, ok := ic.StartedAt(); !ok {
		t.Fatal("expected start timestamp after Before")
	}
	if rec.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 before After", rec.Len())
	}
}

func TestRecorderBeforeKeepsCallerMetadata(t *testing.T) {
	t.Parallel()

	rec := NewRecorder()
	ic := NewInvocationContext("a", "run")
	ic.Metadata["trace"] = "abc"
	rec.Before(ic)
	rec.After(ic, nil)

	if ic.Metadata["trace"] != "abc" {
		t.Fatalf("Metadata[trace] = %v, want abc", ic.Metadata["trace"])
	}
}

func TestRecorderAfterReturnsResult(t *testing.T) {
	t.Parallel()

	rec := NewRecorder()
	ic := NewInvocationContext("test-agent", "run")
	rec.Before(ic)

	sentinel := &struct{ Answer int }{Answer: 42}
	got := rec.After(ic, sentinel)
	if got != any(sentinel) {
		t.Fatalf("After() = %v, want the same pointer %p", got, sentinel)
	}
	if rec.After(NewInvocationContext("x", "run"), nil) != nil {
		t.Fatal("After(nil) must return nil")
	}
}

func TestRecorderAfterRecordsLineage(t *testing.T) {
	t.Parallel()

	rec := NewRecorder()
	ic := NewInvocationContext("A", "run")
	rec.Before(ic)
	rec.After(ic, map[string]any{"x": 1})

	records := rec.Records()
	if len(records) != 1 {
		t.Fatalf("len(Records()) = %d, want 1", len(records))
	}
	got := records[0]
	if got.AgentName != "A" || got.Method != "run" {
		t.Fatalf("record = %+v, want agent A method run", got)
	}
	if !got.HasResult {
		t.Fatal("HasResult = false, want true")
	}
	ms, ok := got.Elapsed()
	if !ok || ms < 0 {
		t.Fatalf("Elapsed() = (%v, %v), want non-negative timed value", ms, ok)
	}
	if got.LineageID != ic.LineageID || len(got.LineageID) != 32 {
		t.Fatalf("LineageID = %q, want %q", got.LineageID, ic.LineageID)
	}
}

func TestRecorderAfterNilResult(t *testing.T) {
	t.Parallel()

	rec := NewRecorder()
	var typedNil *struct{}
	for _, result := range []any{nil, typedNil} {
		ic := NewInvocationContext("a", "run")
		rec.Before(ic)
		if got := rec.After(ic, result); got != result {
			t.Fatalf("After() = %v, want %v", got, result)
		}
	}

	for i, r := range rec.Records() {
		if r.HasResult {
			t.Fatalf("records[%d].HasResult = true, want false", i)
		}
	}
}

func TestRecorderAfterFalsyResultCountsAsResult(t *testing.T) {
	t.Parallel()

	rec := NewRecorder()
	for _, result := range []any{0, "", false, map[string]any{}} {
		ic := NewInvocationContext("a", "run")
		rec.Before(ic)
		rec.After(ic, result)
	}
	for i, r := range rec.Records() {
		if !r.HasResult {
			t.Fatalf("records[%d].HasResult = false, want true", i)
		}
	}
}

func TestRecorderAfterWithoutBefore(t *testing.T) {
	t.Parallel()

	rec := NewRecorder()
	rec.After(NewInvocationContext("orphan", "run"), "value")
	rec.After(nil, "value")

	records := rec.Records()
	if len(records) != 2 {
		t.Fatalf("len(Records()) = %d, want 2", len(records))
	}
	for i, r := range records {
		if r.LineageID != "" {
			t.Fatalf("records[%d].LineageID = %q, want empty", i, r.LineageID)
		}
		if _, ok := r.Elapsed(); ok {
			t.Fatalf("records[%d] is timed, want untimed", i)
		}
	}
	if records[0].AgentName != "orphan" {
		t.Fatalf("records[0].AgentName = %q, want orphan", records[0].AgentName)
	}
}

func TestRecorderAfterClearsStart(t *testing.T) {
	t.Parallel()

	rec := NewRecorder()
	ic := NewInvocationContext("a", "run")
	rec.Before(ic)
	rec.After(ic, 1)
	if _, ok := ic.StartedAt(); ok {
		t.Fatal("start timestamp must be cleared by After")
	}
	rec.After(ic, 2)

	records := rec.Records()
	if _, ok := records[1].Elapsed(); ok {
		t.Fatal("second After on the same context must be untimed")
	}
	if records[1].LineageID != records[0].LineageID {
		t.Fatalf("LineageID changed between calls: %q vs %q", records[0].LineageID, records[1].LineageID)
	}
}

func TestRecorderElapsedUsesClock(t *testing.T) {
	t.Parallel()

	clock := &stepClock{now: time.Unix(1700000000, 0), step: 1500 * time.Microsecond}
	rec := NewRecorder(WithClock(clock.Now))
	ic := NewInvocationContext("a", "run")
	rec.Before(ic)
	rec.After(ic, "ok")

	ms, ok := rec.Records()[0].Elapsed()
	if !ok || ms != 1.5 {
		t.Fatalf("Elapsed() = (%v, %v), want (1.5, true)", ms, ok)
	}
	if d := rec.Records()[0].ElapsedDuration(); d != 1500*time.Microsecond {
		t.Fatalf("ElapsedDuration() = %v, want 1.5ms", d)
	}
}

func TestRecorderElapsedNeverNegative(t *testing.T) {
	t.Parallel()

	clock := &stepClock{now: time.Unix(1700000000, 0), step: -time.Second}
	rec := NewRecorder(WithClock(clock.Now))
	ic := NewInvocationContext("a", "run")
	rec.Before(ic)
	rec.After(ic, "ok")

	if ms, _ := rec.Records()[0].Elapsed(); ms != 0 {
		t.Fatalf("Elapsed() = %v, want 0 for a backwards clock", ms)
	}
}

func TestRecorderRecordsAccumulateInOrder(t *testing.T) {
	t.Parallel()

	rec := NewRecorder()
	for i := 0; i < 3; i++ {
		ic := NewInvocationContext(fmt.Sprintf("agent-%d", i), "run")
		rec.Before(ic)
		rec.After(ic, fmt.Sprintf("result-%d", i))
	}

	records := rec.Records()
	if len(records) != 3 {
		t.Fatalf("len(Records()) = %d, want 3", len(records))
	}
	if records[0].AgentName != "agent-0" {
		t.Fatalf("records[0].AgentName = %q, want agent-0", records[0].AgentName)
	}
	if records[2].AgentName != "agent-2" {
		t.Fatalf("records[2].AgentName = %q, want agent-2", records[2].AgentName)
	}
}

func TestRecorderOrdersByCompletion(t *testing.T) {
	t.Parallel()

	rec := NewRecorder()
	first := NewInvocationContext("first", "run")
	second := NewInvocationContext("second", "run")
	rec.Before(first)
	rec.Before(second)
	rec.After(second, nil)
	rec.After(first, nil)

	records := rec.Records()
	if records[0].AgentName != "second" || records[1].AgentName != "first" {
		t.Fatalf("order = [%s %s], want [second first]", records[0].AgentName, records[1].AgentName)
	}
}

func TestRecorderBeforeWithoutAfterRecordsNothing(t *testing.T) {
	t.Parallel()

	rec := NewRecorder()
	rec.Before(NewInvocationContext("a", "run"))
	rec.Before(nil)
	if n := len(rec.Records()); n != 0 {
		t.Fatalf("len(Records()) = %d, want 0", n)
	}
}

func TestRecorderRecordsReturnsSnapshot(t *testing.T) {
	t.Parallel()

	rec := NewRecorder()
	ic := NewInvocationContext("a", "run")
	rec.Before(ic)
	rec.After(ic, "x")

	a := rec.Records()
	b := rec.Records()
	if &a[0] == &b[0] {
		t.Fatal("Records() must return distinct slices")
	}
	a[0].AgentName = "mutated"
	if rec.Records()[0].AgentName != "a" {
		t.Fatal("mutating a snapshot changed the log")
	}

	next := NewInvocationContext("b", "run")
	rec.Before(next)
	rec.After(next, "y")
	if len(b) != 1 {
		t.Fatalf("old snapshot length = %d, want 1", len(b))
	}
	if rec.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", rec.Len())
	}
}

func TestRecorderSince(t *testing.T) {
	t.Parallel()

	rec := NewRecorder()
	for i := 0; i < 4; i++ {
		rec.After(NewInvocationContext(fmt.Sprintf("agent-%d", i), "run"), nil)
	}

	if got := rec.Since(2); len(got) != 2 || got[0].AgentName != "agent-2" {
		t.Fatalf("Since(2) = %+v, want agent-2, agent-3", got)
	}
	if got := rec.Since(10); len(got) != 0 {
		t.Fatalf("Since(10) = %+v, want empty", got)
	}
	if got := rec.Since(-1); len(got) != 4 {
		t.Fatalf("Since(-1) length = %d, want 4", len(got))
	}
}

func TestRecorderLineageIDsAreUnique(t *testing.T) {
	t.Parallel()

	rec := NewRecorder()
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		ic := NewInvocationContext("a", "run")
		rec.Before(ic)
		seen[ic.LineageID] = true
		rec.After(ic, nil)
	}
	if len(seen) != 5 {
		t.Fatalf("unique ids = %d, want 5", len(seen))
	}
}

func TestRecorderConcurrentInvocations(t *testing.T) {
	t.Parallel()

	const (
		workers = 32
		perWork = 50
	)
	rec := NewRecorder()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWork; i++ {
				ic := NewInvocationContext(fmt.Sprintf("agent-%d", w), "run")
				rec.Before(ic)
				_ = rec.Records()
				rec.After(ic, i)
			}
		}(w)
	}
	wg.Wait()

	records := rec.Records()
	if len(records) != workers*perWork {
		t.Fatalf("len(Records()) = %d, want %d", len(records), workers*perWork)
	}
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, dup := seen[r.LineageID]; dup {
			t.Fatalf("duplicate lineage id %q", r.LineageID)
		}
		seen[r.LineageID] = struct{}{}
	}
}

func TestRecorderNotifiesObservers(t *testing.T) {
	t.Parallel()

	var got []Record
	rec := NewRecorder(
		WithObserver(ObserverFunc(func(r Record) { got = append(got, r) })),
		WithIDGenerator(func() string { return "fixed" }),
	)
	ic := NewInvocationContext("a", "run")
	rec.Before(ic)
	rec.After(ic, "x")

	if len(got) != 1 || got[0].LineageID != "fixed" {
		t.Fatalf("observed = %+v, want one record with id fixed", got)
	}
}

func TestRecordJSONRendersAbsentFieldsAsNull(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(Record{AgentName: "a", Method: "run"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"lineage_id":null,"agent_name":"a","method":"run","elapsed_ms":null,"has_result":false}`
	if string(raw) != want {
		t.Fatalf("Marshal() = %s, want %s", raw, want)
	}

	var back Record
	if err := json.Unmarshal([]byte(`{"lineage_id":"abc","agent_name":"a","method":"run","elapsed_ms":2.5,"has_result":true}`), &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if ms, ok := back.Elapsed(); !ok || ms != 2.5 || back.LineageID != "abc" || !back.HasResult {
		t.Fatalf("Unmarshal() = %+v", back)
	}
}
