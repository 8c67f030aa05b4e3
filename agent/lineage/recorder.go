package lineage

import (
	"encoding/hex"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Option customizes a Recorder.
type Option func(*Recorder)

// WithObserver registers an observer notified after every append.
func WithObserver(o Observer) Option {
	return func(r *Recorder) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

// WithClock replaces time.Now as the source of start and end stamps.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDGenerator replaces NewLineageID.
func WithIDGenerator(newID func() string) Option {
	return func(r *Recorder) {
		if newID != nil {
			r.newID = newID
		}
	}
}

// Recorder correlates the start and end of agent invocations and keeps an
// append-only log of the completed ones.
type Recorder struct {
	mu      sync.RWMutex
	records []Record

	observers []Observer
	now       func() time.Time
	newID     func() string
}

// NewRecorder returns an empty recorder.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		now:   time.Now,
		newID: NewLineageID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// NewLineageID returns 128 random bits as 32 lowercase hex characters.
// It panics if the system entropy source fails.
func NewLineageID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// Before attaches a fresh lineage id, the agent name and a start timestamp to ic.
func (r *Recorder) Before(ic *InvocationContext) {
	if ic == nil {
		return
	}
	ic.LineageID = r.newID()
	ic.LineageAgent = ic.AgentName
	ic.startedAt = r.now()

	log.Debug().
		Str("lineage_id", ic.LineageID).
		Str("agent_name", ic.AgentName).
		Str("method", ic.Method).
		Msg("lineage started")
}

// After appends a record for the invocation and returns result unchanged.
// Calling After without a prior Before records an untimed entry with no lineage id.
func (r *Recorder) After(ic *InvocationContext, result any) any {
	rec := Record{HasResult: !isNil(result)}
	if ic != nil {
		rec.LineageID = ic.LineageID
		rec.AgentName = ic.AgentName
		rec.Method = ic.Method
		if start, ok := ic.takeStart(); ok {
			rec.ElapsedMS = elapsedMS(r.now().Sub(start))
			rec.Timed = true
		}
	}

	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()

	for _, o := range r.observers {
		o.Observe(rec)
	}

	ev := log.Debug().
		Str("lineage_id", rec.LineageID).
		Str("agent_name", rec.AgentName).
		Str("method", rec.Method).
		Bool("has_result", rec.HasResult)
	if rec.Timed {
		ev = ev.Float64("elapsed_ms", rec.ElapsedMS)
	}
	ev.Msg("lineage recorded")

	return result
}

// Records returns a copy of the log in completion order.
func (r *Recorder) Records() []Record {
	return r.Since(0)
}

// Since returns a copy of the records appended at or after offset.
func (r *Recorder) Since(offset int) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if offset < 0 {
		offset = 0
	}
	if offset >= len(r.records) {
		return []Record{}
	}
	return append([]Record(nil), r.records[offset:]...)
}

// Len reports how many records have been appended.
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

func elapsedMS(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return float64(d.Nanoseconds()) / 1e6
}

// isNil treats typed nil pointers, maps, slices and funcs as an absent result.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
