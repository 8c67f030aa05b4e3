package lineage

import (
	"encoding/json"
	"time"
)

// Record summarises one completed invocation.
type Record struct {
	LineageID string
	AgentName string
	Method    string
	ElapsedMS float64
	Timed     bool
	HasResult bool
}

// Elapsed returns the invocation duration in milliseconds; ok is false for
// invocations whose start was never observed.
func (r Record) Elapsed() (ms float64, ok bool) {
	return r.ElapsedMS, r.Timed
}

// ElapsedDuration is Elapsed as a time.Duration, zero when untimed.
func (r Record) ElapsedDuration() time.Duration {
	if !r.Timed {
		return 0
	}
	return time.Duration(r.ElapsedMS * float64(time.Millisecond))
}

type recordJSON struct {
	LineageID *string  `json:"lineage_id"`
	AgentName string   `json:"agent_name"`
	Method    string   `json:"method"`
	ElapsedMS *float64 `json:"elapsed_ms"`
	HasResult bool     `json:"has_result"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		AgentName: r.AgentName,
		Method:    r.Method,
		HasResult: r.HasResult,
	}
	if r.LineageID != "" {
		id := r.LineageID
		out.LineageID = &id
	}
	if r.Timed {
		ms := r.ElapsedMS
		out.ElapsedMS = &ms
	}
	return json.Marshal(out)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var in recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = Record{
		AgentName: in.AgentName,
		Method:    in.Method,
		HasResult: in.HasResult,
	}
	if in.LineageID != nil {
		r.LineageID = *in.LineageID
	}
	if in.ElapsedMS != nil {
		r.ElapsedMS = *in.ElapsedMS
		r.Timed = true
	}
	return nil
}
