package lineage

import "time"

// InvocationContext is the per-invocation bag shared between Before and After.
// It is owned by the caller and must not be shared across concurrent invocations.
type InvocationContext struct {
	AgentName string
	Method    string

	// Metadata carries arbitrary caller values; the recorder never reads it.
	Metadata map[string]any

	LineageID    string
	LineageAgent string

	startedAt time.Time
}

// NewInvocationContext returns a context with empty metadata and no lineage yet.
func NewInvocationContext(agentName, method string) *InvocationContext {
	return &InvocationContext{
		AgentName: agentName,
		Method:    method,
		Metadata:  map[string]any{},
	}
}

// StartedAt reports the pending start timestamp, if Before has run and After has not.
func (ic *InvocationContext) StartedAt() (time.Time, bool) {
	if ic == nil || ic.startedAt.IsZero() {
		return time.Time{}, false
	}
	return ic.startedAt, true
}

func (ic *InvocationContext) takeStart() (time.Time, bool) {
	start, ok := ic.StartedAt()
	if ok {
		ic.startedAt = time.Time{}
	}
	return start, ok
}
