package steps

import (
	"sync"

	contractx "github.com/fireflyframework/genai-data/agent/contract"
)

const (
	MetadataEnrichmentResults = "enrichment_results"
)

// PipelineContext is shared by every step of one pipeline run.
type PipelineContext struct {
	CorrelationID string

	mu       sync.Mutex
	metadata map[string]any
}

func NewPipelineContext(correlationID string) *PipelineContext {
	return &PipelineContext{
		CorrelationID: correlationID,
		metadata:      map[string]any{},
	}
}

func (c *PipelineContext) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.metadata[key]
	return v, ok
}

func (c *PipelineContext) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensure()
	c.metadata[key] = value
}

// Metadata returns a shallow copy of the metadata map.
func (c *PipelineContext) Metadata() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]any, len(c.metadata))
	for k, v := range c.metadata {
		out[k] = v
	}
	return out
}

func (c *PipelineContext) EnrichmentResults() []contractx.EnrichmentSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	list, _ := c.metadata[MetadataEnrichmentResults].([]contractx.EnrichmentSummary)
	return append([]contractx.EnrichmentSummary(nil), list...)
}

func (c *PipelineContext) appendEnrichment(s contractx.EnrichmentSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensure()
	list, _ := c.metadata[MetadataEnrichmentResults].([]contractx.EnrichmentSummary)
	c.metadata[MetadataEnrichmentResults] = append(list, s)
}

func (c *PipelineContext) ensure() {
	if c.metadata == nil {
		c.metadata = map[string]any{}
	}
}
