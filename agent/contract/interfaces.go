package contract

import "context"

// Enricher forwards enrichment requests to the Data Starter backend.
type Enricher interface {
	Enrich(ctx context.Context, req EnrichRequest) (map[string]any, error)
}
