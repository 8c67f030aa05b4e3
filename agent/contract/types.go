package contract

type Strategy string

const (
	StrategyEnhance  Strategy = "ENHANCE"
	StrategyMerge    Strategy = "MERGE"
	StrategyValidate Strategy = "VALIDATE"
)

type EnrichRequest struct {
	Type       string         `json:"type"`
	Strategy   Strategy       `json:"strategy"`
	Parameters map[string]any `json:"parameters"`
	TenantID   string         `json:"tenantId,omitempty"`
}

// EnrichmentSummary is appended to pipeline metadata after each enrichment step.
type EnrichmentSummary struct {
	Type          string   `json:"type"`
	Strategy      Strategy `json:"strategy"`
	CorrelationID string   `json:"correlation_id"`
}

func (s Strategy) Valid() bool {
	switch s {
	case StrategyEnhance, StrategyMerge, StrategyValidate:
		return true
	}
	return false
}
