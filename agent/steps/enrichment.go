package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	contractx "github.com/fireflyframework/genai-data/agent/contract"
	"github.com/rs/zerolog/log"
)

const inputTenantID = "tenant_id"

// EnrichmentOption customizes an EnrichmentStep.
type EnrichmentOption func(*EnrichmentStep)

func WithStrategy(strategy contractx.Strategy) EnrichmentOption {
	return func(s *EnrichmentStep) {
		if trimmed := strings.TrimSpace(string(strategy)); trimmed != "" {
			s.strategy = contractx.Strategy(trimmed)
		}
	}
}

// EnrichmentStep forwards its inputs to an Enricher as the request parameters.
type EnrichmentStep struct {
	enricher       contractx.Enricher
	enrichmentType string
	strategy       contractx.Strategy
}

func NewEnrichmentStep(enricher contractx.Enricher, enrichmentType string, opts ...EnrichmentOption) (*EnrichmentStep, error) {
	if enricher == nil {
		return nil, errors.New("enricher is required")
	}
	enrichmentType = strings.TrimSpace(enrichmentType)
	if enrichmentType == "" {
		return nil, fmt.Errorf("%w: enrichment type is required", contractx.ErrValidation)
	}

	s := &EnrichmentStep{
		enricher:       enricher,
		enrichmentType: enrichmentType,
		strategy:       contractx.StrategyEnhance,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *EnrichmentStep) Type() string                 { return s.enrichmentType }
func (s *EnrichmentStep) Strategy() contractx.Strategy { return s.strategy }

// Execute runs the enrichment. A tenant_id input must be a string and is sent
// separately from the parameters; inputs itself is never modified.
func (s *EnrichmentStep) Execute(ctx context.Context, pc *PipelineContext, inputs map[string]any) (map[string]any, error) {
	if pc == nil {
		return nil, fmt.Errorf("%w: pipeline context is required", contractx.ErrValidation)
	}

	params := make(map[string]any, len(inputs))
	for k, v := range inputs {
		params[k] = v
	}

	var tenantID string
	if raw, ok := params[inputTenantID]; ok {
		delete(params, inputTenantID)
		switch v := raw.(type) {
		case nil:
		case string:
			tenantID = v
		default:
			return nil, fmt.Errorf("%w: tenant_id must be a string, got %T", contractx.ErrValidation, raw)
		}
	}

	result, err := s.enricher.Enrich(ctx, contractx.EnrichRequest{
		Type:       s.enrichmentType,
		Strategy:   s.strategy,
		Parameters: params,
		TenantID:   tenantID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: type=%s strategy=%s: %w", contractx.ErrEnrichment, s.enrichmentType, s.strategy, err)
	}

	pc.appendEnrichment(contractx.EnrichmentSummary{
		Type:          s.enrichmentType,
		Strategy:      s.strategy,
		CorrelationID: pc.CorrelationID,
	})

	log.Debug().
		Str("correlation_id", pc.CorrelationID).
		Str("type", s.enrichmentType).
		Str("strategy", string(s.strategy)).
		Msg("enrichment step completed")

	return result, nil
}
