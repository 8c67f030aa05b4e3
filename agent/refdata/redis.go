package refdata

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	contractx "github.com/fireflyframework/genai-data/agent/contract"
	backend "github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "genai-data:refdata:"

	FieldValid         = "valid"
	FieldInvalidFields = "invalid_fields"
)

var _ contractx.Enricher = (*RedisEnricher)(nil)

// Option customizes RedisEnricher.
type Option func(*RedisEnricher)

func WithKeyPrefix(prefix string) Option {
	return func(e *RedisEnricher) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			e.prefix = trimmed
		}
	}
}

// RedisEnricher enriches parameters with reference data kept in Redis hashes.
// The hash <prefix><type> holds global values; <prefix><tenant>:<type> overrides
// them for one tenant.
type RedisEnricher struct {
	client backend.Cmdable
	prefix string
}

func NewRedisEnricher(client backend.Cmdable, opts ...Option) (*RedisEnricher, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	e := &RedisEnricher{client: client, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

func (e *RedisEnricher) Key(tenantID, enrichmentType string) string {
	typ := strings.ToLower(strings.TrimSpace(enrichmentType))
	if tenant := strings.TrimSpace(tenantID); tenant != "" {
		return e.prefix + tenant + ":" + typ
	}
	return e.prefix + typ
}

// Enrich applies req.Strategy:
//   - ENHANCE adds reference fields the parameters lack.
//   - MERGE lets reference fields replace parameter values.
//   - VALIDATE compares parameters to the reference and reports the mismatches.
func (e *RedisEnricher) Enrich(ctx context.Context, req contractx.EnrichRequest) (map[string]any, error) {
	if strings.TrimSpace(req.Type) == "" {
		return nil, fmt.Errorf("%w: enrichment type is required", contractx.ErrValidation)
	}
	if !req.Strategy.Valid() {
		return nil, fmt.Errorf("%w: unknown strategy %q", contractx.ErrValidation, req.Strategy)
	}

	ref, err := e.reference(ctx, req.TenantID, req.Type)
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(req.Parameters)+len(ref))
	for k, v := range req.Parameters {
		out[k] = v
	}

	switch req.Strategy {
	case contractx.StrategyEnhance:
		for k, v := range ref {
			if _, ok := out[k]; !ok {
				out[k] = v
			}
		}
	case contractx.StrategyMerge:
		for k, v := range ref {
			out[k] = v
		}
	case contractx.StrategyValidate:
		invalid := make([]string, 0)
		for k, want := range ref {
			got, ok := req.Parameters[k]
			if !ok || fmt.Sprint(got) != want {
				invalid = append(invalid, k)
			}
		}
		slices.Sort(invalid)
		out[FieldValid] = len(invalid) == 0
		out[FieldInvalidFields] = invalid
	}
	return out, nil
}

func (e *RedisEnricher) reference(ctx context.Context, tenantID, enrichmentType string) (map[string]string, error) {
	pipe := e.client.Pipeline()
	global := pipe.HGetAll(ctx, e.Key("", enrichmentType))
	var scoped *backend.MapStringStringCmd
	if strings.TrimSpace(tenantID) != "" {
		scoped = pipe.HGetAll(ctx, e.Key(tenantID, enrichmentType))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("load reference data %s: %w", enrichmentType, err)
	}

	ref := make(map[string]string)
	for k, v := range global.Val() {
		ref[k] = v
	}
	if scoped != nil {
		for k, v := range scoped.Val() {
			ref[k] = v
		}
	}
	return ref, nil
}
