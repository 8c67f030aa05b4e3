package refdata

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/alicebob/miniredis/v2"
	contractx "github.com/fireflyframework/genai-data/agent/contract"
	backend "github.com/redis/go-redis/v9"
)

func newEnricher(t *testing.T) (*miniredis.Miniredis, *RedisEnricher) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	e, err := NewRedisEnricher(client)
	if err != nil {
		t.Fatalf("NewRedisEnricher() error = %v", err)
	}
	mr.HSet(e.Key("", "ADDRESS"), "country", "US", "region", "west")
	mr.HSet(e.Key("t1", "ADDRESS"), "region", "emea")
	return mr, e
}

func TestRedisEnricherStrategies(t *testing.T) {
	t.Parallel()

	_, e := newEnricher(t)
	params := map[string]any{"zip": "90210", "region": "local"}

	cases := []struct {
		name     string
		strategy contractx.Strategy
		tenant   string
		want     map[string]any
	}{
		{
			name:     "enhance keeps parameters",
			strategy: contractx.StrategyEnhance,
			want:     map[string]any{"zip": "90210", "region": "local", "country": "US"},
		},
		{
			name:     "merge prefers reference",
			strategy: contractx.StrategyMerge,
			want:     map[string]any{"zip": "90210", "region": "west", "country": "US"},
		},
		{
			name:     "tenant overrides global",
			strategy: contractx.StrategyMerge,
			tenant:   "t1",
			want:     map[string]any{"zip": "90210", "region": "emea", "country": "US"},
		},
		{
			name:     "validate reports mismatches",
			strategy: contractx.StrategyValidate,
			want: map[string]any{
				"zip": "90210", "region": "local",
				FieldValid: false, FieldInvalidFields: []string{"country", "region"},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := e.Enrich(context.Background(), contractx.EnrichRequest{
				Type:       "ADDRESS",
				Strategy:   tc.strategy,
				Parameters: params,
				TenantID:   tc.tenant,
			})
			if err != nil {
				t.Fatalf("Enrich() error = %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Enrich() = %v, want %v", got, tc.want)
			}
		})
	}
	if params["region"] != "local" || len(params) != 2 {
		t.Fatalf("parameters were modified: %v", params)
	}
}

func TestRedisEnricherValidatePasses(t *testing.T) {
	t.Parallel()

	_, e := newEnricher(t)
	got, err := e.Enrich(context.Background(), contractx.EnrichRequest{
		Type:       "address",
		Strategy:   contractx.StrategyValidate,
		Parameters: map[string]any{"country": "US", "region": "west"},
	})
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}
	if got[FieldValid] != true {
		t.Fatalf("valid = %v, want true (%v)", got[FieldValid], got[FieldInvalidFields])
	}
}

func TestRedisEnricherUnknownTypeReturnsParameters(t *testing.T) {
	t.Parallel()

	_, e := newEnricher(t)
	got, err := e.Enrich(context.Background(), contractx.EnrichRequest{
		Type:       "EMAIL",
		Strategy:   contractx.StrategyEnhance,
		Parameters: map[string]any{"email": "a@b.c"},
	})
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}
	if !reflect.DeepEqual(got, map[string]any{"email": "a@b.c"}) {
		t.Fatalf("Enrich() = %v", got)
	}
}

func TestRedisEnricherValidation(t *testing.T) {
	t.Parallel()

	_, e := newEnricher(t)
	for _, req := range []contractx.EnrichRequest{
		{Type: " ", Strategy: contractx.StrategyEnhance},
		{Type: "ADDRESS", Strategy: "SHUFFLE"},
	} {
		if _, err := e.Enrich(context.Background(), req); !errors.Is(err, contractx.ErrValidation) {
			t.Fatalf("Enrich(%+v) error = %v, want ErrValidation", req, err)
		}
	}
	if _, err := NewRedisEnricher(nil); err == nil {
		t.Fatal("expected error for nil client")
	}
}

func TestRedisEnricherUnavailable(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	client := backend.NewClient(&backend.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	e, err := NewRedisEnricher(client, WithKeyPrefix("custom:"))
	if err != nil {
		t.Fatalf("NewRedisEnricher() error = %v", err)
	}
	if got := e.Key("t1", "Address"); got != "custom:t1:address" {
		t.Fatalf("Key() = %q, want custom:t1:address", got)
	}
	mr.Close()

	_, err = e.Enrich(context.Background(), contractx.EnrichRequest{Type: "ADDRESS", Strategy: contractx.StrategyEnhance})
	if err == nil {
		t.Fatal("expected error when redis is unavailable")
	}
}
