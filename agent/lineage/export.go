package lineage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	contractx "github.com/fireflyframework/genai-data/agent/contract"
	"github.com/rs/zerolog/log"
)

const defaultExportInterval = 5 * time.Second

// Sink persists batches of lineage records outside the process.
type Sink interface {
	Write(ctx context.Context, records []Record) error
}

// MultiSink writes every batch to each sink in order and joins their errors.
// NewExporter tracks its members separately.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	nonNil := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			nonNil = append(nonNil, s)
		}
	}
	return &MultiSink{sinks: nonNil}
}

func (m *MultiSink) Len() int { return len(m.sinks) }

func (m *MultiSink) Write(ctx context.Context, records []Record) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(ctx, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ExporterOption customizes an Exporter.
type ExporterOption func(*Exporter)

func WithInterval(d time.Duration) ExporterOption {
	return func(e *Exporter) {
		if d > 0 {
			e.interval = d
		}
	}
}

func WithShutdownTimeout(d time.Duration) ExporterOption {
	return func(e *Exporter) {
		if d > 0 {
			e.shutdownTimeout = d
		}
	}
}

// Exporter ships records to its sinks. Each sink keeps its own cursor, so a
// failing sink neither blocks nor duplicates deliveries to the others.
// A MultiSink passed to NewExporter is expanded into its members.
type Exporter struct {
	recorder *Recorder
	targets  []*exportTarget

	interval        time.Duration
	shutdownTimeout time.Duration

	mu sync.Mutex
}

type exportTarget struct {
	sink   Sink
	cursor int
}

func NewExporter(rec *Recorder, sink Sink, opts ...ExporterOption) (*Exporter, error) {
	if rec == nil {
		return nil, errors.New("lineage recorder is required")
	}
	if sink == nil {
		return nil, errors.New("lineage sink is required")
	}

	members := []Sink{sink}
	if multi, ok := sink.(*MultiSink); ok {
		members = multi.sinks
	}
	if len(members) == 0 {
		return nil, errors.New("lineage sink is required")
	}

	e := &Exporter{
		recorder:        rec,
		interval:        defaultExportInterval,
		shutdownTimeout: 10 * time.Second,
	}
	for _, m := range members {
		e.targets = append(e.targets, &exportTarget{sink: m})
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// Flush writes pending records to every sink and returns how many records
// became delivered to all of them. A sink's cursor only advances when it
// accepts its batch, so a failed batch is retried by the next flush.
func (e *Exporter) Flush(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	before := e.delivered()
	var errs []error
	for _, t := range e.targets {
		batch := e.recorder.Since(t.cursor)
		if len(batch) == 0 {
			continue
		}
		if err := t.sink.Write(ctx, batch); err != nil {
			errs = append(errs, fmt.Errorf("%w: export %d lineage records: %w", contractx.ErrSinkWrite, len(batch), err))
			continue
		}
		t.cursor += len(batch)
	}
	return e.delivered() - before, errors.Join(errs...)
}

// Pending counts records not yet delivered to every sink.
func (e *Exporter) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recorder.Len() - e.delivered()
}

func (e *Exporter) delivered() int {
	low := -1
	for _, t := range e.targets {
		if low < 0 || t.cursor < low {
			low = t.cursor
		}
	}
	return max(low, 0)
}

// Run flushes on every tick until ctx is done, then flushes once more.
func (e *Exporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.shutdownTimeout)
			defer cancel()
			if _, err := e.Flush(flushCtx); err != nil {
				log.Error().Err(err).Msg("final lineage export failed")
				return err
			}
			return nil
		case <-ticker.C:
			n, err := e.Flush(ctx)
			if err != nil {
				log.Warn().Err(err).Int("pending", e.Pending()).Msg("lineage export failed")
				continue
			}
			if n > 0 {
				log.Debug().Int("count", n).Msg("lineage records exported")
			}
		}
	}
}
