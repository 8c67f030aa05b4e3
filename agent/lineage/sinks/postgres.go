package sinks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fireflyframework/genai-data/agent/lineage"
	"github.com/uptrace/bun"
)

var _ lineage.Sink = (*PostgresSink)(nil)

type recordRow struct {
	bun.BaseModel `bun:"table:lineage_records,alias:lr"`

	ID         int64     `bun:"id,pk,autoincrement"`
	LineageID  string    `bun:"lineage_id,nullzero"`
	AgentName  string    `bun:"agent_name,notnull"`
	Method     string    `bun:"method,notnull"`
	ElapsedMS  *float64  `bun:"elapsed_ms"`
	HasResult  bool      `bun:"has_result,notnull"`
	RecordedAt time.Time `bun:"recorded_at,notnull"`
}

// PostgresSink appends lineage batches to the lineage_records table.
type PostgresSink struct {
	db  bun.IDB
	now func() time.Time
}

func NewPostgresSink(db bun.IDB) (*PostgresSink, error) {
	if db == nil {
		return nil, errors.New("bun db is required")
	}
	return &PostgresSink{db: db, now: time.Now}, nil
}

func (s *PostgresSink) CreateTable(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*recordRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create lineage_records: %w", err)
	}
	return nil
}

func (s *PostgresSink) Write(ctx context.Context, records []lineage.Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := s.rows(records)
	if _, err := s.insertQuery(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("insert %d lineage records: %w", len(rows), err)
	}
	return nil
}

func (s *PostgresSink) insertQuery(rows *[]recordRow) *bun.InsertQuery {
	return s.db.NewInsert().Model(rows)
}

func (s *PostgresSink) rows(records []lineage.Record) []recordRow {
	at := s.now().UTC()
	rows := make([]recordRow, 0, len(records))
	for _, r := range records {
		row := recordRow{
			LineageID:  r.LineageID,
			AgentName:  r.AgentName,
			Method:     r.Method,
			HasResult:  r.HasResult,
			RecordedAt: at,
		}
		if ms, ok := r.Elapsed(); ok {
			row.ElapsedMS = &ms
		}
		rows = append(rows, row)
	}
	return rows
}
