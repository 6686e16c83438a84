// Package source reads documents out of a PostgreSQL table for bulk
// loading. Every schema field maps to the column of the same name.
package source

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/document"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/schema"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type Postgres struct {
	q         Querier
	schema    *schema.Schema
	stmt      string
	batchSize int
	logger    *slog.Logger
}

// NewPostgres reads table in id order, batchSize rows per query.
func NewPostgres(q Querier, s *schema.Schema, table, idColumn string, batchSize int) *Postgres {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Postgres{
		q:         q,
		schema:    s,
		stmt:      selectStatement(s, table, idColumn),
		batchSize: batchSize,
		logger:    slog.Default().With("component", "pg-source", "table", table),
	}
}

// selectStatement pages through table by id so each batch is an index
// range scan regardless of how far the load has progressed.
func selectStatement(s *schema.Schema, table, idColumn string) string {
	cols := []string{pq.QuoteIdentifier(idColumn)}
	for _, f := range s.Fields() {
		cols = append(cols, pq.QuoteIdentifier(f.Name))
	}
	id := pq.QuoteIdentifier(idColumn)
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s > $1 ORDER BY %s LIMIT $2",
		strings.Join(cols, ", "), quoteTable(table), id, id)
}

// quoteTable quotes each part of a possibly schema-qualified name.
func quoteTable(table string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

// Each calls fn with successive batches until the table is exhausted, fn
// fails or ctx ends. It returns the number of documents read.
func (p *Postgres) Each(ctx context.Context, fn func(batch []document.Document) error) (int, error) {
	var (
		after int64 = -1 << 63
		total int
	)
	for {
		batch, err := p.next(ctx, after)
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			return total, nil
		}
		if err := fn(batch); err != nil {
			return total, err
		}
		total += len(batch)
		after = batch[len(batch)-1].ID
		p.logger.Debug("batch read", "rows", len(batch), "last_id", after, "total", total)
		if len(batch) < p.batchSize {
			return total, nil
		}
	}
}

func (p *Postgres) next(ctx context.Context, after int64) ([]document.Document, error) {
	rows, err := p.q.QueryContext(ctx, p.stmt, after, p.batchSize)
	if err != nil {
		return nil, fmt.Errorf("querying rows after id %d: %w", after, err)
	}
	defer rows.Close()

	fields := p.schema.Fields()
	batch := make([]document.Document, 0, p.batchSize)
	for rows.Next() {
		var id int64
		values := make([]any, len(fields))
		dest := make([]any, 0, len(fields)+1)
		dest = append(dest, &id)
		for i, f := range fields {
			if f.Type == schema.Integer {
				values[i] = new(sql.NullInt64)
			} else {
				values[i] = new(sql.NullString)
			}
			dest = append(dest, values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		batch = append(batch, toDocument(id, fields, values))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return batch, nil
}

// toDocument drops NULL columns.
func toDocument(id int64, fields []schema.FieldMapping, values []any) document.Document {
	doc := document.Document{ID: id}
	for i, f := range fields {
		switch v := values[i].(type) {
		case *sql.NullInt64:
			if v.Valid {
				doc.Fields = append(doc.Fields, document.Int(f.Name, v.Int64))
			}
		case *sql.NullString:
			if !v.Valid {
				continue
			}
			if f.Type == schema.StringExact {
				doc.Fields = append(doc.Fields, document.String(f.Name, v.String))
			} else {
				doc.Fields = append(doc.Fields, document.Text(f.Name, v.String))
			}
		}
	}
	return doc
}
