package core

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// ExportFormat selects the file type produced by Export.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatXLSX ExportFormat = "xlsx"
)

// ParseExportFormat validates a requested format. Empty means CSV.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(s) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", Invalid("unsupported export format %q", s)
}

// Table is a rectangular rendering of records for file export.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Export returns every record of kind as a table and records the export.
func (s *Service) Export(ctx context.Context, actor Actor, kind *KindDefinition, format ExportFormat) (*Table, error) {
	recs, err := s.store.ListRecords(ctx, kind, ListQuery{})
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", kind.Key, err)
	}

	table := BuildTable(kind, recs)

	s.audit.Record(ctx, AuditEvent{
		ActorID: actor.ID,
		Action:  ActionExport,
		Entity:  kind.Key,
		Meta: map[string]any{
			"count":  len(recs),
			"format": string(format),
			"email":  actor.Email,
		},
	})

	return table, nil
}

// systemColumns are the record fields exported alongside the payload.
var systemColumns = map[string]bool{"id": true, "owner_id": true, "created_at": true, "updated_at": true}

// BuildTable lays records out as rows. Payload columns follow the kind's
// expected headers, then any other keys in alphabetical order. Payload keys
// named like a system column are exported as "data.<key>".
func BuildTable(kind *KindDefinition, recs []Record) *Table {
	columns := payloadColumns(kind, recs)

	headers := make([]string, 0, len(columns)+4)
	headers = append(headers, "id", "owner_id")
	for _, c := range columns {
		if systemColumns[c] {
			c = "data." + c
		}
		headers = append(headers, c)
	}
	headers = append(headers, "created_at", "updated_at")

	rows := make([][]string, 0, len(recs))
	for _, rec := range recs {
		row := make([]string, 0, len(headers))
		row = append(row, rec.ID, derefString(rec.OwnerID))
		for _, c := range columns {
			row = append(row, Stringify(rec.Payload[c]))
		}
		row = append(row, rec.CreatedAt.Format(time.RFC3339), formatTimePtr(rec.UpdatedAt))
		rows = append(rows, row)
	}

	return &Table{Headers: headers, Rows: rows}
}

func payloadColumns(kind *KindDefinition, recs []Record) []string {
	if kind.IsScalar() {
		return []string{kind.ScalarField}
	}

	seen := make(map[string]bool)
	columns := make([]string, 0, len(kind.ExpectedHeaders))
	for _, h := range kind.ExpectedHeaders {
		seen[h] = true
		columns = append(columns, h)
	}

	var extra []string
	for _, rec := range recs {
		for k := range rec.Payload {
			if !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)

	return append(columns, extra...)
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
