package web

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/crm/internal/core"
	"github.com/JonMunkholm/crm/internal/logging"
)

// handleImport bulk-imports rows. The body is
// {"<import field>": [{...}, ...], "owner_id": "..."} where the import field
// is "contacts", "deals" or "items" depending on the kind.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	kind := kindFrom(r)
	ctx, actor := requestScope(r)

	var body map[string]json.RawMessage
	if err := decodeJSON(r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}

	in := core.ImportInput{}
	if raw, ok := body[kind.ImportField]; ok && !isJSONNull(raw) {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&in.Rows); err != nil {
			s.respondError(w, r, core.Invalid("%s must be a list of objects", kind.ImportField))
			return
		}
	}
	if raw, ok := body["owner_id"]; ok && !isJSONNull(raw) {
		if err := json.Unmarshal(raw, &in.OwnerID); err != nil {
			s.respondError(w, r, core.Invalid("owner_id must be a string"))
			return
		}
		in.OwnerID = strings.TrimSpace(in.OwnerID)
	}

	recs, err := s.service.Import(ctx, actor, kind, in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, recordViews(kind, recs))
}

func isJSONNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

// handleExport downloads every record of a kind as CSV or XLSX.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	kind := kindFrom(r)
	ctx, actor := requestScope(r)

	format, err := core.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	table, err := s.service.Export(ctx, actor, kind, format)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("%s_%s.%s", kind.Key, timestamp, format)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	switch format {
	case core.FormatXLSX:
		err = writeXLSX(w, kind.Label, table)
	default:
		err = writeCSV(w, table)
	}
	if err != nil {
		// Headers are already sent; all we can do is log.
		logging.FromContext(r.Context()).Error("export write failed",
			"kind", kind.Key, "format", format, "error", err)
	}
}

func writeCSV(w http.ResponseWriter, table *core.Table) error {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")

	cw := csv.NewWriter(w)
	if err := cw.Write(table.Headers); err != nil {
		return err
	}
	if err := cw.WriteAll(table.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// xlsxSheetName trims a label to Excel's 31 character sheet name limit.
func xlsxSheetName(label string) string {
	if len(label) > 31 {
		return label[:31]
	}
	return label
}

func writeXLSX(w http.ResponseWriter, label string, table *core.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := xlsxSheetName(label)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("open stream writer: %w", err)
	}

	writeRow := func(rowNum int, values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		row := make([]any, len(values))
		for i, v := range values {
			row[i] = v
		}
		return sw.SetRow(cell, row)
	}

	if err := writeRow(1, table.Headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, values := range table.Rows {
		if err := writeRow(i+2, values); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	return f.Write(w)
}
