package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ReservedDealKeys are system fields stripped from imported deal rows.
var ReservedDealKeys = []string{"id", "owner_id", "created_at", "updated_at"}

// ContactCandidates lists, in priority order, the row fields a contact name
// is taken from during import.
var ContactCandidates = []string{
	"contact", "Contact",
	"Investor", "investor",
	"Contact persons", "contact persons",
	"Contacted person", "contacted person",
	"Source Name", "source name",
}

// Stringify renders an imported cell value as text. Null renders empty.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

// IsBlankRow reports whether every value of row is empty after trimming.
func IsBlankRow(row map[string]any) bool {
	for _, v := range row {
		if strings.TrimSpace(Stringify(v)) != "" {
			return false
		}
	}
	return true
}

// RawRow keeps non-blank rows unmodified.
func RawRow(row map[string]any) (string, Payload, bool) {
	if IsBlankRow(row) {
		return "", nil, false
	}
	return "", Payload(row), true
}

// DealRow drops reserved and blank-named keys, discards null, blank and
// structured values, and trims strings. A non-blank string "id" is returned
// so the caller can reuse it.
func DealRow(row map[string]any) (string, Payload, bool) {
	var id string
	if s, ok := row["id"].(string); ok {
		id = strings.TrimSpace(s)
	}

	payload := make(Payload, len(row))
	for k, v := range row {
		if strings.TrimSpace(k) == "" || isReservedDealKey(k) {
			continue
		}
		if nv, ok := normalizeDealValue(v); ok {
			payload[k] = nv
		}
	}

	if len(payload) == 0 {
		return "", nil, false
	}
	return id, payload, true
}

func isReservedDealKey(k string) bool {
	for _, r := range ReservedDealKeys {
		if k == r {
			return true
		}
	}
	return false
}

func normalizeDealValue(v any) (any, bool) {
	switch val := v.(type) {
	case nil:
		return nil, false
	case string:
		s := strings.TrimSpace(val)
		return s, s != ""
	case []any, map[string]any:
		return nil, false
	default:
		return val, true
	}
}

// ScalarRow returns a normalizer collapsing each row into {field: value},
// taking value from the first candidate key whose trimmed text is non-blank.
func ScalarRow(field string, candidates ...string) RowNormalizer {
	return func(row map[string]any) (string, Payload, bool) {
		for _, key := range candidates {
			v, ok := row[key]
			if !ok {
				continue
			}
			if s := strings.TrimSpace(Stringify(v)); s != "" {
				return "", Payload{field: s}, true
			}
		}
		return "", nil, false
	}
}

// MissingHeaders returns the expected headers absent from row's keys.
func MissingHeaders(row map[string]any, expected []string) []string {
	var missing []string
	for _, h := range expected {
		if _, ok := row[h]; !ok {
			missing = append(missing, h)
		}
	}
	return missing
}
