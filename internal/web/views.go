package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/crm/internal/core"
)

// recordView is the JSON shape of a record. Scalar kinds expose their field
// at the top level; every other kind nests the payload under "data".
func recordView(kind *core.KindDefinition, rec core.Record) map[string]any {
	v := map[string]any{
		"id":         rec.ID,
		"owner_id":   rec.OwnerID,
		"created_at": rec.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": nil,
	}
	if rec.UpdatedAt != nil {
		v["updated_at"] = rec.UpdatedAt.Format(time.RFC3339Nano)
	}
	if kind.IsScalar() {
		v[kind.ScalarField] = rec.Payload[kind.ScalarField]
	} else {
		data := rec.Payload
		if data == nil {
			data = core.Payload{}
		}
		v["data"] = data
	}
	return v
}

func recordViews(kind *core.KindDefinition, recs []core.Record) []map[string]any {
	out := make([]map[string]any, len(recs))
	for i, rec := range recs {
		out[i] = recordView(kind, rec)
	}
	return out
}

// kindView describes a registered kind to API clients.
type kindView struct {
	Key             string   `json:"key"`
	Label           string   `json:"label"`
	ImportField     string   `json:"import_field"`
	ExpectedHeaders []string `json:"expected_headers"`
	OwnerGated      bool     `json:"owner_gated"`
	DefaultLimit    int      `json:"default_limit"`
	MaxLimit        int      `json:"max_limit"`
}

// parseIntParam parses a non-negative integer query parameter.
func parseIntParam(r *http.Request, name string, defaultVal int) (int, error) {
	val := strings.TrimSpace(r.URL.Query().Get(name))
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return 0, core.Invalid("%s must be a non-negative integer", name)
	}
	return i, nil
}

// parseBoolParam reports whether a query flag is set to a true value.
func parseBoolParam(r *http.Request, name string) bool {
	b, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && b
}
