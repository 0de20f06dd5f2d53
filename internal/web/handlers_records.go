package web

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/crm/internal/core"
)

// handleListKinds returns every registered entity kind.
func (s *Server) handleListKinds(w http.ResponseWriter, r *http.Request) {
	kinds := s.service.ListKinds()
	out := make([]kindView, len(kinds))
	for i, k := range kinds {
		out[i] = kindView{
			Key:             k.Key,
			Label:           k.Label,
			ImportField:     k.ImportField,
			ExpectedHeaders: k.ExpectedHeaders,
			OwnerGated:      k.OwnerGated,
			DefaultLimit:    k.DefaultLimit,
			MaxLimit:        k.MaxLimit,
		}
	}
	writeJSON(w, r, http.StatusOK, out)
}

// handleListRecords lists records of a kind.
//
// Query parameters: skip, limit, owner_id, search (contacts only) and
// export=true, which records the listing in the audit log.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	kind := kindFrom(r)
	ctx, actor := requestScope(r)

	skip, err := parseIntParam(r, "skip", 0)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	limit, err := parseIntParam(r, "limit", 0)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	q := core.ListQuery{
		Offset:  skip,
		Limit:   limit,
		OwnerID: strings.TrimSpace(r.URL.Query().Get("owner_id")),
		Search:  strings.TrimSpace(r.URL.Query().Get("search")),
	}

	recs, err := s.service.List(ctx, actor, kind, q, parseBoolParam(r, "export"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, recordViews(kind, recs))
}

// handleGetRecord returns one record.
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	kind := kindFrom(r)
	rec, err := s.service.Get(r.Context(), kind, chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, recordView(kind, *rec))
}

// handleCreateRecord creates a record. The body is {"<field>": ..., "owner_id"}
// for scalar kinds and {"data": {...}, "owner_id"} for the rest.
func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	kind := kindFrom(r)
	ctx, actor := requestScope(r)

	var body map[string]any
	if err := decodeJSON(r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}

	ownerID, err := ownerFromBody(body)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	payload, err := payloadFromBody(kind, body)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	rec, err := s.service.Create(ctx, actor, kind, core.RecordInput{OwnerID: ownerID, Payload: payload})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, recordView(kind, *rec))
}

// handleUpdateRecord merges the body into a record's payload.
func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	kind := kindFrom(r)
	ctx, actor := requestScope(r)

	var body map[string]any
	if err := decodeJSON(r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}
	patch, err := payloadFromBody(kind, body)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	rec, err := s.service.Update(ctx, actor, kind, chi.URLParam(r, "id"), patch)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, recordView(kind, *rec))
}

// handleDeleteRecord removes a record.
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	ctx, actor := requestScope(r)
	if err := s.service.Delete(ctx, actor, kindFrom(r), chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleClear deletes every record of a kind.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	ctx, actor := requestScope(r)
	if _, err := s.service.Clear(ctx, actor, kindFrom(r)); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func ownerFromBody(body map[string]any) (string, error) {
	switch v := body["owner_id"].(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(v), nil
	default:
		return "", core.Invalid("owner_id must be a string")
	}
}

// payloadFromBody extracts the record payload from a create or update body.
// A missing data field yields a nil payload.
func payloadFromBody(kind *core.KindDefinition, body map[string]any) (core.Payload, error) {
	if kind.IsScalar() {
		v, ok := body[kind.ScalarField]
		if !ok {
			return core.Payload{}, nil
		}
		return core.Payload{kind.ScalarField: v}, nil
	}

	switch data := body["data"].(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return core.Payload(data), nil
	default:
		return nil, core.Invalid("data must be an object")
	}
}
