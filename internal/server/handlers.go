package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	perrors "github.com/cadre-oss/patternmem/internal/errors"
	"github.com/cadre-oss/patternmem/internal/pattern"
	"github.com/cadre-oss/patternmem/internal/resolver"
)

// requestValidate checks request bodies after decoding.
var requestValidate = validator.New()

// --- Helpers ---

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	jsonResponse(w, status, map[string]string{"error": msg})
}

// storeError maps a store error to a status code and structured body.
func storeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch perrors.AsCode(err) {
	case perrors.CodeInvalidConfidence, perrors.CodeUnknownStrategy, perrors.CodeEmptyCandidateSet, perrors.CodeConfigInvalid:
		status = http.StatusBadRequest
	case perrors.CodeNotFound, perrors.CodeNoCandidates:
		status = http.StatusNotFound
	case perrors.CodeDuplicateID:
		status = http.StatusConflict
	case perrors.CodeOwnershipMismatch:
		status = http.StatusForbidden
	case perrors.CodeCapacityZero:
		status = http.StatusUnprocessableEntity
	}
	body := map[string]string{"error": err.Error()}
	if code := perrors.AsCode(err); code != "" {
		body["code"] = code
	}
	if sug := perrors.Suggestion(err); sug != "" {
		body["suggestion"] = sug
	}
	jsonResponse(w, status, body)
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := requestValidate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("field %s failed %s", verrs[0].Field(), verrs[0].Tag())
		}
		return err
	}
	return nil
}

// patternRequest is the body accepted by insert and supersede. Timestamps
// and usage are owned by the store and cannot be set by clients.
type patternRequest struct {
	ID               string            `json:"id,omitempty"`
	Name             string            `json:"name"`
	Category         string            `json:"category"`
	Confidence       *float64          `json:"confidence" validate:"required"`
	ContextSignature string            `json:"context_signature"`
	ContributorID    string            `json:"contributor_id" validate:"required"`
	Examples         []string          `json:"examples,omitempty"`
	Payload          map[string]string `json:"payload,omitempty"`
}

func (p *patternRequest) record() pattern.Record {
	return pattern.Record{
		ID:               p.ID,
		Name:             p.Name,
		Category:         pattern.Category(p.Category),
		Confidence:       *p.Confidence,
		ContextSignature: p.ContextSignature,
		ContributorID:    p.ContributorID,
		Examples:         p.Examples,
		Payload:          p.Payload,
	}
}

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"version":  s.version,
		"patterns": s.store.Size(),
	})
}

// --- Patterns ---

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	var req patternRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.store.Insert(req.record())
	if err != nil {
		storeError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		storeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, rec)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.store.Remove(id) {
		storeError(w, perrors.Newf(perrors.CodeNotFound, "pattern %s not found", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSupersede(w http.ResponseWriter, r *http.Request) {
	var req patternRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	oldID := chi.URLParam(r, "id")
	id, err := s.store.Supersede(oldID, req.record())
	if err != nil {
		storeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"id": id, "superseded": oldID})
}

// --- Query & resolve ---

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	sig := r.URL.Query().Get("signature")
	if sig == "" {
		jsonError(w, http.StatusBadRequest, "signature is required")
		return
	}
	candidates := s.store.Query(sig)
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"signature":  pattern.NormalizeSignature(sig),
		"candidates": candidates,
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sig := q.Get("signature")
	if sig == "" {
		jsonError(w, http.StatusBadRequest, "signature is required")
		return
	}

	team := resolver.TeamConfig{
		Priority:         q.Get("priority"),
		PriorityCategory: pattern.Category(q.Get("priority_category")),
		CurrentContext:   q.Get("context"),
	}
	res, err := s.store.QueryResolved(sig, resolver.Strategy(q.Get("strategy")), team)
	if err != nil {
		storeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// --- Maintenance ---

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, http.StatusOK, s.store.Stats())
}

func (s *Server) handlePrune(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, http.StatusOK, s.store.Prune())
}

func (s *Server) handleFlush(w http.ResponseWriter, _ *http.Request) {
	if err := s.store.Flush(); err != nil {
		storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Sessions ---

type suggestRequest struct {
	AgentID    string            `json:"agent_id" validate:"required"`
	TemplateID string            `json:"template_id" validate:"required"`
	Context    map[string]string `json:"context"`
}

type choiceRequest struct {
	AgentID    string            `json:"agent_id" validate:"required"`
	TemplateID string            `json:"template_id" validate:"required"`
	Context    map[string]string `json:"context"`
	Values     map[string]string `json:"values" validate:"required,min=1"`
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess := s.session(req.AgentID)
	defaults := sess.SuggestDefaults(req.TemplateID, req.Context)
	resp := map[string]interface{}{"defaults": defaults}
	if reason, ok := sess.Explain(req.TemplateID, req.Context); ok && defaults != nil {
		resp["reasoning"] = reason
	}
	jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleRecordChoice(w http.ResponseWriter, r *http.Request) {
	var req choiceRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.session(req.AgentID).RecordChoice(req.TemplateID, req.Context, req.Values)
	if err != nil {
		storeError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, map[string]string{"id": id})
}

// --- SSE events ---

func (s *Server) handleSSEEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	clientID := uuid.New().String()
	client := s.broker.Subscribe(r.Context(), clientID, r.URL.Query().Get("contributor"))

	// Send initial connected event.
	data, _ := json.Marshal(map[string]string{"type": "connected", "client_id": clientID})
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()

	for ev := range client.Events {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
}
