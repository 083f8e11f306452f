package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/pathwise/pathwise/internal/document"
	"github.com/pathwise/pathwise/internal/genai"
	"github.com/pathwise/pathwise/internal/markdown"
	"github.com/pathwise/pathwise/internal/store"
	"github.com/pathwise/pathwise/internal/sync"
)

// userHandler is an API handler with the authenticated user resolved.
type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

// requireUser resolves the caller from the X-User-ID header.
//
// The header is an opaque identifier supplied by the front-end session
// layer; a request without one is rejected before any handler runs.
func (s *Server) requireUser(h userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing X-User-ID header")
			return
		}
		h(w, r, userID)
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error body.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service errors onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "plan not found")
	case errors.Is(err, sync.ErrUnauthorized):
		writeJSONError(w, http.StatusForbidden, "not the plan owner")
	case errors.Is(err, sync.ErrConcurrentModification), errors.Is(err, store.ErrConflict):
		writeJSONError(w, http.StatusConflict, "plan was modified concurrently, reload and retry")
	case errors.Is(err, genai.ErrUpstream):
		writeJSONError(w, http.StatusBadGateway, "plan generation failed")
	default:
		s.logger.Printf("Internal error: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

type createPlanRequest struct {
	Topic   string `json:"topic"`
	Content string `json:"content,omitempty"`
}

// handleCreatePlan creates a plan from supplied markdown, or generates the
// markdown from the topic when the request carries no content.
func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request, userID string) {
	var req createPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	content := req.Content
	if content == "" {
		if req.Topic == "" {
			writeJSONError(w, http.StatusBadRequest, "topic is required when no content is supplied")
			return
		}
		if s.generator == nil {
			writeJSONError(w, http.StatusBadRequest, "plan generation is not configured")
			return
		}

		generated, err := genai.GenerateWithRetry(r.Context(), s.generator,
			genai.BuildPlanPrompt(req.Topic), time.Second, s.logger)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		content = generated
	}

	plan, err := s.svc.CreatePlan(r.Context(), userID, req.Topic, content)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.broadcastPlanUpdate(PlanUpdateData{
		PlanID:   plan.ID,
		Action:   "created",
		Topic:    plan.Topic,
		Progress: plan.Progress,
		Version:  plan.Version,
	})
	s.broadcastStats()

	writeJSON(w, http.StatusCreated, plan)
}

// handleListPlans returns the caller's plans, newest first.
func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request, userID string) {
	plans, err := s.svc.ListPlans(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

// handleGetPlan returns one plan with structured content.
func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request, userID string) {
	plan, err := s.svc.GetPlan(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// handleDeletePlan removes a plan.
func (s *Server) handleDeletePlan(w http.ResponseWriter, r *http.Request, userID string) {
	planID := r.PathValue("id")

	if err := s.svc.DeletePlan(r.Context(), userID, planID); err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.broadcastPlanUpdate(PlanUpdateData{PlanID: planID, Action: "deleted"})
	s.broadcastStats()

	w.WriteHeader(http.StatusNoContent)
}

type toggleRequest struct {
	SectionID string `json:"sectionId"`
	ItemID    string `json:"itemId"`
}

type toggleResponse struct {
	*sync.ToggleResult
	Warning string `json:"warning,omitempty"`
}

// handleToggleTask flips one task's completion state.
//
// A toggle whose calendar propagation failed still succeeded; it is reported
// with status 200 and a warning instead of an error status.
func (s *Server) handleToggleTask(w http.ResponseWriter, r *http.Request, userID string) {
	planID := r.PathValue("id")

	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SectionID == "" || req.ItemID == "" {
		writeJSONError(w, http.StatusBadRequest, "sectionId and itemId are required")
		return
	}

	result, err := s.svc.ToggleTask(r.Context(), userID, planID, req.SectionID, req.ItemID)
	if err != nil && !errors.Is(err, sync.ErrCalendarPropagation) {
		s.writeServiceError(w, err)
		return
	}

	resp := toggleResponse{ToggleResult: result}
	if err != nil {
		s.logger.Printf("Calendar propagation failed for plan %s: %v", planID, err)
		resp.Warning = "task updated, but calendar sync failed"
	}

	s.broadcastTaskToggle(TaskToggleData{
		PlanID:     planID,
		SectionID:  req.SectionID,
		ItemID:     req.ItemID,
		NewStatus:  result.NewStatus,
		NewVersion: result.NewVersion,
		Progress:   result.Progress,
	})

	writeJSON(w, http.StatusOK, resp)
}

type updateContentRequest struct {
	Content string `json:"content"`
}

// handleUpdateContent replaces a plan's structured content with the parse of
// the submitted markdown.
func (s *Server) handleUpdateContent(w http.ResponseWriter, r *http.Request, userID string) {
	planID := r.PathValue("id")

	var req updateContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		writeJSONError(w, http.StatusBadRequest, "content is required")
		return
	}

	res, err := markdown.Parse(req.Content)
	if err != nil && !errors.Is(err, markdown.ErrDegraded) {
		writeJSONError(w, http.StatusBadRequest, "content could not be parsed")
		return
	}

	doc, err := s.svc.UpdateContent(r.Context(), userID, planID, func(_ *document.Document) (*document.Document, error) {
		return res.Doc, nil
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.broadcastPlanUpdate(PlanUpdateData{
		PlanID:   planID,
		Action:   "updated",
		Progress: document.CalculateProgress(doc.Sections),
		Version:  doc.Version,
	})

	writeJSON(w, http.StatusOK, doc)
}
