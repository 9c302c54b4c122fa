package api

import (
	"net/http"
	"strings"

	"machrent/internal/dates"
	"machrent/internal/models"
	"machrent/internal/workflow"
)

type openRequest struct {
	Flow    string `json:"flow"`
	ModelID int64  `json:"model_id"`
}

type customerRequest struct {
	Email string `json:"email"`
}

type locationRequest struct {
	LocationID int64 `json:"location_id"`
}

type unitRequest struct {
	UnitID string `json:"unit_id"`
}

type periodRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type submitResponse struct {
	Rental  *models.Rental   `json:"rental"`
	Summary workflow.Summary `json:"summary"`
}

// owner scopes sessions to the API client and, if given, the end user.
func owner(r *http.Request) string {
	client := clientFromContext(r.Context())
	name := client.Name
	if name == "" {
		name = client.Key
	}
	if sub := strings.TrimSpace(r.Header.Get(OwnerHeader)); sub != "" {
		return name + "/" + sub
	}
	return name
}

func (s *HTTPServer) session(w http.ResponseWriter, r *http.Request) (*workflow.Controller, bool) {
	ctrl, err := s.sessions.GetOwned(owner(r), r.PathValue("id"))
	if err != nil {
		s.writeWorkflowError(w, err, nil)
		return nil, false
	}
	return ctrl, true
}

func (s *HTTPServer) handleOpen(w http.ResponseWriter, r *http.Request) {
	var body openRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	flow, err := workflow.ParseFlow(strings.TrimSpace(body.Flow))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.ModelID <= 0 {
		writeError(w, http.StatusBadRequest, "model_id is required")
		return
	}
	if !allowsFlow(clientFromContext(r.Context()), string(flow)) {
		writeError(w, http.StatusForbidden, errPermissionDenied.Error())
		return
	}

	ctrl, err := s.sessions.Open(r.Context(), owner(r), workflow.Options{
		Flow:    flow,
		ModelID: body.ModelID,
		Rules:   s.rules[flow],
	})
	if err != nil {
		s.writeWorkflowError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, ctrl.View())
}

func (s *HTTPServer) handleView(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ctrl.View())
}

func (s *HTTPServer) handleClose(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	s.sessions.Close(ctrl.ID())
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleCustomer(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	var body customerRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := ctrl.LookupCustomer(r.Context(), body.Email); err != nil {
		s.writeWorkflowError(w, err, ctrl)
		return
	}
	writeJSON(w, http.StatusOK, ctrl.View())
}

func (s *HTTPServer) handleLocations(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	locations, err := ctrl.Locations(r.Context())
	if err != nil {
		s.writeWorkflowError(w, err, ctrl)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locations": locations})
}

func (s *HTTPServer) handleLocation(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	var body locationRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := ctrl.SelectLocation(r.Context(), body.LocationID); err != nil {
		s.writeWorkflowError(w, err, ctrl)
		return
	}
	writeJSON(w, http.StatusOK, ctrl.View())
}

func (s *HTTPServer) handleUnit(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	var body unitRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := ctrl.SelectUnit(strings.TrimSpace(body.UnitID)); err != nil {
		s.writeWorkflowError(w, err, ctrl)
		return
	}
	writeJSON(w, http.StatusOK, ctrl.View())
}

func (s *HTTPServer) handlePeriod(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	var body periodRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	start, err := dates.Parse(body.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_date; expected YYYY-MM-DD")
		return
	}
	end, err := dates.Parse(body.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_date; expected YYYY-MM-DD")
		return
	}
	if _, err := ctrl.SetPeriod(r.Context(), start, end); err != nil {
		s.writeWorkflowError(w, err, ctrl)
		return
	}
	writeJSON(w, http.StatusOK, ctrl.View())
}

func (s *HTTPServer) handleAdvance(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := ctrl.Advance(); err != nil {
		s.writeWorkflowError(w, err, ctrl)
		return
	}
	writeJSON(w, http.StatusOK, ctrl.View())
}

func (s *HTTPServer) handleRetreat(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	aborted, err := ctrl.Retreat()
	if err != nil {
		s.writeWorkflowError(w, err, ctrl)
		return
	}
	if aborted {
		s.sessions.Close(ctrl.ID())
		writeJSON(w, http.StatusOK, map[string]any{"aborted": true})
		return
	}
	writeJSON(w, http.StatusOK, ctrl.View())
}

func (s *HTTPServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	summary, err := ctrl.Summary()
	if err != nil {
		s.writeWorkflowError(w, err, ctrl)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	summary, err := ctrl.Summary()
	if err != nil {
		s.writeWorkflowError(w, err, ctrl)
		return
	}
	rental, err := ctrl.Submit(r.Context())
	if err != nil {
		s.writeWorkflowError(w, err, ctrl)
		return
	}
	s.sessions.Close(ctrl.ID())
	writeJSON(w, http.StatusCreated, submitResponse{Rental: rental, Summary: summary})
}
