package api

import (
	"net/http"

	"machrent/internal/domain"
	"machrent/internal/workflow"

	"github.com/cockroachdb/errors"
)

// errorResponse is the body of every failed workflow call. Workflow is the
// session view after the failure, so a client can redraw without a second
// request.
type errorResponse struct {
	Error    string                `json:"error"`
	Category string                `json:"category"`
	Overlap  *workflow.OverlapView `json:"overlap,omitempty"`
	Workflow *workflow.View        `json:"workflow,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, domain.ErrBusy),
		errors.Is(err, domain.ErrStaleResult),
		errors.Is(err, domain.ErrWrongStep),
		errors.Is(err, domain.ErrCannotAdvance),
		errors.Is(err, domain.ErrLastStep),
		errors.Is(err, domain.ErrCustomerFrozen):
		return http.StatusConflict
	case errors.Is(err, domain.ErrLocalValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrRemoteRejection):
		return rejectionStatus(err)
	case errors.Is(err, domain.ErrTransportFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func rejectionStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNoMachine):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrOverlap), errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

func (s *HTTPServer) writeWorkflowError(w http.ResponseWriter, err error, ctrl *workflow.Controller) {
	code := statusFor(err)
	resp := errorResponse{Error: err.Error(), Category: domain.Category(err)}
	if code == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("workflow call failed")
		resp.Error = "internal error"
	}
	if ov, ok := workflow.IsOverlap(err); ok {
		resp.Overlap = &workflow.OverlapView{
			RequestedStart: ov.RequestedStart,
			RequestedEnd:   ov.RequestedEnd,
			ConflictStart:  ov.ConflictStart,
			ConflictEnd:    ov.ConflictEnd,
			Message:        ov.Message,
		}
	}
	if ctrl != nil && !ctrl.Closed() {
		v := ctrl.View()
		resp.Workflow = &v
	}
	writeJSON(w, code, resp)
}
