package workflow

import (
	"time"

	"machrent/internal/domain"
	"machrent/internal/models"

	"github.com/cockroachdb/errors"
)

// View is a read-only snapshot of a session for presentation layers.
type View struct {
	ID         string              `json:"id"`
	Flow       Flow                `json:"flow"`
	Step       string              `json:"step"`
	StepIndex  int                 `json:"step_index"`
	StepCount  int                 `json:"step_count"`
	CanAdvance bool                `json:"can_advance"`
	Busy       bool                `json:"busy"`
	Status     string              `json:"status"`
	Error      string              `json:"error,omitempty"`
	Category   string              `json:"category,omitempty"`
	Closed     bool                `json:"closed"`
	Machine    models.Machine      `json:"machine"`
	Draft      models.BookingDraft `json:"draft"`
	Locations  []models.Location   `json:"locations,omitempty"`
	Units      []string            `json:"units,omitempty"`
	Overlap    *OverlapView        `json:"overlap,omitempty"`
}

// OverlapView lets a calendar paint the requested range next to the
// conflicting one.
type OverlapView struct {
	RequestedStart time.Time `json:"requested_start"`
	RequestedEnd   time.Time `json:"requested_end"`
	ConflictStart  time.Time `json:"conflict_start"`
	ConflictEnd    time.Time `json:"conflict_end"`
	Message        string    `json:"message,omitempty"`
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.seq.Status()
	v := View{
		ID:         c.id,
		Flow:       c.flow,
		Step:       c.seq.Current().String(),
		StepIndex:  c.seq.Index(),
		StepCount:  c.seq.Len(),
		CanAdvance: !c.closed && !st.Busy() && c.seq.CanAdvance(),
		Busy:       st.Busy(),
		Status:     st.Kind.String(),
		Closed:     c.closed,
		Machine:    c.machine,
		Draft:      c.draft,
		Locations:  append([]models.Location(nil), c.locations...),
		Units:      append([]string(nil), c.units...),
	}
	if c.draft.Customer != nil {
		cust := *c.draft.Customer
		v.Draft.Customer = &cust
	}
	if st.Failed() && st.Reason != nil {
		v.Error = st.Reason.Error()
		v.Category = domain.Category(st.Reason)
	}
	if c.overlap != nil {
		v.Overlap = &OverlapView{
			RequestedStart: c.overlap.RequestedStart,
			RequestedEnd:   c.overlap.RequestedEnd,
			ConflictStart:  c.overlap.ConflictStart,
			ConflictEnd:    c.overlap.ConflictEnd,
			Message:        c.overlap.Message,
		}
	}
	return v
}

// LastError returns the failure reason of the current step, if any.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.seq.Status()
	if !st.Failed() {
		return nil
	}
	return st.Reason
}

// Overlap returns the last overlap reported by period validation.
func (c *Controller) Overlap() (*domain.OverlapError, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.overlap == nil {
		return nil, false
	}
	ov := *c.overlap
	return &ov, true
}

// IsOverlap reports whether err carries an overlap rejection.
func IsOverlap(err error) (*domain.OverlapError, bool) {
	var ov *domain.OverlapError
	if errors.As(err, &ov) {
		return ov, true
	}
	return nil, false
}
