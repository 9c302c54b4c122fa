package workflow

// StatusKind is the state of the remote call owned by a step.
type StatusKind int

const (
	StatusIdle StatusKind = iota
	StatusPending
	StatusSucceeded
	StatusFailed
)

func (k StatusKind) String() string {
	switch k {
	case StatusPending:
		return "pending"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "idle"
	}
}

// StepStatus is {Idle, Pending, Succeeded, Failed(reason)}. Reason is set only
// for Failed.
type StepStatus struct {
	Kind   StatusKind
	Reason error
}

func idle() StepStatus               { return StepStatus{Kind: StatusIdle} }
func pending() StepStatus            { return StepStatus{Kind: StatusPending} }
func succeeded() StepStatus          { return StepStatus{Kind: StatusSucceeded} }
func failed(reason error) StepStatus { return StepStatus{Kind: StatusFailed, Reason: reason} }
func (s StepStatus) Busy() bool      { return s.Kind == StatusPending }
func (s StepStatus) Failed() bool    { return s.Kind == StatusFailed }
func (s StepStatus) Succeeded() bool { return s.Kind == StatusSucceeded }
