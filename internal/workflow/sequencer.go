package workflow

import "machrent/internal/domain"

// Sequencer holds the step index and the per-step advance flags of one
// workflow. It is not safe for concurrent use; the Controller guards it.
type Sequencer struct {
	steps      []Step
	index      int
	canAdvance []bool
	status     []StepStatus
}

func NewSequencer(steps []Step) *Sequencer {
	return &Sequencer{
		steps:      steps,
		canAdvance: make([]bool, len(steps)),
		status:     make([]StepStatus, len(steps)),
	}
}

func (s *Sequencer) Index() int    { return s.index }
func (s *Sequencer) Len() int      { return len(s.steps) }
func (s *Sequencer) Current() Step { return s.steps[s.index] }
func (s *Sequencer) IsLast() bool  { return s.index == len(s.steps)-1 }

// CanAdvance reports whether the current step validated its input.
func (s *Sequencer) CanAdvance() bool {
	return s.canAdvance[s.index] && !s.IsLast()
}

func (s *Sequencer) Status() StepStatus {
	return s.status[s.index]
}

func (s *Sequencer) StatusOf(step Step) StepStatus {
	if i := s.position(step); i >= 0 {
		return s.status[i]
	}
	return idle()
}

// SetCanAdvance is called by the step's own validation only.
func (s *Sequencer) SetCanAdvance(step Step, ok bool) {
	if i := s.position(step); i >= 0 {
		s.canAdvance[i] = ok
	}
}

func (s *Sequencer) SetStatus(step Step, st StepStatus) {
	if i := s.position(step); i >= 0 {
		s.status[i] = st
	}
}

func (s *Sequencer) Has(step Step) bool {
	return s.position(step) >= 0
}

func (s *Sequencer) Advance() error {
	if s.IsLast() {
		return domain.ErrLastStep
	}
	if !s.canAdvance[s.index] {
		return domain.ErrCannotAdvance
	}
	s.index++
	return nil
}

// Retreat moves one step back. At the first step it reports aborted=true and
// leaves the index untouched; the caller discards the whole session.
func (s *Sequencer) Retreat() (aborted bool) {
	if s.index == 0 {
		return true
	}
	s.index--
	return false
}

// Reset returns to the first step with every flag and status cleared.
func (s *Sequencer) Reset() {
	s.index = 0
	for i := range s.canAdvance {
		s.canAdvance[i] = false
		s.status[i] = idle()
	}
}

func (s *Sequencer) position(step Step) int {
	for i, st := range s.steps {
		if st == step {
			return i
		}
	}
	return -1
}
