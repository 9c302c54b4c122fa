package workflow

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"machrent/internal/clock"
	"machrent/internal/dates"
	"machrent/internal/domain"
	"machrent/internal/events"
	"machrent/internal/metrics"
	"machrent/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Rules are the local eligibility checks applied before period validation.
type Rules struct {
	MinRentalDays  int
	MaxAdvanceDays int
}

type Options struct {
	Flow    Flow
	ModelID int64
	// ChatID is copied onto the receipt so the notifier knows where to send it.
	ChatID int64
	Rules  Rules
}

type Deps struct {
	Gateway domain.Gateway
	Events  domain.EventPublisher
	Clock   clock.Clock
	Logger  *zerolog.Logger
}

// Controller drives one booking session: it owns the draft and the step state
// for the lifetime of the session and issues exactly one submission.
//
// Remote calls run without the lock held. A step is marked Pending for the
// duration of its call and a second call for that step fails with ErrBusy.
// Results are committed only if the session epoch and step are unchanged.
type Controller struct {
	mu sync.Mutex

	id      string
	flow    Flow
	rules   Rules
	chatID  int64
	gateway domain.Gateway
	events  domain.EventPublisher
	clock   clock.Clock
	logger  zerolog.Logger

	machine   models.Machine
	seq       *Sequencer
	draft     models.BookingDraft
	locations []models.Location
	units     []string
	requested [2]time.Time
	overlap   *domain.OverlapError

	epoch      uint64
	closed     bool
	lastActive time.Time
}

// Open fetches the machine record and starts a session at the first step of
// the flow. The daily rate fetched here is the only rate the session uses.
func Open(ctx context.Context, opts Options, deps Deps) (*Controller, error) {
	if !opts.Flow.Valid() {
		return nil, errors.Newf("unknown flow %q", opts.Flow)
	}
	if deps.Gateway == nil {
		return nil, errors.New("workflow: gateway is required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.NewRealClock()
	}
	if opts.Rules.MinRentalDays <= 0 {
		opts.Rules.MinRentalDays = models.DefaultMinRentalDays
	}

	machine, err := deps.Gateway.GetMachine(ctx, opts.ModelID)
	if err != nil {
		return nil, errors.Wrapf(err, "open workflow for machine %d", opts.ModelID)
	}

	id := uuid.NewString()
	logger := zerolog.Nop()
	if deps.Logger != nil {
		logger = deps.Logger.With().
			Str("workflow_id", id).
			Str("flow", string(opts.Flow)).
			Int64("model_id", opts.ModelID).
			Logger()
	}

	c := &Controller{
		id:         id,
		flow:       opts.Flow,
		rules:      opts.Rules,
		chatID:     opts.ChatID,
		gateway:    deps.Gateway,
		events:     deps.Events,
		clock:      deps.Clock,
		logger:     logger,
		machine:    *machine,
		seq:        NewSequencer(opts.Flow.Steps()),
		lastActive: deps.Clock.Now(),
	}

	c.logger.Info().Str("machine", machine.Name).Int64("daily_rate", machine.DailyRate).Msg("workflow opened")
	c.publish(events.EventWorkflowOpened, "")
	return c, nil
}

func (c *Controller) ID() string    { return c.id }
func (c *Controller) Flow() Flow    { return c.flow }
func (c *Controller) ChatID() int64 { return c.chatID }

func (c *Controller) Machine() models.Machine {
	return c.machine
}

// LookupCustomer resolves the customer of a staff-assisted booking by email.
// On success the customer is frozen for the rest of the session.
func (c *Controller) LookupCustomer(ctx context.Context, email string) (*models.Customer, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	c.mu.Lock()
	if err := c.checkStep(StepSelectCustomer); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if c.draft.Customer != nil {
		c.mu.Unlock()
		return nil, domain.ErrCustomerFrozen
	}
	if !emailPattern.MatchString(email) {
		err := domain.LocalValidation(errors.Wrapf(domain.ErrInvalidEmail, "%q", email))
		c.fail(StepSelectCustomer, err)
		c.mu.Unlock()
		return nil, err
	}
	epoch := c.begin(StepSelectCustomer)
	c.mu.Unlock()

	customer, err := c.gateway.LookupCustomerByEmail(ctx, email)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isCurrent(StepSelectCustomer, epoch) {
		c.logger.Debug().Str("step", StepSelectCustomer.String()).Msg("discarding stale customer lookup")
		return nil, domain.ErrStaleResult
	}
	if err != nil {
		c.fail(StepSelectCustomer, err)
		return nil, err
	}

	c.draft.Customer = customer
	c.succeed(StepSelectCustomer, true)
	c.publish(events.EventCustomerResolved, "")
	cp := *customer
	return &cp, nil
}

// Locations returns the branches offering the machine. The list is fetched
// once per session.
func (c *Controller) Locations(ctx context.Context) ([]models.Location, error) {
	c.mu.Lock()
	if err := c.checkStep(StepSelectLocationUnit); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if c.locations != nil {
		out := append([]models.Location(nil), c.locations...)
		c.mu.Unlock()
		return out, nil
	}
	epoch := c.begin(StepSelectLocationUnit)
	c.mu.Unlock()

	locations, err := c.gateway.ListLocationsForModel(ctx, c.machine.ID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isCurrent(StepSelectLocationUnit, epoch) {
		return nil, domain.ErrStaleResult
	}
	if err != nil {
		c.fail(StepSelectLocationUnit, err)
		return nil, err
	}
	if locations == nil {
		locations = []models.Location{}
	}
	c.locations = locations
	c.seq.SetStatus(StepSelectLocationUnit, idle())
	return append([]models.Location(nil), locations...), nil
}

// SelectLocation picks a branch and fetches the units available there.
// Any previously chosen unit is cleared.
func (c *Controller) SelectLocation(ctx context.Context, locationID int64) ([]string, error) {
	c.mu.Lock()
	if err := c.checkStep(StepSelectLocationUnit); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if _, ok := c.findLocation(locationID); !ok {
		c.mu.Unlock()
		return nil, domain.LocalValidation(errors.Wrapf(domain.ErrUnknownLocation, "location %d", locationID))
	}
	c.draft.LocationID = locationID
	c.draft.UnitID = ""
	c.units = nil
	c.seq.SetCanAdvance(StepSelectLocationUnit, false)
	c.resetPeriod()
	epoch := c.begin(StepSelectLocationUnit)
	c.mu.Unlock()

	units, err := c.gateway.ListAvailableUnits(ctx, c.machine.ID, locationID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isCurrent(StepSelectLocationUnit, epoch) {
		return nil, domain.ErrStaleResult
	}
	if err != nil {
		c.fail(StepSelectLocationUnit, err)
		return nil, err
	}
	if units == nil {
		units = []string{}
	}
	c.units = units
	c.seq.SetStatus(StepSelectLocationUnit, succeeded())
	return append([]string(nil), units...), nil
}

// SelectUnit picks one of the units listed for the selected location.
func (c *Controller) SelectUnit(unitID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkStep(StepSelectLocationUnit); err != nil {
		return err
	}
	if !contains(c.units, unitID) {
		return domain.LocalValidation(errors.Wrapf(domain.ErrUnknownUnit, "unit %q", unitID))
	}
	if c.draft.UnitID != unitID {
		c.resetPeriod()
	}
	c.draft.UnitID = unitID
	c.touch()
	c.seq.SetCanAdvance(StepSelectLocationUnit, c.draft.LocationID != 0 && c.draft.UnitID != "")
	return nil
}

// SetPeriod checks the period locally and, only if it passes, asks the
// backend to validate it. Calling it again invalidates a frozen period.
func (c *Controller) SetPeriod(ctx context.Context, start, end time.Time) (models.AvailabilityResult, error) {
	start, end = dates.Midnight(start), dates.Midnight(end)

	c.mu.Lock()
	if err := c.checkStep(StepSelectPeriod); err != nil {
		c.mu.Unlock()
		return models.AvailabilityResult{}, err
	}
	c.resetPeriod()
	c.requested = [2]time.Time{start, end}

	days, err := c.checkPeriod(start, end)
	if err != nil {
		c.fail(StepSelectPeriod, err)
		c.mu.Unlock()
		return models.AvailabilityResult{}, err
	}
	unitID := c.draft.UnitID
	epoch := c.begin(StepSelectPeriod)
	c.mu.Unlock()

	res, err := c.gateway.ValidatePeriod(ctx, unitID, start, end)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isCurrent(StepSelectPeriod, epoch) {
		c.logger.Debug().Str("unit_id", unitID).Msg("discarding stale period validation")
		return models.AvailabilityResult{}, domain.ErrStaleResult
	}
	if err != nil {
		c.fail(StepSelectPeriod, err)
		return models.AvailabilityResult{}, err
	}
	if !res.IsValid() {
		c.overlap = &domain.OverlapError{
			RequestedStart: start,
			RequestedEnd:   end,
			ConflictStart:  res.ConflictStart,
			ConflictEnd:    res.ConflictEnd,
			Message:        res.Message,
		}
		rejection := domain.Rejection(c.overlap)
		c.fail(StepSelectPeriod, rejection)
		return res, rejection
	}

	c.draft.StartDate = start
	c.draft.EndDate = end
	c.draft.ComputedDays = days
	c.succeed(StepSelectPeriod, true)
	c.publish(events.EventPeriodValidated, "")
	return res, nil
}

// resetPeriod drops a period validated for a previous unit. Callers hold c.mu.
func (c *Controller) resetPeriod() {
	c.draft.StartDate = time.Time{}
	c.draft.EndDate = time.Time{}
	c.draft.ComputedDays = 0
	c.draft.ComputedPrice = 0
	c.overlap = nil
	c.requested = [2]time.Time{}
	c.seq.SetCanAdvance(StepSelectPeriod, false)
	c.seq.SetStatus(StepSelectPeriod, idle())
}

func (c *Controller) checkPeriod(start, end time.Time) (int, error) {
	today := dates.Today(c.clock)
	if dates.Before(start, today) || dates.Before(end, today) {
		return 0, domain.LocalValidation(domain.ErrDateInPast)
	}
	if dates.Before(end, start) {
		return 0, domain.LocalValidation(domain.ErrEndBeforeStart)
	}
	if c.rules.MaxAdvanceDays > 0 && dates.DaysBetween(today, start) > c.rules.MaxAdvanceDays {
		return 0, domain.LocalValidation(errors.Wrapf(domain.ErrDateTooFar, "more than %d days ahead", c.rules.MaxAdvanceDays))
	}
	days := dates.DaysBetween(start, end)
	if days < c.rules.MinRentalDays {
		return 0, domain.LocalValidation(errors.Wrapf(domain.ErrPeriodTooShort, "%d of %d days", days, c.rules.MinRentalDays))
	}
	return days, nil
}

// Advance moves to the next step if the current one is complete.
func (c *Controller) Advance() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrSessionClosed
	}
	if c.seq.Status().Busy() {
		return domain.ErrBusy
	}
	from := c.seq.Current()
	if err := c.seq.Advance(); err != nil {
		return err
	}
	c.epoch++
	c.touch()
	if c.seq.Current() == StepSummary {
		c.draft.ComputedPrice = int64(c.draft.ComputedDays) * c.machine.DailyRate
	}
	metrics.ObserveTransition(string(c.flow), from.String(), "advance")
	c.logger.Debug().Str("from", from.String()).Str("to", c.seq.Current().String()).Msg("advanced")
	return nil
}

// Retreat moves one step back. Retreating from the first step aborts the
// session and discards the draft. A submission in flight cannot be retreated
// from.
func (c *Controller) Retreat() (aborted bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, domain.ErrSessionClosed
	}
	from := c.seq.Current()
	if from == StepSummary && c.seq.Status().Busy() {
		return false, domain.ErrBusy
	}

	c.epoch++
	c.touch()
	if c.seq.Status().Busy() {
		c.seq.SetStatus(from, idle())
	}
	if c.seq.Retreat() {
		c.abort("retreat")
		return true, nil
	}
	metrics.ObserveTransition(string(c.flow), from.String(), "retreat")
	return false, nil
}

// Summary is the read-only view of the completed draft.
type Summary struct {
	Flow       Flow             `json:"flow"`
	Machine    models.Machine   `json:"machine"`
	Customer   *models.Customer `json:"customer,omitempty"`
	Location   models.Location  `json:"location"`
	UnitID     string           `json:"unit_id"`
	StartDate  time.Time        `json:"start_date"`
	EndDate    time.Time        `json:"end_date"`
	Days       int              `json:"days"`
	DailyRate  int64            `json:"daily_rate"`
	TotalPrice int64            `json:"total_price"`
}

func (c *Controller) Summary() (Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(StepSummary); err != nil {
		return Summary{}, err
	}
	return c.summary(), nil
}

func (c *Controller) summary() Summary {
	loc, _ := c.findLocation(c.draft.LocationID)
	s := Summary{
		Flow:       c.flow,
		Machine:    c.machine,
		Location:   loc,
		UnitID:     c.draft.UnitID,
		StartDate:  c.draft.StartDate,
		EndDate:    c.draft.EndDate,
		Days:       c.draft.ComputedDays,
		DailyRate:  c.machine.DailyRate,
		TotalPrice: int64(c.draft.ComputedDays) * c.machine.DailyRate,
	}
	if c.draft.Customer != nil {
		cust := *c.draft.Customer
		s.Customer = &cust
	}
	return s
}

// Submit sends the draft as one atomic rental request. On success the session
// closes; on failure the draft is kept and the session stays at the summary.
func (c *Controller) Submit(ctx context.Context) (*models.Rental, error) {
	c.mu.Lock()
	if err := c.checkStep(StepSummary); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if err := c.checkComplete(); err != nil {
		c.fail(StepSummary, err)
		c.mu.Unlock()
		return nil, err
	}
	summary := c.summary()
	c.draft.ComputedPrice = summary.TotalPrice
	req := models.RentalRequest{
		MachineID:  c.machine.ID,
		UnitID:     c.draft.UnitID,
		LocationID: c.draft.LocationID,
		CustomerID: c.draft.CustomerReference(),
		StartDate:  dates.Format(c.draft.StartDate),
		EndDate:    dates.Format(c.draft.EndDate),
		TotalPrice: summary.TotalPrice,
		InPerson:   c.flow == FlowStaff,
	}
	epoch := c.begin(StepSummary)
	c.mu.Unlock()

	rental, err := c.gateway.CreateRental(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isCurrent(StepSummary, epoch) {
		ev := c.logger.Warn().Err(err)
		if rental != nil {
			ev = ev.Str("rental_id", rental.ID)
		}
		ev.Msg("submission finished after the session was closed")
		return nil, domain.ErrStaleResult
	}
	if err != nil {
		c.fail(StepSummary, err)
		metrics.IncSubmission(string(c.flow), domain.Category(err))
		c.logger.Warn().Err(err).Str("category", domain.Category(err)).Msg("rental submission failed")
		return nil, err
	}

	metrics.IncSubmission(string(c.flow), "ok")
	c.logger.Info().Str("rental_id", rental.ID).Int64("total_price", summary.TotalPrice).Msg("rental submitted")
	c.publishReceipt(rental, summary)

	c.epoch++
	c.closed = true
	c.reset()
	return rental, nil
}

func (c *Controller) checkComplete() error {
	if c.draft.LocationID == 0 || c.draft.UnitID == "" || !c.draft.HasPeriod() || c.draft.ComputedDays <= 0 {
		return domain.LocalValidation(domain.ErrIncompleteDraft)
	}
	if c.flow == FlowStaff && c.draft.Customer == nil {
		return domain.LocalValidation(errors.Wrap(domain.ErrIncompleteDraft, "customer missing"))
	}
	return nil
}

// Close aborts the session. In-flight responses are discarded on arrival.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.epoch++
	c.abort("closed")
}

func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// IdleSince reports the last time the session was touched.
func (c *Controller) IdleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

func (c *Controller) CurrentStep() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq.Current()
}

func (c *Controller) CanAdvance() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && !c.seq.Status().Busy() && c.seq.CanAdvance()
}

func (c *Controller) Draft() models.BookingDraft {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.draft
	if d.Customer != nil {
		cust := *d.Customer
		d.Customer = &cust
	}
	return d
}

func (c *Controller) checkOpen(step Step) error {
	if c.closed {
		return domain.ErrSessionClosed
	}
	if c.seq.Current() != step {
		return errors.Wrapf(domain.ErrWrongStep, "%s requested at %s", step, c.seq.Current())
	}
	return nil
}

func (c *Controller) checkStep(step Step) error {
	if err := c.checkOpen(step); err != nil {
		return err
	}
	if c.seq.Status().Busy() {
		return domain.ErrBusy
	}
	return nil
}

func (c *Controller) begin(step Step) uint64 {
	c.seq.SetStatus(step, pending())
	c.touch()
	return c.epoch
}

func (c *Controller) isCurrent(step Step, epoch uint64) bool {
	return !c.closed && c.epoch == epoch && c.seq.Current() == step
}

func (c *Controller) fail(step Step, err error) {
	c.seq.SetStatus(step, failed(err))
	c.seq.SetCanAdvance(step, false)
	c.touch()
	if !errors.Is(err, domain.ErrLocalValidation) {
		c.logger.Info().Err(err).Str("step", step.String()).Str("category", domain.Category(err)).Msg("step failed")
	}
}

func (c *Controller) succeed(step Step, canAdvance bool) {
	c.seq.SetStatus(step, succeeded())
	c.seq.SetCanAdvance(step, canAdvance)
	c.touch()
}

func (c *Controller) touch() {
	c.lastActive = c.clock.Now()
}

func (c *Controller) abort(reason string) {
	c.closed = true
	c.reset()
	metrics.ObserveTransition(string(c.flow), c.seq.Current().String(), "abort")
	c.logger.Info().Str("reason", reason).Msg("workflow aborted")
	c.publish(events.EventWorkflowAborted, reason)
}

func (c *Controller) reset() {
	c.draft = models.BookingDraft{}
	c.units = nil
	c.overlap = nil
	c.requested = [2]time.Time{}
	c.seq.Reset()
}

func (c *Controller) findLocation(id int64) (models.Location, bool) {
	for _, l := range c.locations {
		if l.ID == id {
			return l, true
		}
	}
	return models.Location{}, false
}

func (c *Controller) publish(eventType, reason string) {
	if c.events == nil {
		return
	}
	payload := events.WorkflowEventPayload{
		WorkflowID: c.id,
		Flow:       string(c.flow),
		Step:       c.seq.Current().String(),
		ModelID:    c.machine.ID,
		CustomerID: c.draft.CustomerReference(),
		UnitID:     c.draft.UnitID,
		StartDate:  c.draft.StartDate,
		EndDate:    c.draft.EndDate,
		Reason:     reason,
	}
	if err := c.events.PublishJSON(eventType, payload); err != nil {
		c.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}

func (c *Controller) publishReceipt(rental *models.Rental, s Summary) {
	if c.events == nil {
		return
	}
	receipt := models.Receipt{
		RentalID:    rental.ID,
		Flow:        string(c.flow),
		ChatID:      c.chatID,
		MachineName: c.machine.Name,
		Location:    s.Location.Label(),
		UnitID:      s.UnitID,
		StartDate:   s.StartDate,
		EndDate:     s.EndDate,
		Days:        s.Days,
		DailyRate:   s.DailyRate,
		TotalPrice:  s.TotalPrice,
		CreatedAt:   c.clock.Now(),
	}
	if s.Customer != nil {
		receipt.CustomerEmail = s.Customer.Email
	}
	payload := events.WorkflowEventPayload{
		WorkflowID: c.id,
		Flow:       string(c.flow),
		Step:       StepSummary.String(),
		ModelID:    c.machine.ID,
		CustomerID: c.draft.CustomerReference(),
		UnitID:     s.UnitID,
		StartDate:  s.StartDate,
		EndDate:    s.EndDate,
		TotalPrice: s.TotalPrice,
		RentalID:   rental.ID,
		Receipt:    &receipt,
	}
	if err := c.events.PublishJSON(events.EventRentalSubmitted, payload); err != nil {
		c.logger.Error().Err(err).Str("event_type", events.EventRentalSubmitted).Msg("publish event error")
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
