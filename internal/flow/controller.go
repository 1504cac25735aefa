package flow

import (
	"context"
	"errors"
	"strings"
	"time"

	commonerrors "loan-funnel-workers/internal/common/errors"
	"loan-funnel-workers/internal/common/logger"
	"loan-funnel-workers/internal/common/metrics"
	"loan-funnel-workers/internal/common/observability"
	"loan-funnel-workers/internal/draft"
	"loan-funnel-workers/internal/models"
	"loan-funnel-workers/internal/permission"

	"go.opentelemetry.io/otel/attribute"
)

// GateStatus describes what still holds a step.
type GateStatus struct {
	Kind        GateKind                              `json:"kind,omitempty"`
	Satisfied   bool                                  `json:"satisfied"`
	RemainingMs int64                                 `json:"remainingMs,omitempty"`
	Permissions map[permission.Kind]permission.Status `json:"permissions,omitempty"`
}

// View is what a caller needs to render the current step.
type View struct {
	ApplicationID string      `json:"applicationId"`
	Flow          string      `json:"flow"`
	Step          string      `json:"step"`
	Route         string      `json:"route"`
	Ordinal       int         `json:"ordinal"`
	Total         int         `json:"total"`
	Draft         draft.Draft `json:"draft,omitempty"`
	Gate          GateStatus  `json:"gate"`
	Terminal      bool        `json:"terminal"`
	Completed     bool        `json:"completed"`
	// DraftReset is set when a stored draft was corrupt and defaults were used.
	DraftReset bool `json:"draftReset,omitempty"`
}

// Transition is the result of a Continue that advanced.
type Transition struct {
	From string `json:"from"`
	To   string `json:"to"`
	View *View  `json:"view"`
}

type Options struct {
	Flows       []*Definition
	Drafts      draft.Store
	Permissions permission.Checker
	Logger      logger.Logger
	Now         func() time.Time
}

// Controller moves sessions through their flow. It keeps no state of its
// own; everything lives in the draft store.
type Controller struct {
	flows       map[string]*Definition
	drafts      draft.Store
	sessions    *SessionStore
	permissions permission.Checker
	logger      logger.Logger
	now         func() time.Time
}

func NewController(opts Options) (*Controller, error) {
	if opts.Drafts == nil {
		return nil, errors.New("draft store is required")
	}
	if len(opts.Flows) == 0 {
		return nil, errors.New("at least one flow is required")
	}
	if opts.Permissions == nil {
		opts.Permissions = permission.NewStaticChecker()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	flows := make(map[string]*Definition, len(opts.Flows))
	for _, d := range opts.Flows {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		flows[d.Name] = d
	}
	return &Controller{
		flows:       flows,
		drafts:      opts.Drafts,
		sessions:    NewSessionStore(opts.Drafts),
		permissions: opts.Permissions,
		logger:      opts.Logger,
		now:         opts.Now,
	}, nil
}

func (c *Controller) Flow(name string) (*Definition, bool) {
	d, ok := c.flows[name]
	return d, ok
}

// Start opens a session at the entry step. Starting an existing session
// returns its current view.
func (c *Controller) Start(ctx context.Context, flowName, applicationID string) (view *View, err error) {
	ctx, span := observability.StartSpan(ctx, "flow.Start", map[string]string{"flow": flowName})
	defer func() { observability.EndSpan(span, err) }()

	def, ok := c.flows[flowName]
	if !ok {
		return nil, commonerrors.NewUnknownFlowError(flowName)
	}
	if applicationID == "" {
		applicationID = models.NewApplicationID()
	}
	span.SetAttributes(attribute.String("application.id", applicationID))

	sess, found, err := c.loadSession(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if found {
		if sess.Flow != flowName {
			return nil, commonerrors.NewInvalidInputError("application " + applicationID + " belongs to flow " + sess.Flow)
		}
		return c.view(ctx, def, sess)
	}

	now := c.now().UTC()
	sess = &Session{
		ApplicationID: applicationID,
		Flow:          flowName,
		Current:       def.Entry().ID,
		Visited:       []string{},
		EnteredAt:     now,
		StartedAt:     now,
		Gates:         map[string]bool{},
	}
	if err := c.saveSession(ctx, sess); err != nil {
		return nil, err
	}
	c.logger.Info("session started", map[string]interface{}{
		"applicationId": applicationID,
		"flow":          flowName,
	})
	return c.view(ctx, def, sess)
}

// Enter returns the current step with its draft re-loaded from the store.
func (c *Controller) Enter(ctx context.Context, applicationID string) (view *View, err error) {
	ctx, span := observability.StartSpan(ctx, "flow.Enter", map[string]string{"application.id": applicationID})
	defer func() { observability.EndSpan(span, err) }()

	def, sess, err := c.session(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	return c.view(ctx, def, sess)
}

// Edit overlays fields on the current step's draft without moving.
func (c *Controller) Edit(ctx context.Context, applicationID string, fields map[string]interface{}) (view *View, err error) {
	ctx, span := observability.StartSpan(ctx, "flow.Edit", map[string]string{"application.id": applicationID})
	defer func() { observability.EndSpan(span, err) }()

	def, sess, err := c.session(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	step := c.currentStep(def, sess)
	if step.Terminal {
		return nil, commonerrors.NewFlowCompleteError(applicationID)
	}
	if _, err := c.edit(ctx, sess, step, fields); err != nil {
		return nil, err
	}
	return c.view(ctx, def, sess)
}

// Continue edits, validates, checks the gate and advances one step.
// expected, when set, must name the current step.
func (c *Controller) Continue(ctx context.Context, applicationID string, fields map[string]interface{}, expected string) (tr *Transition, err error) {
	ctx, span := observability.StartSpan(ctx, "flow.Continue", map[string]string{"application.id": applicationID})
	defer func() { observability.EndSpan(span, err) }()

	def, sess, err := c.session(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	step := c.currentStep(def, sess)
	span.SetAttributes(attribute.String("flow.step", step.ID))

	if expected != "" && expected != step.ID {
		return nil, commonerrors.NewStepMismatchError(expected, step.ID)
	}
	if step.Terminal {
		return nil, commonerrors.NewFlowCompleteError(applicationID)
	}

	d, err := c.edit(ctx, sess, step, fields)
	if err != nil {
		return nil, err
	}

	if step.Validate != nil {
		if fe := step.Validate(d); len(fe) > 0 {
			c.record(def, step, "invalid")
			return nil, commonerrors.NewFieldValidationError(fe)
		}
	}

	if err := c.checkGate(ctx, sess, step); err != nil {
		return nil, err
	}

	next, _ := def.Step(step.Next)
	now := c.now().UTC()

	if len(next.ClearOnEnter) > 0 {
		if err := c.drafts.Clear(ctx, applicationID, next.ClearOnEnter...); err != nil {
			return nil, commonerrors.NewDraftStoreError(err)
		}
	}

	sess.Visited = append(sess.Visited, step.ID)
	sess.Current = next.ID
	sess.EnteredAt = now
	if next.Terminal {
		sess.CompletedAt = &now
	}
	if err := c.saveSession(ctx, sess); err != nil {
		return nil, err
	}

	c.record(def, step, "advanced")
	if next.Terminal {
		metrics.FlowsCompleted.WithLabelValues(def.Name).Inc()
		c.logger.Info("flow completed", map[string]interface{}{
			"applicationId": applicationID,
			"flow":          def.Name,
			"transitions":   len(sess.Visited),
		})
	}

	view, err := c.view(ctx, def, sess)
	if err != nil {
		return nil, err
	}
	return &Transition{From: step.ID, To: next.ID, View: view}, nil
}

// SatisfyGate marks the OTP gate of step as passed.
func (c *Controller) SatisfyGate(ctx context.Context, applicationID, stepID string) error {
	def, sess, err := c.session(ctx, applicationID)
	if err != nil {
		return err
	}
	step, ok := def.Step(stepID)
	if !ok || step.Gate.Kind != GateOTP {
		return commonerrors.NewInvalidInputError("step " + stepID + " has no verification gate")
	}
	sess.Gates[stepID] = true
	return c.saveSession(ctx, sess)
}

// Back returns to the previously visited step. It is outside the linear
// contract and resets the gate of the step it returns to.
func (c *Controller) Back(ctx context.Context, applicationID, expected string) (view *View, err error) {
	ctx, span := observability.StartSpan(ctx, "flow.Back", map[string]string{"application.id": applicationID})
	defer func() { observability.EndSpan(span, err) }()

	def, sess, err := c.session(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	step := c.currentStep(def, sess)
	if expected != "" && expected != step.ID {
		return nil, commonerrors.NewStepMismatchError(expected, step.ID)
	}
	if sess.Completed() {
		return nil, commonerrors.NewFlowCompleteError(applicationID)
	}
	if len(sess.Visited) == 0 {
		return nil, commonerrors.NewNoPreviousStepError(step.ID)
	}

	prev := sess.Visited[len(sess.Visited)-1]
	sess.Visited = sess.Visited[:len(sess.Visited)-1]
	sess.Current = prev
	sess.EnteredAt = c.now().UTC()
	delete(sess.Gates, prev)
	if err := c.saveSession(ctx, sess); err != nil {
		return nil, err
	}
	c.record(def, step, "back")
	return c.view(ctx, def, sess)
}

// Session returns the stored session.
func (c *Controller) Session(ctx context.Context, applicationID string) (*Session, error) {
	_, sess, err := c.session(ctx, applicationID)
	return sess, err
}

// Current returns the session with the step it is on.
func (c *Controller) Current(ctx context.Context, applicationID string) (*Session, *Step, error) {
	def, sess, err := c.session(ctx, applicationID)
	if err != nil {
		return nil, nil, err
	}
	return sess, c.currentStep(def, sess), nil
}

// Draft reads one stored draft of the session's scope. A missing or
// corrupt draft comes back empty.
func (c *Controller) Draft(ctx context.Context, applicationID, key string) (draft.Draft, error) {
	if _, _, err := c.session(ctx, applicationID); err != nil {
		return nil, err
	}
	d, _, err := loadOptional(ctx, c.loader(applicationID), key)
	if err != nil {
		return nil, commonerrors.NewDraftStoreError(err)
	}
	if d == nil {
		d = draft.Draft{}
	}
	return d, nil
}

// ---------------------------------------------------------------------------

func (c *Controller) session(ctx context.Context, applicationID string) (*Definition, *Session, error) {
	sess, found, err := c.loadSession(ctx, applicationID)
	if err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, nil, commonerrors.NewSessionNotFoundError(applicationID)
	}
	def, ok := c.flows[sess.Flow]
	if !ok {
		return nil, nil, commonerrors.NewUnknownFlowError(sess.Flow)
	}
	return def, sess, nil
}

func (c *Controller) loadSession(ctx context.Context, applicationID string) (*Session, bool, error) {
	sess, found, err := c.sessions.Load(ctx, applicationID)
	switch {
	case errors.Is(err, draft.ErrCorruptDraft):
		return nil, false, commonerrors.NewDraftCorruptError(models.KeySession, err)
	case err != nil:
		return nil, false, commonerrors.NewDraftStoreError(err)
	}
	return sess, found, nil
}

func (c *Controller) saveSession(ctx context.Context, sess *Session) error {
	if err := c.sessions.Save(ctx, sess); err != nil {
		return commonerrors.NewDraftStoreError(err)
	}
	return nil
}

// currentStep falls back to the entry step if the stored id is unknown,
// which only happens when a flow definition changed under a live session.
func (c *Controller) currentStep(def *Definition, sess *Session) *Step {
	if s, ok := def.Step(sess.Current); ok {
		return s
	}
	c.logger.Warn("session on unknown step, restarting flow", map[string]interface{}{
		"applicationId": sess.ApplicationID,
		"step":          sess.Current,
	})
	sess.Current = def.Entry().ID
	sess.Visited = []string{}
	return def.Entry()
}

func (c *Controller) loader(applicationID string) Loader {
	return func(ctx context.Context, key string) (draft.Draft, bool, error) {
		return c.drafts.Load(ctx, applicationID, key)
	}
}

// loadDraft returns the stored draft or the step's initial draft. The
// second result reports whether the draft came from storage.
func (c *Controller) loadDraft(ctx context.Context, sess *Session, step *Step) (draft.Draft, bool, bool, error) {
	if step.DraftKey == "" {
		return nil, false, false, nil
	}
	d, found, err := c.drafts.Load(ctx, sess.ApplicationID, step.DraftKey)
	reset := false
	switch {
	case errors.Is(err, draft.ErrCorruptDraft):
		c.logger.Warn("draft replaced by defaults", map[string]interface{}{
			"applicationId": sess.ApplicationID,
			"key":           step.DraftKey,
		})
		reset = true
	case err != nil:
		return nil, false, false, commonerrors.NewDraftStoreError(err)
	case found:
		return d, true, false, nil
	}

	initial := step.Defaults.Clone()
	if step.Seed != nil {
		seeded, err := step.Seed(ctx, c.loader(sess.ApplicationID))
		if err != nil {
			return nil, false, reset, commonerrors.NewDraftStoreError(err)
		}
		initial = initial.Overlay(seeded)
	}
	return initial, false, reset, nil
}

func (c *Controller) edit(ctx context.Context, sess *Session, step *Step, fields map[string]interface{}) (draft.Draft, error) {
	d, _, _, err := c.loadDraft(ctx, sess, step)
	if err != nil || step.DraftKey == "" {
		return d, err
	}

	changes := make(map[string]interface{}, len(fields))
	var dropped []string
	for k, v := range fields {
		if !step.tracks(k) {
			continue
		}
		if step.numeric(k) {
			f, ok := draft.Draft{k: v}.Float(k)
			if !ok {
				dropped = append(dropped, k)
				continue
			}
			v = f
		}
		if norm, ok := step.Normalize[k]; ok {
			v = norm(draft.Draft{k: v}.String(k))
		}
		changes[k] = v
	}
	d = d.Overlay(changes)
	for _, k := range dropped {
		delete(d, k)
	}

	if d.HasAny(step.Fields) {
		if err := c.drafts.Save(ctx, sess.ApplicationID, step.DraftKey, d); err != nil {
			return nil, commonerrors.NewDraftStoreError(err)
		}
	}
	return d, nil
}

func (c *Controller) checkGate(ctx context.Context, sess *Session, step *Step) error {
	switch step.Gate.Kind {
	case GateOTP:
		if !sess.Gates[step.ID] {
			c.record(c.flows[sess.Flow], step, "gate_pending")
			return commonerrors.NewStepGatePendingError(step.ID, 0).WithMetadata("gate", string(GateOTP))
		}
	case GateCountdown:
		if remaining := c.remaining(sess, step); remaining > 0 {
			c.record(c.flows[sess.Flow], step, "gate_pending")
			return commonerrors.NewStepGatePendingError(step.ID, remaining).WithMetadata("gate", string(GateCountdown))
		}
	case GatePermission:
		report, err := permission.Evaluate(ctx, c.permissions, sess.ApplicationID, step.Gate.Permissions)
		if err != nil {
			return commonerrors.NewDraftStoreError(err)
		}
		metrics.PermissionChecks.WithLabelValues(report.Status.String()).Inc()
		switch report.Status {
		case permission.Denied:
			c.record(c.flows[sess.Flow], step, "denied")
			return commonerrors.NewPermissionDeniedError(report.DeniedNames())
		case permission.Pending:
			c.record(c.flows[sess.Flow], step, "gate_pending")
			return commonerrors.NewStepGatePendingError(step.ID, 0).WithMetadata("gate", string(GatePermission))
		}
	}
	return nil
}

func (c *Controller) remaining(sess *Session, step *Step) time.Duration {
	elapsed := c.now().Sub(sess.EnteredAt)
	if d := step.Gate.Countdown - elapsed; d > 0 {
		return d
	}
	return 0
}

func (c *Controller) view(ctx context.Context, def *Definition, sess *Session) (*View, error) {
	step := c.currentStep(def, sess)

	d, stored, reset, err := c.loadDraft(ctx, sess, step)
	if err != nil {
		return nil, err
	}
	if !stored && step.Seed != nil {
		// Seeded drafts are saved on first entry so later steps read them.
		if err := c.drafts.Save(ctx, sess.ApplicationID, step.DraftKey, d); err != nil {
			return nil, commonerrors.NewDraftStoreError(err)
		}
	}

	v := &View{
		ApplicationID: sess.ApplicationID,
		Flow:          def.Name,
		Step:          step.ID,
		Route:         step.Route,
		Ordinal:       step.Ordinal,
		Total:         len(def.Steps),
		Draft:         d,
		Terminal:      step.Terminal,
		Completed:     sess.Completed(),
		DraftReset:    reset,
	}

	g := GateStatus{Kind: step.Gate.Kind, Satisfied: true}
	switch step.Gate.Kind {
	case GateOTP:
		g.Satisfied = sess.Gates[step.ID]
	case GateCountdown:
		rem := c.remaining(sess, step)
		g.Satisfied = rem == 0
		g.RemainingMs = rem.Milliseconds()
	case GatePermission:
		report, err := permission.Evaluate(ctx, c.permissions, sess.ApplicationID, step.Gate.Permissions)
		if err != nil {
			return nil, commonerrors.NewDraftStoreError(err)
		}
		g.Satisfied = report.Status == permission.Granted
		g.Permissions = report.Statuses
	}
	v.Gate = g
	return v, nil
}

func (c *Controller) record(def *Definition, step *Step, outcome string) {
	metrics.StepTransitions.WithLabelValues(def.Name, step.ID, outcome).Inc()
}

// FieldErrors extracts inline messages from a validation failure.
func FieldErrors(err error) map[string]string {
	stdErr, ok := commonerrors.AsStandardError(err)
	if !ok || stdErr.Code != commonerrors.ErrCodeFieldValidationFailed {
		return nil
	}
	switch f := stdErr.Metadata["fields"].(type) {
	case map[string]string:
		return f
	default:
		return nil
	}
}

// MobileDraftKey is the draft holding the number OTPs are sent to.
func MobileDraftKey(flowName string) string {
	if strings.EqualFold(flowName, models.FlowOnboarding) {
		return models.OnboardingKey("mobile")
	}
	return models.KeyLoanMobile
}
