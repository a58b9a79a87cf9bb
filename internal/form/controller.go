package form

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"manual-polling-tool/internal/poll"
	"manual-polling-tool/internal/registry"
	"manual-polling-tool/internal/storage"
	"manual-polling-tool/internal/supervisor"
)

// Poller sends a payload to the polling backend.
type Poller interface {
	Poll(ctx context.Context, endpoint string, payload any) (*poll.Result, error)
}

// Options wires a Controller to the shared infrastructure. Every field is
// optional.
type Options struct {
	Policy Policy
	// Timeout bounds one backend call. Zero means no limit.
	Timeout time.Duration
	Tracker *supervisor.Tracker
	Metrics *supervisor.Metrics
	Store   storage.Store
	Logger  *slog.Logger
	// NewID generates submission ids; nil means random UUIDs.
	NewID func() string
}

// Outcome describes how one submission ended.
type Outcome struct {
	SubmissionID string  `json:"submission_id"`
	Provider     string  `json:"provider"`
	Status       Status  `json:"status"`
	Rows         int     `json:"rows"`
	Stale        bool    `json:"stale"`
	Report       *Report `json:"report,omitempty"`
	// Err is the failure behind an error status.
	Err error `json:"-"`
}

// Controller runs the submission pipeline of one provider.
type Controller struct {
	schema registry.ProviderSchema
	panel  *Panel
	client Poller
	opts   Options
	logger *slog.Logger
}

// NewController binds schema to its own panel.
func NewController(schema registry.ProviderSchema, client Poller, opts Options) *Controller {
	if !opts.Policy.Valid() {
		opts.Policy = PolicyLatest
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		schema: schema,
		panel:  NewPanel(schema.ID),
		client: client,
		opts:   opts,
		logger: logger.With("provider", schema.ID),
	}
}

// Schema returns the provider schema.
func (c *Controller) Schema() registry.ProviderSchema {
	return c.schema
}

// Panel returns the provider panel.
func (c *Controller) Panel() *Panel {
	return c.panel
}

// Submit runs one submission: the panel goes to loading, the payload is
// built from st and POSTed, and the panel shows the result.
//
// The returned error is non-nil only when the submission was not accepted
// (ErrSubmissionInFlight). Backend failures are reported through the
// Outcome status and its Err field.
func (c *Controller) Submit(ctx context.Context, st FormState) (Outcome, error) {
	ticket, err := c.panel.Begin(c.opts.Policy)
	if err != nil {
		c.opts.Metrics.RecordRejected(c.schema.ID)
		c.logger.Info("submission rejected", "reason", err.Error())
		return Outcome{}, err
	}

	id := c.opts.NewID()
	start := time.Now()
	out := Outcome{SubmissionID: id, Provider: c.schema.ID}

	if c.opts.Tracker != nil {
		c.opts.Tracker.Start(id, c.schema.ID, c.schema.Endpoint, LoadingMessage)
	}

	payload, err := BuildPayload(c.schema, st)
	c.record(id, start, payload)
	if err != nil {
		return c.fail(ticket, out, start, nil, err), nil
	}

	c.logger.Debug("polling backend", "id", id, "endpoint", c.schema.Endpoint,
		"dimensions", len(payload.Dimensions), "metrics", len(payload.Metrics))

	callCtx := ctx
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	res, err := c.client.Poll(callCtx, c.schema.Endpoint, payload)
	if err != nil {
		return c.fail(ticket, out, start, nil, err), nil
	}

	body, err := res.Pretty()
	if err != nil {
		return c.fail(ticket, out, start, res, err), nil
	}

	report := &Report{
		SubmissionID: id,
		Provider:     c.schema.ID,
		Filename:     ReportFilename(c.schema.ID),
		Rows:         res.Rows,
		FetchedAt:    time.Now(),
		Body:         body,
	}
	out.Rows = res.Rows
	out.Status = Status{State: StateSuccess, Message: SuccessMessage(res.Rows)}
	out.Report = report

	status := supervisor.StatusSuccess
	if !c.panel.Succeed(ticket, report) {
		out.Stale = true
		status = supervisor.StatusStale
		c.logger.Info("discarded stale reply", "id", id, "rows", res.Rows)
	} else {
		c.logger.Info("poll succeeded", "id", id, "rows", res.Rows,
			"duration_ms", time.Since(start).Milliseconds())
	}
	c.complete(id, start, status, res, out.Status.Message, nil)
	return out, nil
}

func (c *Controller) fail(ticket uint64, out Outcome, start time.Time, res *poll.Result, err error) Outcome {
	msg := FailureMessage(err)
	out.Status = Status{State: StateError, Message: msg}
	out.Err = err

	status := supervisor.StatusFailed
	if !c.panel.Fail(ticket, msg) {
		out.Stale = true
		status = supervisor.StatusStale
	}

	level := slog.LevelWarn
	if errors.Is(err, ErrMissingField) {
		level = slog.LevelInfo
	}
	c.logger.Log(context.Background(), level, "poll failed",
		"id", out.SubmissionID, "kind", poll.Describe(err), "err", err, "stale", out.Stale)

	c.complete(out.SubmissionID, start, status, res, msg, err)
	return out
}

// record inserts the history row for a started submission.
func (c *Controller) record(id string, start time.Time, payload Payload) {
	if c.opts.Store == nil {
		return
	}
	sub := &storage.Submission{
		ID:         id,
		TSStart:    start.UnixMilli(),
		Status:     storage.StatusInFlight,
		Provider:   c.schema.ID,
		Endpoint:   c.schema.Endpoint,
		Dimensions: len(payload.Dimensions),
		Metrics:    len(payload.Metrics),
	}
	if err := c.opts.Store.Insert(sub); err != nil {
		c.logger.Error("failed to insert submission to storage", "err", err, "id", id)
	}
}

func (c *Controller) complete(id string, start time.Time, status supervisor.SubmissionStatus, res *poll.Result, message string, pollErr error) {
	rows := 0
	if res != nil && status != supervisor.StatusFailed {
		rows = res.Rows
	}
	if c.opts.Tracker != nil {
		c.opts.Tracker.Finish(id, status, rows, message)
	} else {
		c.opts.Metrics.RecordSubmission(c.schema.ID, status, time.Since(start), rows)
	}

	if c.opts.Store == nil {
		return
	}

	now := time.Now()
	end := now.UnixMilli()
	durationMs := int(now.Sub(start).Milliseconds())
	st := storage.Status(status)
	upd := storage.SubmissionUpdate{
		TSEnd:      &end,
		Status:     &st,
		DurationMs: &durationMs,
		Rows:       &rows,
	}
	if res != nil {
		code, size := res.StatusCode, res.Size
		upd.HTTPStatus = &code
		upd.ResponseBytes = &size
	}
	if pollErr != nil {
		kind, msg := errorFields(pollErr)
		upd.ErrorKind = &kind
		upd.Error = &msg
		var pe *poll.Error
		if errors.As(pollErr, &pe) && pe.StatusCode != 0 {
			code := pe.StatusCode
			upd.HTTPStatus = &code
		}
	}
	if err := c.opts.Store.Update(id, upd); err != nil {
		c.logger.Error("failed to finalize submission record", "err", err, "id", id)
	}
}

func errorFields(err error) (kind, message string) {
	var pe *poll.Error
	switch {
	case errors.As(err, &pe):
		return string(pe.Kind), pe.Message
	case errors.Is(err, ErrMissingField):
		return "validation", err.Error()
	default:
		return "internal", err.Error()
	}
}
