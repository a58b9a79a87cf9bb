package form

import (
	"errors"
	"sync"
	"time"
)

// ErrSubmissionInFlight is returned under PolicyReject when the provider
// already has a submission awaiting its reply.
var ErrSubmissionInFlight = errors.New("a submission is already in flight for this provider")

// Policy decides how overlapping submissions for one provider behave.
type Policy string

const (
	// PolicyLatest lets submissions overlap; only the newest reply is shown.
	PolicyLatest Policy = "latest"
	// PolicyReject refuses a submission while another one is in flight.
	PolicyReject Policy = "reject"
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	return p == PolicyLatest || p == PolicyReject
}

// Report is the downloadable result of a successful poll.
type Report struct {
	SubmissionID string    `json:"submission_id"`
	Provider     string    `json:"provider"`
	Filename     string    `json:"filename"`
	Rows         int       `json:"rows"`
	FetchedAt    time.Time `json:"fetched_at"`
	// Body is the reply indented with two spaces. Never mutated.
	Body []byte `json:"-"`
}

// ReportFilename is the download name for provider.
func ReportFilename(provider string) string {
	return provider + "_report.json"
}

// PanelView is a snapshot of a panel.
type PanelView struct {
	Provider  string    `json:"provider"`
	Status    Status    `json:"status"`
	Report    *Report   `json:"report,omitempty"`
	InFlight  int       `json:"in_flight"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Panel is the status line and result area of one provider. All viewers
// share it; it is safe for concurrent use.
//
// Every submission takes a ticket. Only the holder of the newest ticket
// may write a result, so a slow reply cannot overwrite a newer one.
type Panel struct {
	mu        sync.Mutex
	provider  string
	status    Status
	report    *Report
	seq       uint64
	inFlight  int
	updatedAt time.Time
}

// NewPanel returns an idle panel.
func NewPanel(provider string) *Panel {
	return &Panel{
		provider: provider,
		status:   Status{State: StateIdle},
	}
}

// Begin starts a submission: the panel goes to loading and the previous
// report is dropped.
func (p *Panel) Begin(policy Policy) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if policy == PolicyReject && p.inFlight > 0 {
		return 0, ErrSubmissionInFlight
	}
	p.seq++
	p.inFlight++
	p.status = Status{State: StateLoading, Message: LoadingMessage}
	p.report = nil
	p.updatedAt = time.Now()
	return p.seq, nil
}

// Succeed stores report if ticket is still current. It reports false for a
// stale ticket, in which case the panel is unchanged.
func (p *Panel) Succeed(ticket uint64, report *Report) bool {
	return p.finish(ticket, Status{State: StateSuccess, Message: SuccessMessage(report.Rows)}, report)
}

// Fail shows message if ticket is still current.
func (p *Panel) Fail(ticket uint64, message string) bool {
	return p.finish(ticket, Status{State: StateError, Message: message}, nil)
}

func (p *Panel) finish(ticket uint64, st Status, report *Report) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inFlight > 0 {
		p.inFlight--
	}
	if ticket != p.seq {
		return false
	}
	p.status = st
	p.report = report
	p.updatedAt = time.Now()
	return true
}

// Current reports whether ticket belongs to the newest submission.
func (p *Panel) Current(ticket uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ticket == p.seq
}

// Report returns the downloadable result, if any.
func (p *Panel) Report() (*Report, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.report, p.report != nil
}

// View returns a snapshot of the panel.
func (p *Panel) View() PanelView {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PanelView{
		Provider:  p.provider,
		Status:    p.status,
		Report:    p.report,
		InFlight:  p.inFlight,
		UpdatedAt: p.updatedAt,
	}
}
