package web

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"

	"manual-polling-tool/internal/form"
	"manual-polling-tool/internal/registry"
	"manual-polling-tool/internal/storage"
	"manual-polling-tool/internal/supervisor"
	assets "manual-polling-tool/web"
)

const recentLimit = 10

// PageData is the view model of the console page.
type PageData struct {
	Notice  string
	Tabs    []TabView
	Panels  []PanelData
	Recent  []RecentRow
	Backend BackendView
	Events  bool
}

// TabView is one tab button.
type TabView struct {
	ID     string
	Title  string
	Active bool
}

// PanelData is one provider panel.
type PanelData struct {
	ID             string
	Title          string
	Active         bool
	Notes          template.HTML
	Form           *form.Form
	View           form.PanelView
	DimensionsName string
	MetricsName    string
}

// RecentRow is a line of the history table.
type RecentRow struct {
	Provider      string
	Status        string
	Message       string
	Rows          int
	ResponseBytes int64
	DurationMs    int
	StartedAt     time.Time
}

// BackendView is the backend health badge.
type BackendView struct {
	Healthy bool
	Detail  string
}

func parsePage() (*template.Template, error) {
	fsys, err := assets.Templates()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	t, err := template.New("index.html.tmpl").Funcs(templateFuncs()).ParseFS(fsys, "index.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return t, nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"ago":   humanize.Time,
		"comma": func(n int) string { return humanize.Comma(int64(n)) },
		"bytes": func(n any) string {
			switch v := n.(type) {
			case int:
				return humanize.Bytes(uint64(max(v, 0)))
			case int64:
				return humanize.Bytes(uint64(max(v, 0)))
			default:
				return fmt.Sprint(n)
			}
		},
		"inputType": inputType,
	}
}

func inputType(role registry.Role) string {
	switch role {
	case registry.RoleSecret:
		return "password"
	case registry.RoleStartDate, registry.RoleEndDate:
		return "date"
	default:
		return "text"
	}
}

var (
	notesPolicyOnce sync.Once
	notesPolicy     *bluemonday.Policy
)

func notesSanitizer() *bluemonday.Policy {
	notesPolicyOnce.Do(func() {
		policy := bluemonday.UGCPolicy()
		policy.RequireNoFollowOnLinks(true)
		policy.AddTargetBlankToFullyQualifiedLinks(true)
		notesPolicy = policy
	})
	return notesPolicy
}

// RenderNotes turns provider help text written in markdown into sanitized
// HTML.
func RenderNotes(md string) template.HTML {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.NoEmptyLineBeforeBlock)
	r := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags})
	raw := markdown.ToHTML([]byte(md), p, r)
	return template.HTML(bytes.TrimSpace(notesSanitizer().SanitizeBytes(raw)))
}

// render writes the console page. submitted replaces the fresh form of the
// provider it belongs to.
func (h *Handler) render(w http.ResponseWriter, code int, active string, submitted *form.Form, notice string) {
	tabs, err := h.board.Tabs(active)
	if err != nil {
		h.logger.Error("failed to build tabs", "err", err)
		http.Error(w, "no providers configured", http.StatusInternalServerError)
		return
	}

	data := PageData{
		Notice:  notice,
		Backend: h.backendView(),
		Events:  h.features.Events && h.eventBus != nil,
		Recent:  h.recent(),
	}

	for _, ctrl := range h.board.Controllers() {
		schema := ctrl.Schema()
		f := form.NewForm(schema, h.board.Seeder())
		if submitted != nil && submitted.Schema.ID == schema.ID {
			f = submitted
		}

		data.Tabs = append(data.Tabs, TabView{
			ID:     schema.ID,
			Title:  schema.Title,
			Active: tabs.IsActive(schema.ID),
		})
		data.Panels = append(data.Panels, PanelData{
			ID:             schema.ID,
			Title:          schema.Title,
			Active:         tabs.IsActive(schema.ID),
			Notes:          h.notes[schema.ID],
			Form:           f,
			View:           ctrl.Panel().View(),
			DimensionsName: form.InputID(schema.ID, registry.KeyDimensions),
			MetricsName:    form.InputID(schema.ID, registry.KeyMetrics),
		})
	}

	var buf bytes.Buffer
	if err := h.page.Execute(&buf, data); err != nil {
		h.logger.Error("failed to render page", "err", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) backendView() BackendView {
	if h.healthChecker == nil {
		return BackendView{Healthy: true, Detail: "not checked"}
	}
	v := BackendView{Healthy: h.healthChecker.Healthy()}
	if last := h.healthChecker.LastCheck(); !last.IsZero() {
		v.Detail = "checked " + humanize.Time(last)
	}
	if e := h.healthChecker.LastError(); e != "" {
		v.Detail += ": " + e
	}
	return v
}

// recent lists the latest submissions from the history store, or from the
// tracker when history is off.
func (h *Handler) recent() []RecentRow {
	if h.store != nil {
		subs, err := h.store.List(storage.ListOptions{Limit: recentLimit})
		if err != nil {
			h.logger.Warn("failed to list recent submissions", "err", err)
			return nil
		}
		rows := make([]RecentRow, 0, len(subs))
		for _, s := range subs {
			rows = append(rows, RecentRow{
				Provider:      s.Provider,
				Status:        string(s.Status),
				Message:       s.Error,
				Rows:          s.Rows,
				ResponseBytes: s.ResponseBytes,
				DurationMs:    s.DurationMs,
				StartedAt:     time.UnixMilli(s.TSStart),
			})
		}
		return rows
	}

	if h.tracker == nil {
		return nil
	}
	snap := h.tracker.Snapshot()
	rows := make([]RecentRow, 0, recentLimit)
	for i := len(snap.Recent) - 1; i >= 0 && len(rows) < recentLimit; i-- {
		s := snap.Recent[i]
		row := RecentRow{
			Provider:  s.Provider,
			Status:    string(s.Status),
			Rows:      s.Rows,
			StartedAt: s.StartTime,
		}
		if s.Status != supervisor.StatusSuccess {
			row.Message = s.Message
		}
		if s.EndTime != nil {
			row.DurationMs = int(s.EndTime.Sub(s.StartTime).Milliseconds())
		}
		rows = append(rows, row)
	}
	return rows
}
