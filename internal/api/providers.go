package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"manual-polling-tool/internal/form"
	"manual-polling-tool/internal/registry"
	"manual-polling-tool/internal/util"
)

// ProviderSummary is a provider entry in the list view.
type ProviderSummary struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Endpoint   string     `json:"endpoint"`
	Dimensions int        `json:"dimensions"`
	Metrics    int        `json:"metrics"`
	Status     form.State `json:"status"`
}

// ProviderListResponse lists every configured provider in display order.
type ProviderListResponse struct {
	Providers []ProviderSummary `json:"providers"`
}

// handleListProviders returns every provider.
// GET /api/v1/providers
func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	ctrls := s.board.Controllers()
	resp := ProviderListResponse{Providers: make([]ProviderSummary, 0, len(ctrls))}
	for _, c := range ctrls {
		schema := c.Schema()
		resp.Providers = append(resp.Providers, ProviderSummary{
			ID:         schema.ID,
			Title:      schema.Title,
			Endpoint:   schema.Endpoint,
			Dimensions: len(schema.Dimensions),
			Metrics:    len(schema.Metrics),
			Status:     c.Panel().View().Status.State,
		})
	}
	s.writeJSON(w, resp)
}

// ProviderDetailResponse is a schema plus the form a new visitor would see.
type ProviderDetailResponse struct {
	Schema registry.ProviderSchema `json:"schema"`
	// Defaults holds the pre-filled values: seeded dates and first select options.
	Defaults form.FormState `json:"defaults"`
	Panel    form.PanelView `json:"panel"`
}

// handleGetProvider returns one schema with its default form state.
// GET /api/v1/providers/{id}
func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request, ctrl *form.Controller) {
	schema := ctrl.Schema()
	f := form.NewForm(schema, s.board.Seeder())
	s.writeJSON(w, ProviderDetailResponse{
		Schema:   schema,
		Defaults: f.State(),
		Panel:    ctrl.Panel().View(),
	})
}

// SubmitResponse is the outcome of one submission plus the pretty-printed
// reply when the poll succeeded.
type SubmitResponse struct {
	form.Outcome
	Result json.RawMessage `json:"result,omitempty"`
}

// handleSubmit runs the submission pipeline with a JSON form state.
// POST /api/v1/providers/{id}/submit
//
// The body is either {"values": {...}, "dimensions": [...], "metrics": [...]}
// or the flat payload shape the backend receives. Omitted inputs keep their
// defaults; omitted dimensions or metrics mean all of them.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, ctrl *form.Controller) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.RequestBodyMaxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	doc := map[string]any{}
	if len(body) > 0 {
		doc, err = util.DecodeJSONMap(body)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
	}

	st := stateFromJSON(form.NewForm(ctrl.Schema(), s.board.Seeder()), doc)

	out, err := ctrl.Submit(r.Context(), st)
	if errors.Is(err, form.ErrSubmissionInFlight) {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("submit failed", "err", err, "provider", ctrl.Schema().ID)
		s.writeError(w, http.StatusInternalServerError, "submit failed")
		return
	}

	resp := SubmitResponse{Outcome: out}
	if out.Report != nil {
		resp.Result = json.RawMessage(out.Report.Body)
	}

	code := http.StatusOK
	if out.Status.State == form.StateError {
		code = http.StatusBadGateway
		if errors.Is(out.Err, form.ErrMissingField) {
			code = http.StatusUnprocessableEntity
		}
	}
	s.writeJSONStatus(w, code, resp)
}

// stateFromJSON applies a decoded submit body to a freshly rendered form.
func stateFromJSON(f *form.Form, doc map[string]any) form.FormState {
	values := doc
	if nested, ok := doc["values"].(map[string]any); ok {
		values = nested
	}
	for _, in := range f.Inputs {
		raw, ok := values[in.Field.Key]
		if !ok {
			continue
		}
		if v, ok := util.ToString(raw); ok {
			in.Set(v)
		}
	}
	if raw, ok := doc[registry.KeyDimensions]; ok {
		list, _ := util.ToStrings(raw)
		f.Dimensions.Select(list)
	}
	if raw, ok := doc[registry.KeyMetrics]; ok {
		list, _ := util.ToStrings(raw)
		f.Metrics.Select(list)
	}
	return f.State()
}

// handleReport downloads the provider's current report.
// GET /api/v1/providers/{id}/report
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, ctrl *form.Controller) {
	report, ok := ctrl.Panel().Report()
	if !ok {
		s.writeError(w, http.StatusNotFound, "no report available")
		return
	}
	WriteReport(w, report)
}

// WriteReport sends report as a JSON file download.
func WriteReport(w http.ResponseWriter, report *form.Report) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+report.Filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(report.Body)
}
