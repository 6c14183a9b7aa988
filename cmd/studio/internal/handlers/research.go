package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/research"
)

// ResearchHandler serves research reports and the episode knowledge base
type ResearchHandler struct {
	svc    *research.Service
	logger *zap.Logger
}

// NewResearchHandler creates a new research handler
func NewResearchHandler(svc *research.Service, logger *zap.Logger) *ResearchHandler {
	return &ResearchHandler{svc: svc, logger: logger}
}

// ListReports handles GET .../episodes/{episode_id}/research
func (h *ResearchHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.svc.ListReports(r.Context(), episodeKey(r))
	if err != nil {
		sendServiceError(w, h.logger, err, "Episode not found")
		return
	}
	sendJSON(w, map[string]interface{}{"reports": reports}, http.StatusOK)
}

// CreateReport handles POST .../episodes/{episode_id}/research. An AI brief
// runs the research pipeline; upstream and parse failures still produce a
// stored report and a 201.
func (h *ResearchHandler) CreateReport(w http.ResponseWriter, r *http.Request) {
	var in research.CreateReportInput
	if !decodeBody(w, r, &in) {
		return
	}
	report, err := h.svc.CreateReport(r.Context(), episodeKey(r), in)
	if err != nil {
		sendServiceError(w, h.logger, err, "Episode not found")
		return
	}
	sendJSON(w, report, http.StatusCreated)
}

// GetReport handles GET .../research/{report_id}
func (h *ResearchHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.GetReport(r.Context(), episodeKey(r), r.PathValue("report_id"))
	if err != nil {
		sendServiceError(w, h.logger, err, "Report not found")
		return
	}
	sendJSON(w, report, http.StatusOK)
}

// UpdateReport handles PUT .../research/{report_id}
func (h *ResearchHandler) UpdateReport(w http.ResponseWriter, r *http.Request) {
	var u research.ReportUpdate
	if !decodeBody(w, r, &u) {
		return
	}
	report, err := h.svc.UpdateReport(r.Context(), episodeKey(r), r.PathValue("report_id"), u)
	if err != nil {
		sendServiceError(w, h.logger, err, "Report not found")
		return
	}
	sendJSON(w, report, http.StatusOK)
}

// CompleteReport handles POST .../research/{report_id}/complete
func (h *ResearchHandler) CompleteReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.CompleteReport(r.Context(), episodeKey(r), r.PathValue("report_id"))
	if err != nil {
		sendServiceError(w, h.logger, err, "Report not found")
		return
	}
	sendJSON(w, report, http.StatusOK)
}

// LinkAsset handles POST .../research/{report_id}/link-asset
func (h *ResearchHandler) LinkAsset(w http.ResponseWriter, r *http.Request) {
	var asset research.LinkedAsset
	if !decodeBody(w, r, &asset) {
		return
	}
	report, err := h.svc.LinkAsset(r.Context(), episodeKey(r), r.PathValue("report_id"), asset)
	if err != nil {
		sendServiceError(w, h.logger, err, "Report not found")
		return
	}
	sendJSON(w, report, http.StatusOK)
}

// ListKnowledgeBase handles GET .../episodes/{episode_id}/knowledge-base
func (h *ResearchHandler) ListKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.ListKnowledgeBase(r.Context(), episodeKey(r))
	if err != nil {
		sendServiceError(w, h.logger, err, "Episode not found")
		return
	}
	sendJSON(w, map[string]interface{}{"entries": entries}, http.StatusOK)
}

type knowledgeEntryRequest struct {
	research.NewEntry
	// FindingIndex promotes a finding of source_report_id instead of a typed fact
	FindingIndex *int `json:"finding_index"`
}

// AddKnowledgeEntry handles POST .../episodes/{episode_id}/knowledge-base
func (h *ResearchHandler) AddKnowledgeEntry(w http.ResponseWriter, r *http.Request) {
	var in knowledgeEntryRequest
	if !decodeBody(w, r, &in) {
		return
	}

	if in.FindingIndex != nil {
		entry, err := h.svc.PromoteFinding(r.Context(), episodeKey(r), in.SourceReportID, *in.FindingIndex, in.Category)
		if err != nil {
			sendServiceError(w, h.logger, err, "Report not found")
			return
		}
		sendJSON(w, entry, http.StatusCreated)
		return
	}

	entry, err := h.svc.AddToKnowledgeBase(r.Context(), episodeKey(r), in.NewEntry)
	if err != nil {
		sendServiceError(w, h.logger, err, "Episode not found")
		return
	}
	sendJSON(w, entry, http.StatusCreated)
}
