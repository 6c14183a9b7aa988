package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/db"
)

// CatalogHandler serves projects, series and episodes
type CatalogHandler struct {
	db     *db.Client
	logger *zap.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(dbClient *db.Client, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{db: dbClient, logger: logger}
}

// ListProjects handles GET /api/projects
func (h *CatalogHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.db.ListProjects(r.Context())
	if err != nil {
		sendServiceError(w, h.logger, err, "")
		return
	}
	sendJSON(w, map[string]interface{}{"projects": projects}, http.StatusOK)
}

// CreateProject handles POST /api/projects
func (h *CatalogHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var in db.ProjectInput
	if !decodeBody(w, r, &in) {
		return
	}
	p, err := h.db.CreateProject(r.Context(), in)
	if err != nil {
		sendServiceError(w, h.logger, err, "")
		return
	}
	sendJSON(w, p, http.StatusCreated)
}

// GetProject handles GET /api/projects/{project_id}
func (h *CatalogHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.db.GetProject(r.Context(), r.PathValue("project_id"))
	if err != nil {
		sendServiceError(w, h.logger, err, "Project not found")
		return
	}
	sendJSON(w, p, http.StatusOK)
}

// UpdateProject handles PUT /api/projects/{project_id}
func (h *CatalogHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	var u db.ProjectUpdate
	if !decodeBody(w, r, &u) {
		return
	}
	p, err := h.db.UpdateProject(r.Context(), r.PathValue("project_id"), u)
	if err != nil {
		sendServiceError(w, h.logger, err, "Project not found")
		return
	}
	sendJSON(w, p, http.StatusOK)
}

// DeleteProject handles DELETE /api/projects/{project_id}
func (h *CatalogHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.db.DeleteProject(r.Context(), r.PathValue("project_id")); err != nil {
		sendServiceError(w, h.logger, err, "Project not found")
		return
	}
	sendJSON(w, map[string]string{"message": "Project deleted"}, http.StatusOK)
}

// ListSeries handles GET /api/projects/{project_id}/series
func (h *CatalogHandler) ListSeries(w http.ResponseWriter, r *http.Request) {
	series, err := h.db.ListSeries(r.Context(), r.PathValue("project_id"))
	if err != nil {
		sendServiceError(w, h.logger, err, "Project not found")
		return
	}
	sendJSON(w, map[string]interface{}{"series": series}, http.StatusOK)
}

// CreateSeries handles POST /api/projects/{project_id}/series
func (h *CatalogHandler) CreateSeries(w http.ResponseWriter, r *http.Request) {
	var in db.SeriesInput
	if !decodeBody(w, r, &in) {
		return
	}
	s, err := h.db.CreateSeries(r.Context(), r.PathValue("project_id"), in)
	if err != nil {
		sendServiceError(w, h.logger, err, "Project not found")
		return
	}
	sendJSON(w, s, http.StatusCreated)
}

// GetSeries handles GET /api/projects/{project_id}/series/{series_id}
func (h *CatalogHandler) GetSeries(w http.ResponseWriter, r *http.Request) {
	s, err := h.db.GetSeries(r.Context(), r.PathValue("project_id"), r.PathValue("series_id"))
	if err != nil {
		sendServiceError(w, h.logger, err, "Series not found")
		return
	}
	sendJSON(w, s, http.StatusOK)
}

// UpdateSeries handles PUT /api/projects/{project_id}/series/{series_id}
func (h *CatalogHandler) UpdateSeries(w http.ResponseWriter, r *http.Request) {
	var u db.SeriesUpdate
	if !decodeBody(w, r, &u) {
		return
	}
	s, err := h.db.UpdateSeries(r.Context(), r.PathValue("project_id"), r.PathValue("series_id"), u)
	if err != nil {
		sendServiceError(w, h.logger, err, "Series not found")
		return
	}
	sendJSON(w, s, http.StatusOK)
}

// DeleteSeries handles DELETE /api/projects/{project_id}/series/{series_id}
func (h *CatalogHandler) DeleteSeries(w http.ResponseWriter, r *http.Request) {
	if err := h.db.DeleteSeries(r.Context(), r.PathValue("project_id"), r.PathValue("series_id")); err != nil {
		sendServiceError(w, h.logger, err, "Series not found")
		return
	}
	sendJSON(w, map[string]string{"message": "Series deleted"}, http.StatusOK)
}

// ListEpisodes handles GET .../series/{series_id}/episodes
func (h *CatalogHandler) ListEpisodes(w http.ResponseWriter, r *http.Request) {
	episodes, err := h.db.ListEpisodes(r.Context(), r.PathValue("project_id"), r.PathValue("series_id"))
	if err != nil {
		sendServiceError(w, h.logger, err, "Series not found")
		return
	}
	sendJSON(w, map[string]interface{}{"episodes": episodes}, http.StatusOK)
}

// CreateEpisode handles POST .../series/{series_id}/episodes
func (h *CatalogHandler) CreateEpisode(w http.ResponseWriter, r *http.Request) {
	var in db.EpisodeInput
	if !decodeBody(w, r, &in) {
		return
	}
	e, err := h.db.CreateEpisode(r.Context(), r.PathValue("project_id"), r.PathValue("series_id"), in)
	if err != nil {
		sendServiceError(w, h.logger, err, "Series not found")
		return
	}
	sendJSON(w, e, http.StatusCreated)
}

// GetEpisode handles GET .../episodes/{episode_id}
func (h *CatalogHandler) GetEpisode(w http.ResponseWriter, r *http.Request) {
	k := episodeKey(r)
	e, err := h.db.GetEpisode(r.Context(), k.ProjectID, k.SeriesID, k.EpisodeID)
	if err != nil {
		sendServiceError(w, h.logger, err, "Episode not found")
		return
	}
	sendJSON(w, e, http.StatusOK)
}

// UpdateEpisode handles PUT .../episodes/{episode_id}
func (h *CatalogHandler) UpdateEpisode(w http.ResponseWriter, r *http.Request) {
	var u db.EpisodeUpdate
	if !decodeBody(w, r, &u) {
		return
	}
	k := episodeKey(r)
	e, err := h.db.UpdateEpisode(r.Context(), k.ProjectID, k.SeriesID, k.EpisodeID, u)
	if err != nil {
		sendServiceError(w, h.logger, err, "Episode not found")
		return
	}
	sendJSON(w, e, http.StatusOK)
}

// DeleteEpisode handles DELETE .../episodes/{episode_id}
func (h *CatalogHandler) DeleteEpisode(w http.ResponseWriter, r *http.Request) {
	k := episodeKey(r)
	if err := h.db.DeleteEpisode(r.Context(), k.ProjectID, k.SeriesID, k.EpisodeID); err != nil {
		sendServiceError(w, h.logger, err, "Episode not found")
		return
	}
	sendJSON(w, map[string]string{"message": "Episode deleted"}, http.StatusOK)
}
