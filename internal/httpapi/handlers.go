package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"VoiceScribe/internal/domain"
	"VoiceScribe/internal/usecase"
	apperrors "VoiceScribe/pkg/errors"
)

type handlers struct {
	pipeline *usecase.Pipeline
	logger   *slog.Logger
}

type ingestRequest struct {
	URL  string `json:"url"`
	HTML string `json:"html"`
}

type updateRequest struct {
	Content     string  `json:"content"`
	Title       *string `json:"title"`
	Author      *string `json:"author"`
	Description *string `json:"description"`
}

type articleResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Author      string     `json:"author,omitempty"`
	Description string     `json:"description,omitempty"`
	Content     string     `json:"content,omitempty"`
	URL         string     `json:"url,omitempty"`
	SourceType  string     `json:"source_type"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	AudioStatus string     `json:"audio_status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func toResponse(a domain.Article, includeContent bool) articleResponse {
	resp := articleResponse{
		ID:          a.ID,
		Title:       a.Title,
		Author:      a.Author,
		Description: a.Description,
		URL:         a.URL,
		SourceType:  string(a.SourceType),
		PublishedAt: a.PublishedAt,
		AudioStatus: string(a.AudioStatus),
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
	if includeContent {
		resp.Content = a.Content
	}
	return resp
}

func (h *handlers) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "malformed json body"))
		return
	}

	article, err := h.pipeline.Ingest(r.Context(), usecase.IngestRequest{URL: req.URL, HTML: req.HTML})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toResponse(article, true))
}

func (h *handlers) listArticles(w http.ResponseWriter, r *http.Request) {
	articles, err := h.pipeline.Articles(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]articleResponse, 0, len(articles))
	for _, a := range articles {
		resp = append(resp, toResponse(a, false))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) getArticle(w http.ResponseWriter, r *http.Request) {
	article, err := h.pipeline.Article(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toResponse(article, true))
}

func (h *handlers) updateArticle(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "malformed json body"))
		return
	}

	id := r.PathValue("id")
	upd := domain.ArticleUpdate{
		Content:     req.Content,
		Title:       req.Title,
		Author:      req.Author,
		Description: req.Description,
	}
	if err := h.pipeline.Update(r.Context(), id, upd); err != nil {
		h.writeError(w, r, err)
		return
	}

	article, err := h.pipeline.Article(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toResponse(article, true))
}

func (h *handlers) deleteArticle(w http.ResponseWriter, r *http.Request) {
	if err := h.pipeline.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) requestSynthesis(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.pipeline.RequestSynthesis(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"id":           id,
		"audio_status": string(domain.AudioPending),
	})
}

func (h *handlers) streamAudio(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	audio, modTime, err := h.pipeline.AudioStream(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer audio.Close()

	w.Header().Set("Content-Type", "audio/wav")
	http.ServeContent(w, r, id+".wav", modTime, audio)
}

func (h *handlers) deleteAudio(w http.ResponseWriter, r *http.Request) {
	if err := h.pipeline.DeleteAudio(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("encode response failed", "error", err)
	}
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		h.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
