package scraper

import (
	"encoding/json"
	"errors"
	"net/http"

	"newsriver/internal/domain/entity"
	"newsriver/internal/handler/http/respond"
)

type InitializeHandler struct{ Ctrl Controller }

func (h InitializeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}
	if req.ID <= 0 || req.URL == "" {
		respond.SafeError(w, http.StatusBadRequest,
			errors.New("id and url required"))
		return
	}
	src := &entity.Source{
		ID:                  req.ID,
		URL:                 req.URL,
		ScrapeFrequencyTier: req.ScrapeFrequency,
	}
	if err := h.Ctrl.Initialize(r.Context(), src); err != nil {
		var verr *entity.ValidationError
		if errors.As(err, &verr) {
			respond.SafeError(w, http.StatusBadRequest, err)
			return
		}
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}
