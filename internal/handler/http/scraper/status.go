package scraper

import (
	"errors"
	"net/http"

	"newsriver/internal/domain/entity"
	"newsriver/internal/handler/http/respond"
)

type StatusHandler struct{ Ctrl Controller }

func (h StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		respond.SafeError(w, http.StatusBadRequest,
			errors.New("url query parameter required"))
		return
	}
	st, err := h.Ctrl.Status(r.Context(), url)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			respond.SafeError(w, http.StatusNotFound, err)
			return
		}
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	respond.JSON(w, http.StatusOK, st)
}
