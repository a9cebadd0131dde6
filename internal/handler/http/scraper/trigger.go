package scraper

import (
	"errors"
	"net/http"

	"newsriver/internal/domain/entity"
	"newsriver/internal/handler/http/respond"
)

type TriggerHandler struct{ Ctrl Controller }

func (h TriggerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		respond.SafeError(w, http.StatusBadRequest,
			errors.New("url query parameter required"))
		return
	}
	if err := h.Ctrl.Trigger(r.Context(), url); err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			respond.SafeError(w, http.StatusNotFound, err)
			return
		}
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	// The tick runs on the instance goroutine; all we confirm is arming.
	respond.JSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}
