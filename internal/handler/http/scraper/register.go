// Package scraper exposes the scheduler's per-source instances over HTTP.
// The surface is a thin passthrough: every handler resolves an instance by
// its feed URL (or creates one, for initialize) and delegates to the
// manager. No scheduling logic lives here.
package scraper

import (
	"context"
	"net/http"

	"newsriver/internal/domain/entity"
	scrapers "newsriver/internal/scraper"
)

// Controller is the slice of the scraper manager the admin surface drives.
// *scraper.Manager satisfies it.
type Controller interface {
	Initialize(ctx context.Context, src *entity.Source) error
	Trigger(ctx context.Context, url string) error
	Status(ctx context.Context, url string) (*scrapers.Status, error)
	Destroy(ctx context.Context, url string) error
}

// Register registers the scraper admin handlers with the given mux.
// Instances are addressed by the `url` query parameter; initialize takes a
// JSON body because the instance does not exist yet.
func Register(mux *http.ServeMux, ctrl Controller) {
	mux.Handle("GET    /status", StatusHandler{ctrl})
	mux.Handle("POST   /trigger", TriggerHandler{ctrl})
	mux.Handle("POST   /initialize", InitializeHandler{ctrl})
	mux.Handle("DELETE /delete", DeleteHandler{ctrl})
}
