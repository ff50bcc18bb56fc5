// Package httpapi is the external HTTP surface of the image-layer
// service, wired with github.com/go-chi/chi/v5 the way the corpus's
// service routers (horos47/core/chassis) compose middleware and
// routes. Full authentication is an external collaborator's concern;
// this package supplies the minimum pass-through gate needed to
// exercise the core engine end to end.
package httpapi

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/distribution/layersvc/pkg/imagestore"
	"github.com/distribution/layersvc/pkg/objectstore"
	"github.com/distribution/layersvc/pkg/session"
	"github.com/distribution/layersvc/pkg/upload"
	"github.com/distribution/layersvc/pkg/workqueue"
)

// Deps bundles every collaborator a handler needs. Constructed once at
// startup by cmd/registry.
type Deps struct {
	Images      *imagestore.Store
	Blobs       objectstore.Store
	Uploads     *upload.Manager
	Sessions    *session.Store
	DiffQueue   *workqueue.Queue
	AccelPrefix string // empty disables X-Accel-Redirect entirely
}

// NewRouter builds the full /v1/images and /v1/private_images surface.
func NewRouter(deps *Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	h := &handlers{deps: deps}

	r.Route("/v1/images/{image_id}", func(r chi.Router) {
		r.Put("/json", h.putJSON)
		r.Put("/layer", h.putLayer)
		r.Put("/checksum", h.putChecksum)
		r.With(requireCompletion(h), setCacheHeaders).Get("/layer", h.getLayer(false))
		r.With(requireCompletion(h), setCacheHeaders).Get("/json", h.getJSON(false))
		r.With(requireCompletion(h), setCacheHeaders).Get("/ancestry", h.getAncestry)
		r.With(requireCompletion(h), setCacheHeaders).Get("/files", h.getFiles(false))
		r.With(requireCompletion(h), setCacheHeaders).Get("/diff", h.getDiff)
	})

	r.Route("/v1/private_images/{image_id}", func(r chi.Router) {
		r.With(requireCompletion(h)).Get("/layer", h.getLayer(true))
		r.With(requireCompletion(h)).Get("/json", h.getJSON(true))
		r.With(requireCompletion(h)).Get("/files", h.getFiles(true))
	})

	return r
}

type handlers struct {
	deps *Deps
}

// cacheTTL is the "set_cache_headers" TTL: one year, fixed.
const cacheTTL = 365 * 24 * time.Hour
