package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// requireCompletion mirrors the original's require_completion decorator:
// a GET against an image still carrying its mark is rejected, since the
// upload hasn't been checksum-verified yet.
func requireCompletion(h *handlers) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			imageID := chi.URLParam(r, "image_id")
			marked, err := h.deps.Images.HasMark(r.Context(), imageID)
			if err != nil {
				writeError(w, err)
				return
			}
			if marked {
				writeJSONError(w, http.StatusBadRequest, "image is being uploaded, retry later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// setCacheHeaders mirrors set_cache_headers: a fixed one-year TTL, a
// fixed Last-Modified in the past (the underlying content never
// changes once the mark is gone), and a 304 short-circuit on
// If-Modified-Since. The wrapped handler must not persist session
// changes, since a cacheable response shouldn't carry a fresh
// Set-Cookie.
func setCacheHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		expires := time.Now().Add(cacheTTL).UTC().Format(http.TimeFormat)
		w.Header().Set("Cache-Control", "public, max-age=31536000")
		w.Header().Set("Expires", expires)
		w.Header().Set("Last-Modified", "Thu, 01 Jan 1970 00:00:00 GMT")
		if r.Header.Get("If-Modified-Since") != "" {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		next.ServeHTTP(w, r)
	})
}
