package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/distribution/layersvc/pkg/archive"
	"github.com/distribution/layersvc/pkg/model"
	"github.com/distribution/layersvc/pkg/session"
	"github.com/distribution/layersvc/pkg/upload"
)

func (h *handlers) putJSON(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "image_id")
	ctx := r.Context()

	sess, err := h.deps.Sessions.Load(r, w)
	if err != nil {
		writeError(w, err)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	gate := repositoryGate(sess)
	if err := h.deps.Uploads.PutJSON(ctx, imageID, body, r.Header.Get("X-Docker-Checksum"), gate); err != nil {
		writeError(w, err)
		return
	}
	if err := sess.Save(r); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (h *handlers) putLayer(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "image_id")
	ctx := r.Context()

	sess, err := h.deps.Sessions.Load(r, w)
	if err != nil {
		writeError(w, err)
		return
	}

	// A chunked transfer-encoded request is read straight from the
	// transport body without any intermediate buffering: net/http
	// already streams r.Body this way regardless of Transfer-Encoding,
	// so no branch is needed here.
	result, err := h.deps.Uploads.PutLayer(ctx, imageID, r.Body)
	if err != nil {
		// A checksum mismatch still reports the computed candidates so
		// the client can retry PUT checksum, but as an error response.
		if len(result.Candidates) > 0 {
			sess.SetChecksumCandidates(result.Candidates)
			sess.Save(r)
		}
		writeError(w, err)
		return
	}

	sess.SetChecksumCandidates(result.Candidates)
	if err := sess.Save(r); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (h *handlers) putChecksum(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "image_id")
	ctx := r.Context()

	sess, err := h.deps.Sessions.Load(r, w)
	if err != nil {
		writeError(w, err)
		return
	}

	candidates, have := sess.ChecksumCandidates()
	checksum := r.Header.Get("X-Docker-Checksum")
	if err := h.deps.Uploads.PutChecksum(ctx, imageID, checksum, candidates, have); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func repositoryGate(sess *session.Session) upload.RepositoryGate {
	namespace, name, ok := sess.Repository()
	return upload.RepositoryGate{Namespace: namespace, Name: name, Present: ok}
}

func (h *handlers) getLayer(private bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		imageID := chi.URLParam(r, "image_id")
		ctx := r.Context()

		sess, err := h.deps.Sessions.Load(r, w)
		if err != nil {
			writeError(w, err)
			return
		}
		if !h.authorizeRead(w, r, sess, private) {
			return
		}

		if h.deps.AccelPrefix != "" {
			if hint, ok := h.deps.Blobs.(interface {
				LocalPath(path string) (string, bool)
			}); ok {
				if path, ok := hint.LocalPath(layerPath(imageID)); ok {
					w.Header().Set("X-Accel-Redirect", h.deps.AccelPrefix+"/"+path)
					w.WriteHeader(http.StatusOK)
					return
				}
			}
		}

		rc, err := h.deps.Images.StreamLayer(ctx, imageID)
		if err != nil {
			writeError(w, err)
			return
		}
		defer rc.Close()
		io.Copy(w, rc)
	}
}

func (h *handlers) getJSON(private bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		imageID := chi.URLParam(r, "image_id")
		ctx := r.Context()

		sess, err := h.deps.Sessions.Load(r, w)
		if err != nil {
			writeError(w, err)
			return
		}
		if !h.authorizeRead(w, r, sess, private) {
			return
		}

		manifest, err := h.deps.Images.GetManifest(ctx, imageID)
		if err != nil {
			writeError(w, err)
			return
		}
		if size, err := h.deps.Images.LayerSize(ctx, imageID); err == nil {
			w.Header().Set("X-Docker-Size", strconv.FormatInt(size, 10))
		}
		if checksum, ok, err := h.deps.Images.GetChecksum(ctx, imageID); err == nil && ok {
			w.Header().Set("X-Docker-Checksum", checksum)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(manifest.Raw)
	}
}

func (h *handlers) getAncestry(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "image_id")
	ancestry, err := h.deps.Images.GetAncestry(r.Context(), imageID)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ancestry)
}

func (h *handlers) getFiles(private bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		imageID := chi.URLParam(r, "image_id")
		ctx := r.Context()

		sess, err := h.deps.Sessions.Load(r, w)
		if err != nil {
			writeError(w, err)
			return
		}
		if !h.authorizeRead(w, r, sess, private) {
			return
		}

		files, ok, err := h.deps.Images.GetFiles(ctx, imageID)
		if err != nil {
			writeError(w, err)
			return
		}
		if !ok {
			rc, err := h.deps.Images.StreamLayer(ctx, imageID)
			if err != nil {
				writeError(w, err)
				return
			}
			defer rc.Close()
			files, err = archive.ReadFileInventory(rc)
			if err != nil {
				if err == archive.ErrUnsupportedFormat {
					writeJSONError(w, http.StatusBadRequest, "unsupported layer archive format")
					return
				}
				if _, isDecompress := err.(*model.DecompressError); isDecompress {
					writeJSONError(w, http.StatusBadRequest, err.Error())
					return
				}
				if _, isFormat := err.(*model.FormatError); isFormat {
					writeJSONError(w, http.StatusBadRequest, err.Error())
					return
				}
				writeError(w, err)
				return
			}
			_ = h.deps.Images.PutFiles(ctx, imageID, files)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(files)
	}
}

func (h *handlers) getDiff(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "image_id")
	ctx := r.Context()

	diff, ok, err := h.deps.Images.GetDiff(ctx, imageID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		// Cache miss: enqueue the diff job and return an empty body,
		// the client is expected to poll again later.
		if err := h.deps.DiffQueue.Push(ctx, imageID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(diff)
}

// authorizeRead applies the public/private access rule: the private
// surface requires a repository in session that is actually marked
// private; the public surface rejects access to an image whose
// repository (if any) is private.
func (h *handlers) authorizeRead(w http.ResponseWriter, r *http.Request, sess *session.Session, private bool) bool {
	namespace, name, ok := sess.Repository()
	if private {
		if !ok {
			writeJSONError(w, http.StatusNotFound, "image not found")
			return false
		}
		isPrivate, err := h.deps.Images.IsPrivate(r.Context(), namespace, name)
		if err != nil {
			writeError(w, err)
			return false
		}
		if !isPrivate {
			writeJSONError(w, http.StatusNotFound, "image not found")
			return false
		}
		return true
	}

	if ok {
		isPrivate, err := h.deps.Images.IsPrivate(r.Context(), namespace, name)
		if err != nil {
			writeError(w, err)
			return false
		}
		if isPrivate {
			writeJSONError(w, http.StatusNotFound, "image not found")
			return false
		}
	}
	return true
}

func layerPath(imageID string) string {
	return "images/" + imageID + "/layer"
}
