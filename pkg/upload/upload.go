// Package upload implements the three-request upload state machine
// (PUT json, PUT layer, PUT checksum), the mark as its "incomplete"
// sentinel, and the repository gate that restricts which image ids a
// session may touch. Grounded on
// original_source/registry/images.py's put_image_json/put_image_layer/
// put_image_checksum and generate_ancestry/check_images_list.
package upload

import (
	"context"
	"io"
	"strings"

	"github.com/distribution/layersvc/pkg/archive"
	"github.com/distribution/layersvc/pkg/digestpipeline"
	"github.com/distribution/layersvc/pkg/imagestore"
	"github.com/distribution/layersvc/pkg/model"
	"github.com/distribution/layersvc/pkg/objectstore"
)

// Manager drives the upload state machine over an imagestore.Store.
type Manager struct {
	images *imagestore.Store
}

func New(images *imagestore.Store) *Manager {
	return &Manager{images: images}
}

// RepositoryGate is the namespace/name pair carried in session. A
// session with no repository name bypasses the check entirely
// (standalone / privileged mode).
type RepositoryGate struct {
	Namespace string
	Name      string
	Present   bool
}

// checkImagesList mirrors check_images_list: when a repository is
// present in session, image_id must appear in that repository's image
// list; absent repository means auth is disabled and the check is
// bypassed.
func (m *Manager) checkImagesList(ctx context.Context, imageID string, gate RepositoryGate) (bool, error) {
	if !gate.Present {
		return true, nil
	}
	list, err := m.images.ImagesList(ctx, gate.Namespace, gate.Name)
	if err != nil {
		if _, ok := err.(*model.NotFoundError); ok {
			return false, nil
		}
		return false, err
	}
	for _, id := range list {
		if id == imageID {
			return true, nil
		}
	}
	return false, nil
}

// PutJSON handles request (1): create or retry an image's metadata.
// raw is the verbatim request body; clientChecksum is the
// X-Docker-Checksum header value, empty if absent.
func (m *Manager) PutJSON(ctx context.Context, imageID string, raw []byte, clientChecksum string, gate RepositoryGate) error {
	manifest, err := model.ParseImageManifest(raw)
	if err != nil {
		return err
	}
	if imageID != manifest.ID {
		return model.NewBadRequestError("JSON data contains invalid id")
	}

	ok, err := m.checkImagesList(ctx, imageID, gate)
	if err != nil {
		return err
	}
	if !ok {
		return model.NewBadRequestError("this image does not belong to the repository")
	}

	if manifest.Parent != "" {
		exists, err := m.images.Exists(ctx, manifest.Parent)
		if err != nil {
			return err
		}
		if !exists {
			return model.NewNotFoundError("parent image")
		}
	}

	exists, err := m.images.Exists(ctx, imageID)
	if err != nil {
		return err
	}
	if exists {
		marked, err := m.images.HasMark(ctx, imageID)
		if err != nil {
			return err
		}
		if !marked {
			return model.NewConflictError("image already exists")
		}
	}

	// Only reached once none of the rejections above fired: store or
	// clear the checksum, then (re)write the mark and manifest.
	if clientChecksum != "" {
		if err := storeChecksum(ctx, m.images, imageID, clientChecksum); err != nil {
			return err
		}
	} else {
		if err := m.images.RemoveChecksum(ctx, imageID); err != nil {
			return err
		}
	}

	// New image, or a retry on a previously failed push.
	if err := m.images.PutMark(ctx, imageID); err != nil {
		return err
	}
	if err := m.images.PutManifestRaw(ctx, imageID, raw); err != nil {
		return err
	}
	return m.generateAncestry(ctx, imageID, manifest.Parent)
}

// generateAncestry mirrors generate_ancestry exactly: no consistency
// check against any prior ancestry is performed on retry. It always
// recomputes from the parent's current ancestry rather than trusting
// or comparing against prior state (see DESIGN.md).
func (m *Manager) generateAncestry(ctx context.Context, imageID, parentID string) error {
	if parentID == "" {
		return m.images.PutAncestry(ctx, imageID, []string{imageID})
	}
	parentAncestry, err := m.images.GetAncestry(ctx, parentID)
	if err != nil {
		return err
	}
	ancestry := append([]string{imageID}, parentAncestry...)
	return m.images.PutAncestry(ctx, imageID, ancestry)
}

func storeChecksum(ctx context.Context, images *imagestore.Store, imageID, checksum string) error {
	if strings.Count(checksum, ":") != 1 {
		return model.NewBadRequestError("invalid checksum format")
	}
	return images.PutChecksum(ctx, imageID, checksum)
}

// LayerUploadResult reports what PutLayer learned: either the mark was
// already removed (stored checksum matched), or the caller must stash
// Candidates in session and await PUT checksum.
type LayerUploadResult struct {
	Candidates []string
	Finalized  bool
}

// PutLayer handles request (2): stream the layer body into the store,
// tee it for inventory extraction and tarsum, and attempt to finalize
// against any checksum recorded during PUT json.
func (m *Manager) PutLayer(ctx context.Context, imageID string, body io.Reader) (LayerUploadResult, error) {
	manifest, err := m.images.GetManifest(ctx, imageID)
	if err != nil {
		return LayerUploadResult{}, err
	}

	hasLayer, err := m.images.HasLayer(ctx, imageID)
	if err != nil {
		return LayerUploadResult{}, err
	}
	if hasLayer {
		marked, err := m.images.HasMark(ctx, imageID)
		if err != nil {
			return LayerUploadResult{}, err
		}
		if !marked {
			return LayerUploadResult{}, model.NewConflictError("image already exists")
		}
	}

	tmp, err := objectstore.TempStoreHandler()
	if err != nil {
		return LayerUploadResult{}, err
	}
	defer tmp.Close()

	seeded := digestpipeline.NewSeededDigest(manifest.Raw)
	sr := digestpipeline.NewSocketReader(body)
	sr.AddHandler(tmp.Handler())
	sr.AddHandler(seeded.Handler())

	if err := m.images.WriteLayerContent(ctx, imageID, sr); err != nil {
		return LayerUploadResult{}, err
	}

	candidates := []string{"sha256:" + seeded.Final().Encoded()}

	if err := tmp.Rewind(); err != nil {
		return LayerUploadResult{}, err
	}
	if inventory, invErr := archive.ReadFileInventory(tmp.Reader()); invErr == nil {
		// Best-effort cache of the file inventory; a failure here must
		// not fail the upload.
		_ = m.images.PutFiles(ctx, imageID, inventory)
	}

	if err := tmp.Rewind(); err != nil {
		return LayerUploadResult{}, err
	}
	if tarsum, tsErr := digestpipeline.ComputeTarsum(tmp.Reader()); tsErr == nil {
		candidates = append(candidates, digestpipeline.TarsumString(tarsum))
	}

	stored, hasStored, err := m.images.GetChecksum(ctx, imageID)
	if err != nil {
		return LayerUploadResult{}, err
	}
	if !hasStored {
		return LayerUploadResult{Candidates: candidates}, nil
	}

	if !contains(candidates, stored) {
		return LayerUploadResult{Candidates: candidates}, model.NewBadRequestError("checksum mismatch, ignoring the layer")
	}

	if err := m.images.RemoveMark(ctx, imageID); err != nil {
		return LayerUploadResult{}, err
	}
	return LayerUploadResult{Candidates: candidates, Finalized: true}, nil
}

// PutChecksum handles request (3): finalize with the client-supplied
// checksum, validated against the candidates stashed in session during
// PUT layer.
func (m *Manager) PutChecksum(ctx context.Context, imageID, checksum string, sessionCandidates []string, haveSessionCandidates bool) error {
	if checksum == "" {
		return model.NewBadRequestError("missing image's checksum")
	}
	if !haveSessionCandidates {
		return model.NewBadRequestError("checksum not found in session")
	}
	exists, err := m.images.Exists(ctx, imageID)
	if err != nil {
		return err
	}
	if !exists {
		return model.NewNotFoundError("image json")
	}
	marked, err := m.images.HasMark(ctx, imageID)
	if err != nil {
		return err
	}
	if !marked {
		return model.NewConflictError("cannot set this image checksum")
	}
	if err := storeChecksum(ctx, m.images, imageID, checksum); err != nil {
		return err
	}
	if !contains(sessionCandidates, checksum) {
		return model.NewBadRequestError("checksum mismatch")
	}
	return m.images.RemoveMark(ctx, imageID)
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
