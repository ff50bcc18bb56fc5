package imagestore

import (
	"context"
	"encoding/json"
	"io"

	"github.com/distribution/layersvc/pkg/model"
	"github.com/distribution/layersvc/pkg/objectstore"
)

// Store is the typed façade over an objectstore.Store for one image's
// seven artifacts (json, layer, checksum, ancestry, files, diff, mark).
type Store struct {
	blobs objectstore.Store
}

func New(blobs objectstore.Store) *Store {
	return &Store{blobs: blobs}
}

func (s *Store) Exists(ctx context.Context, imageID string) (bool, error) {
	return s.blobs.Exists(ctx, jsonPath(imageID))
}

func (s *Store) GetManifest(ctx context.Context, imageID string) (model.ImageManifest, error) {
	data, err := s.blobs.GetContent(ctx, jsonPath(imageID))
	if err == objectstore.ErrNotFound {
		return model.ImageManifest{}, model.NewNotFoundError("image json")
	}
	if err != nil {
		return model.ImageManifest{}, err
	}
	return model.ParseImageManifest(data)
}

func (s *Store) PutManifestRaw(ctx context.Context, imageID string, raw []byte) error {
	return s.blobs.PutContent(ctx, jsonPath(imageID), raw)
}

func (s *Store) HasMark(ctx context.Context, imageID string) (bool, error) {
	return s.blobs.Exists(ctx, markPath(imageID))
}

func (s *Store) PutMark(ctx context.Context, imageID string) error {
	return s.blobs.PutContent(ctx, markPath(imageID), []byte("true"))
}

func (s *Store) RemoveMark(ctx context.Context, imageID string) error {
	return s.blobs.Remove(ctx, markPath(imageID))
}

func (s *Store) HasLayer(ctx context.Context, imageID string) (bool, error) {
	return s.blobs.Exists(ctx, layerPath(imageID))
}

func (s *Store) LayerSize(ctx context.Context, imageID string) (int64, error) {
	return s.blobs.GetSize(ctx, layerPath(imageID))
}

func (s *Store) StreamLayer(ctx context.Context, imageID string) (io.ReadCloser, error) {
	rc, err := s.blobs.StreamRead(ctx, layerPath(imageID))
	if err == objectstore.ErrNotFound {
		return nil, model.NewNotFoundError("image layer")
	}
	return rc, err
}

func (s *Store) WriteLayerContent(ctx context.Context, imageID string, r io.Reader) error {
	return s.blobs.StreamWrite(ctx, layerPath(imageID), r)
}

func (s *Store) GetChecksum(ctx context.Context, imageID string) (string, bool, error) {
	data, err := s.blobs.GetContent(ctx, checksumPath(imageID))
	if err == objectstore.ErrNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

func (s *Store) PutChecksum(ctx context.Context, imageID, checksum string) error {
	return s.blobs.PutContent(ctx, checksumPath(imageID), []byte(checksum))
}

func (s *Store) RemoveChecksum(ctx context.Context, imageID string) error {
	return s.blobs.Remove(ctx, checksumPath(imageID))
}

func (s *Store) GetAncestry(ctx context.Context, imageID string) ([]string, error) {
	data, err := s.blobs.GetContent(ctx, ancestryPath(imageID))
	if err == objectstore.ErrNotFound {
		return nil, model.NewNotFoundError("image ancestry")
	}
	if err != nil {
		return nil, err
	}
	var ancestry []string
	if err := json.Unmarshal(data, &ancestry); err != nil {
		return nil, err
	}
	return ancestry, nil
}

func (s *Store) PutAncestry(ctx context.Context, imageID string, ancestry []string) error {
	data, err := json.Marshal(ancestry)
	if err != nil {
		return err
	}
	return s.blobs.PutContent(ctx, ancestryPath(imageID), data)
}

func (s *Store) GetFiles(ctx context.Context, imageID string) (model.FileInventory, bool, error) {
	data, err := s.blobs.GetContent(ctx, filesPath(imageID))
	if err == objectstore.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var files model.FileInventory
	if err := json.Unmarshal(data, &files); err != nil {
		return nil, false, err
	}
	return files, true, nil
}

func (s *Store) PutFiles(ctx context.Context, imageID string, files model.FileInventory) error {
	data, err := json.Marshal(files)
	if err != nil {
		return err
	}
	return s.blobs.PutContent(ctx, filesPath(imageID), data)
}

func (s *Store) GetDiff(ctx context.Context, imageID string) (model.DiffResult, bool, error) {
	data, err := s.blobs.GetContent(ctx, diffPath(imageID))
	if err == objectstore.ErrNotFound {
		return model.DiffResult{}, false, nil
	}
	if err != nil {
		return model.DiffResult{}, false, err
	}
	var diff model.DiffResult
	if err := json.Unmarshal(data, &diff); err != nil {
		return model.DiffResult{}, false, err
	}
	return diff, true, nil
}

func (s *Store) PutDiff(ctx context.Context, imageID string, diff model.DiffResult) error {
	data, err := json.Marshal(diff)
	if err != nil {
		return err
	}
	return s.blobs.PutContent(ctx, diffPath(imageID), data)
}

func (s *Store) ImagesList(ctx context.Context, namespace, repo string) ([]string, error) {
	data, err := s.blobs.GetContent(ctx, imagesListPath(namespace, repo))
	if err == objectstore.ErrNotFound {
		return nil, model.NewNotFoundError("repository image list")
	}
	if err != nil {
		return nil, err
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Store) IsPrivate(ctx context.Context, namespace, repo string) (bool, error) {
	return s.blobs.IsPrivate(ctx, namespace, repo)
}
