// Package diffengine implements the ancestry-walking diff algorithm
// that classifies every path in an image's top-layer inventory as
// deleted, changed, or created relative to its ancestors. Grounded on
// original_source/registry/images.py's _get_image_diff.
package diffengine

import (
	"context"

	"github.com/distribution/layersvc/pkg/imagestore"
	"github.com/distribution/layersvc/pkg/model"
)

// Compute walks imageID's ancestry (newest first, self included at
// index 0) and produces a three-way diff: every path in imageID's own
// inventory is classified as deleted, changed, or created relative to
// its nearest explaining ancestor. It requires imageID's own files
// inventory and every ancestor's files inventory to already exist; a
// missing one surfaces as a NotFoundError from the underlying store.
func Compute(ctx context.Context, images *imagestore.Store, imageID string) (model.DiffResult, error) {
	ancestry, err := images.GetAncestry(ctx, imageID)
	if err != nil {
		return model.DiffResult{}, err
	}

	topFiles, ok, err := images.GetFiles(ctx, imageID)
	if err != nil {
		return model.DiffResult{}, err
	}
	if !ok {
		return model.DiffResult{}, model.NewNotFoundError("image files")
	}

	top := topFiles.ByPath()
	result := model.NewDiffResult()

	for _, ancestorID := range ancestry[1:] {
		ancFiles, ok, err := images.GetFiles(ctx, ancestorID)
		if err != nil {
			return model.DiffResult{}, err
		}
		if !ok {
			return model.DiffResult{}, model.NewNotFoundError("ancestor image files")
		}
		anc := ancFiles.ByPath()

		for path, info := range top {
			switch {
			case info.Deleted:
				result.Deleted[path] = info
				delete(top, path)
			default:
				if ancInfo, present := anc[path]; present {
					if ancInfo.Deleted {
						result.Created[path] = info
					} else {
						result.Changed[path] = info
					}
					delete(top, path)
				}
				// else: leave in top, an older ancestor may still explain it
			}
		}
	}

	for path, info := range top {
		result.Created[path] = info
	}

	return result, nil
}
