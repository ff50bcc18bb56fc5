package upload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"testing"

	"github.com/distribution/layersvc/pkg/imagestore"
	"github.com/distribution/layersvc/pkg/model"
	"github.com/distribution/layersvc/pkg/objectstore"
)

func newTestManager(t *testing.T) (*Manager, *imagestore.Store) {
	t.Helper()
	images, _ := newTestStoreWithBlobs(t)
	return New(images), images
}

func newTestStoreWithBlobs(t *testing.T) (*imagestore.Store, objectstore.Store) {
	t.Helper()
	blobs := objectstore.NewFilesystemStore(t.TempDir())
	return imagestore.New(blobs), blobs
}

func manifestBytes(t *testing.T, id, parent string) []byte {
	t.Helper()
	m := map[string]string{"id": id}
	if parent != "" {
		m["parent"] = parent
	}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	return data
}

// TestHappyPathChecksumInPutJSON: the client supplies X-Docker-Checksum
// on PUT json, so PUT layer alone clears the mark.
func TestHappyPathChecksumInPutJSON(t *testing.T) {
	ctx := context.Background()
	mgr, images := newTestManager(t)

	raw := manifestBytes(t, "a", "")
	layer := []byte("layer-bytes")
	sum := sha256.Sum256(append(append([]byte{}, raw...), layer...))
	checksum := "sha256:" + hex.EncodeToString(sum[:])

	if err := mgr.PutJSON(ctx, "a", raw, checksum, RepositoryGate{}); err != nil {
		t.Fatalf("PutJSON: %v", err)
	}

	result, err := mgr.PutLayer(ctx, "a", bytes.NewReader(layer))
	if err != nil {
		t.Fatalf("PutLayer: %v", err)
	}
	if !result.Finalized {
		t.Fatalf("expected layer upload to finalize, got %+v", result)
	}

	marked, err := images.HasMark(ctx, "a")
	if err != nil {
		t.Fatalf("HasMark: %v", err)
	}
	if marked {
		t.Fatalf("mark should be gone after a matching checksum")
	}

	rc, err := images.StreamLayer(ctx, "a")
	if err != nil {
		t.Fatalf("StreamLayer: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read layer: %v", err)
	}
	if !bytes.Equal(got, layer) {
		t.Fatalf("layer bytes round-trip mismatch: got %q want %q", got, layer)
	}
}

// TestDeferredChecksum: PUT json with no checksum header, PUT layer
// leaves the mark in place and reports candidates, then a matching
// PUT checksum clears the mark.
func TestDeferredChecksum(t *testing.T) {
	ctx := context.Background()
	mgr, images := newTestManager(t)

	raw := manifestBytes(t, "a", "")
	if err := mgr.PutJSON(ctx, "a", raw, "", RepositoryGate{}); err != nil {
		t.Fatalf("PutJSON: %v", err)
	}

	layer := []byte("some layer content")
	result, err := mgr.PutLayer(ctx, "a", bytes.NewReader(layer))
	if err != nil {
		t.Fatalf("PutLayer: %v", err)
	}
	if result.Finalized {
		t.Fatalf("expected layer upload to stay pending without a stored checksum")
	}
	if len(result.Candidates) == 0 {
		t.Fatalf("expected computed checksum candidates")
	}

	marked, err := images.HasMark(ctx, "a")
	if err != nil {
		t.Fatalf("HasMark: %v", err)
	}
	if !marked {
		t.Fatalf("mark should still be present before PUT checksum")
	}

	if err := mgr.PutChecksum(ctx, "a", result.Candidates[0], result.Candidates, true); err != nil {
		t.Fatalf("PutChecksum: %v", err)
	}

	marked, err = images.HasMark(ctx, "a")
	if err != nil {
		t.Fatalf("HasMark: %v", err)
	}
	if marked {
		t.Fatalf("mark should be gone after a matching PUT checksum")
	}
}

// TestChecksumMismatchThenRetry: a wrong PUT checksum fails and leaves
// the mark, a subsequent correct one succeeds.
func TestChecksumMismatchThenRetry(t *testing.T) {
	ctx := context.Background()
	mgr, images := newTestManager(t)

	raw := manifestBytes(t, "a", "")
	if err := mgr.PutJSON(ctx, "a", raw, "", RepositoryGate{}); err != nil {
		t.Fatalf("PutJSON: %v", err)
	}
	result, err := mgr.PutLayer(ctx, "a", bytes.NewReader([]byte("bytes")))
	if err != nil {
		t.Fatalf("PutLayer: %v", err)
	}

	if err := mgr.PutChecksum(ctx, "a", "sha256:deadbeef", result.Candidates, true); err == nil {
		t.Fatalf("expected mismatch error")
	}
	marked, err := images.HasMark(ctx, "a")
	if err != nil {
		t.Fatalf("HasMark: %v", err)
	}
	if !marked {
		t.Fatalf("mark must survive a checksum mismatch")
	}

	if err := mgr.PutChecksum(ctx, "a", result.Candidates[0], result.Candidates, true); err != nil {
		t.Fatalf("PutChecksum retry: %v", err)
	}
	marked, err = images.HasMark(ctx, "a")
	if err != nil {
		t.Fatalf("HasMark: %v", err)
	}
	if marked {
		t.Fatalf("mark should be gone after the retry succeeds")
	}
}

func TestPutJSONConflictOnFinalizedImage(t *testing.T) {
	ctx := context.Background()
	mgr, images := newTestManager(t)

	raw := manifestBytes(t, "a", "")
	sum := sha256.Sum256(append(append([]byte{}, raw...), []byte("x")...))
	checksum := "sha256:" + hex.EncodeToString(sum[:])
	if err := mgr.PutJSON(ctx, "a", raw, checksum, RepositoryGate{}); err != nil {
		t.Fatalf("PutJSON: %v", err)
	}
	if _, err := mgr.PutLayer(ctx, "a", bytes.NewReader([]byte("x"))); err != nil {
		t.Fatalf("PutLayer: %v", err)
	}

	err := mgr.PutJSON(ctx, "a", raw, "", RepositoryGate{})
	if _, ok := err.(*model.ConflictError); !ok {
		t.Fatalf("expected ConflictError on a finalized image, got %v", err)
	}

	// The rejected retry's empty checksum must not have cleared the
	// checksum stored by the original, successful PutJSON: the
	// checksum action is conditioned on the request not being rejected.
	stored, ok, err := images.GetChecksum(ctx, "a")
	if err != nil {
		t.Fatalf("GetChecksum: %v", err)
	}
	if !ok || stored != checksum {
		t.Fatalf("checksum should survive a rejected retry: ok=%v stored=%q want=%q", ok, stored, checksum)
	}
}

func TestPutJSONMissingParent(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t)

	raw := manifestBytes(t, "child", "nonexistent-parent")
	err := mgr.PutJSON(ctx, "child", raw, "", RepositoryGate{})
	if _, ok := err.(*model.NotFoundError); !ok {
		t.Fatalf("expected NotFoundError for a missing parent, got %v", err)
	}
}

func TestRepositoryGateRejectsUnlistedImage(t *testing.T) {
	ctx := context.Background()
	images, blobs := newTestStoreWithBlobs(t)
	mgr := New(images)

	data, err := json.Marshal([]string{"other-image"})
	if err != nil {
		t.Fatalf("marshal images list: %v", err)
	}
	// Populating a repository's images list is repository management,
	// out of this package's scope, so seed it directly at the path
	// convention imagestore.ImagesList reads.
	if err := blobs.PutContent(ctx, "repositories/ns/repo/images", data); err != nil {
		t.Fatalf("seed images list: %v", err)
	}

	raw := manifestBytes(t, "a", "")
	err = mgr.PutJSON(ctx, "a", raw, "", RepositoryGate{Namespace: "ns", Name: "repo", Present: true})
	if _, ok := err.(*model.BadRequestError); !ok {
		t.Fatalf("expected BadRequestError when image isn't in the repository's list, got %v", err)
	}
}
