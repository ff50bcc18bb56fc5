// Package imagestore is the thin façade over objectstore.Store: typed
// accessors for the seven per-image keys, responsible only for path
// derivation and serialization. Cross-key invariants belong to
// pkg/upload.
package imagestore

import "fmt"

// Path derivation is a pure function of image_id.
func jsonPath(imageID string) string      { return fmt.Sprintf("images/%s/json", imageID) }
func layerPath(imageID string) string     { return fmt.Sprintf("images/%s/layer", imageID) }
func checksumPath(imageID string) string  { return fmt.Sprintf("images/%s/checksum", imageID) }
func ancestryPath(imageID string) string  { return fmt.Sprintf("images/%s/ancestry", imageID) }
func filesPath(imageID string) string     { return fmt.Sprintf("images/%s/files", imageID) }
func diffPath(imageID string) string      { return fmt.Sprintf("images/%s/diff", imageID) }
func markPath(imageID string) string      { return fmt.Sprintf("images/%s/mark", imageID) }
func imagesListPath(namespace, repo string) string {
	return fmt.Sprintf("repositories/%s/%s/images", namespace, repo)
}
