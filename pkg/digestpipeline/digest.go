package digestpipeline

import (
	"crypto/sha256"
	"hash"

	"github.com/opencontainers/go-digest"
)

// SeededDigest computes a streaming SHA-256 seeded with the image JSON
// bytes; Write is then fed the layer bytes as they pass through a
// SocketReader handler. Final() reports "sha256:<hex>" via the
// ecosystem's canonical digest.Digest type rather than hand-built
// string concatenation.
type SeededDigest struct {
	h hash.Hash
}

func NewSeededDigest(seed []byte) *SeededDigest {
	h := sha256.New()
	h.Write(seed)
	return &SeededDigest{h: h}
}

// Handler returns a digestpipeline.Handler that feeds chunks into the
// running hash, suitable for SocketReader.AddHandler.
func (d *SeededDigest) Handler() Handler {
	return func(chunk []byte) {
		d.h.Write(chunk)
	}
}

func (d *SeededDigest) Final() digest.Digest {
	return digest.NewDigestFromBytes(digest.SHA256, d.h.Sum(nil))
}
