package digestpipeline

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/opencontainers/go-digest"
)

// tarsumEntry holds one member's normalized header fields plus content,
// buffered so entries can be reordered into a deterministic sequence
// before hashing. Tarsum digests must not depend on member order,
// since two layers with identical content written in different orders
// are the same layer.
type tarsumEntry struct {
	name    string
	typ     byte
	mode    int64
	uid     int
	gid     int
	size    int64
	content []byte
}

// ComputeTarsum walks r as a tar stream (the caller is responsible for
// any outer decompression: this treats r as plain tar, matching how
// the registry feeds it the rewound tee buffer) and returns a SHA-256
// digest over normalized member headers and content; TarsumString
// renders it as "tarsum+sha256:<hex>". Every member's content is held
// in memory until the stream ends, so members can be sorted by name
// before hashing. The tarsum scheme itself is the registry's own
// content-addressing format; there is no published, importable Go
// implementation of it outside docker/docker's internal tree (see
// DESIGN.md), so this is a from-scratch implementation grounded on the
// same normalize-then-hash technique used for CAS node hashing
// elsewhere in the corpus (pkg/tarcas).
func ComputeTarsum(r io.Reader) (digest.Digest, error) {
	tr := tar.NewReader(r)
	var entries []tarsumEntry
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			return "", err
		}
		entries = append(entries, tarsumEntry{
			name:    normalizeName(hdr.Name),
			typ:     byte(hdr.Typeflag),
			mode:    hdr.Mode,
			uid:     hdr.Uid,
			gid:     hdr.Gid,
			size:    hdr.Size,
			content: content,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	h := sha256.New()
	var lenBuf [8]byte
	for _, e := range entries {
		fmt.Fprintf(h, "%s\x00%d\x00%d\x00%d\x00%d\x00", e.name, e.typ, e.mode, e.uid, e.gid)
		binary.BigEndian.PutUint64(lenBuf[:], uint64(e.size))
		h.Write(lenBuf[:])
		h.Write(e.content)
	}
	return digest.NewDigestFromBytes(digest.SHA256, h.Sum(nil)), nil
}

// TarsumString formats a tarsum digest with its scheme prefix, since
// "tarsum+sha256:<hex>" is not a digest.Algorithm the go-digest package
// knows about.
func TarsumString(d digest.Digest) string {
	return "tarsum+" + d.String()
}

func normalizeName(name string) string {
	if name == "." {
		return "/"
	}
	if len(name) >= 2 && name[:2] == "./" {
		return "/" + name[2:]
	}
	return name
}
