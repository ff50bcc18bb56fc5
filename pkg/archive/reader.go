// Package archive implements transparent decompression plus a tar
// member walk, materializing union-filesystem whiteout semantics into
// a flat FileInfo list.
package archive

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"errors"
	"io"

	"github.com/ulikunitz/xz/lzma"

	"github.com/distribution/layersvc/pkg/model"
)

var fileTypeByTarType = map[byte]model.FileType{
	tar.TypeReg:     model.FileTypeRegular,
	tar.TypeRegA:    model.FileTypeRegular,
	tar.TypeDir:     model.FileTypeDirectory,
	tar.TypeLink:    model.FileTypeHardlink,
	tar.TypeSymlink: model.FileTypeSymlink,
	tar.TypeChar:    model.FileTypeCharDev,
	tar.TypeBlock:   model.FileTypeBlockDev,
}

// gzipMagic is the two-byte gzip header; checking it avoids the cost of
// the LZMA probe for the overwhelmingly common case of gzip-compressed
// layers.
var gzipMagic = []byte{0x1f, 0x8b}

// lzmaProbeSize bounds how much of the stream the LZMA probe reads
// before deciding the source isn't LZMA, rather than decompressing the
// entire stream just to validate it and rewinding: reading enough to
// validate the LZMA header and a few hundred bytes of output suffices.
const lzmaProbeSize = 4096

// ReadFileInventory consumes r in a single forward pass, callers must
// rewind the source before reuse, and returns the flattened,
// whiteout-normalized file list.
func ReadFileInventory(r io.Reader) (model.FileInventory, error) {
	br := bufio.NewReader(r)
	peek, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, err
	}

	var tarSource io.Reader = br
	switch {
	case len(peek) == 2 && peek[0] == gzipMagic[0] && peek[1] == gzipMagic[1]:
		gr, err := gzip.NewReader(br)
		if err != nil {
			return nil, &model.DecompressError{Reason: err.Error()}
		}
		defer gr.Close()
		tarSource = gr
	default:
		if lzmaSource, ok := probeLZMA(br); ok {
			tarSource = lzmaSource
		}
	}

	return readTar(tarSource)
}

// probeLZMA decides whether br holds an LZMA stream without consuming
// any of it: it peeks up to lzmaProbeSize bytes (bufio.Reader.Peek does
// not advance br), decodes up to 512 bytes of output from that peeked
// copy, and on success returns a fresh LZMA reader over br for the real
// pass. An error from the constructor or the probing read means "not
// LZMA", and the caller falls through to plain tar.
func probeLZMA(br *bufio.Reader) (io.Reader, bool) {
	peek, err := br.Peek(lzmaProbeSize)
	if err != nil && err != io.EOF {
		return nil, false
	}
	lr, err := lzma.NewReader(newPeekReader(peek))
	if err != nil {
		return nil, false
	}
	buf := make([]byte, 512)
	if _, err := lr.Read(buf); err != nil && err != io.EOF {
		return nil, false
	}
	// The prefix decoded cleanly: use a fresh LZMA reader over the real
	// (unconsumed) stream for the actual pass.
	lr2, err := lzma.NewReader(br)
	if err != nil {
		return nil, false
	}
	return lr2, true
}

func newPeekReader(b []byte) io.Reader {
	return &sliceReader{b: b}
}

type sliceReader struct {
	b []byte
}

func (s *sliceReader) Read(p []byte) (int, error) {
	if len(s.b) == 0 {
		return 0, io.EOF
	}
	n := copy(p, s.b)
	s.b = s.b[n:]
	return n, nil
}

func readTar(r io.Reader) (model.FileInventory, error) {
	tr := tar.NewReader(r)
	var out model.FileInventory
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &model.FormatError{Reason: err.Error()}
		}
		info, ok, err := serializeMember(hdr)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, info)
		}
	}
	return out, nil
}

func serializeMember(hdr *tar.Header) (model.FileInfo, bool, error) {
	name := normalizeWhiteout(hdr.Name)
	if name.path == "" {
		// The bare ".wh." sentinel: suppressed entirely.
		return model.FileInfo{}, false, nil
	}

	ftype, known := fileTypeByTarType[hdr.Typeflag]
	if !known {
		return model.FileInfo{}, false, &model.FormatError{Reason: "unknown tar entry type"}
	}

	return model.FileInfo{
		Path:    name.path,
		Type:    ftype,
		Deleted: name.deleted,
		Size:    hdr.Size,
		Mtime:   hdr.ModTime.Unix(),
		Mode:    hdr.Mode,
		UID:     hdr.Uid,
		GID:     hdr.Gid,
	}, true, nil
}

type normalizedName struct {
	path    string
	deleted bool
}

// normalizeWhiteout applies the union-filesystem name normalization:
// "." -> "/", "./x" -> "/x", "/.wh.x" -> "/x" with deleted=true, and
// the bare "/.wh." sentinel is suppressed (returns the zero value with
// an empty path, which the caller treats as "no entry").
func normalizeWhiteout(raw string) normalizedName {
	name := raw
	if name == "." {
		name = "/"
	} else if len(name) >= 2 && name[:2] == "./" {
		name = "/" + name[2:]
	}

	deleted := false
	if len(name) >= 5 && name[:5] == "/.wh." {
		name = "/" + name[5:]
		deleted = true
	}
	if deleted && name == "/" {
		return normalizedName{}
	}
	return normalizedName{path: name, deleted: deleted}
}

// ErrUnsupportedFormat names a layer that cannot be parsed as a tar
// stream at all. ReadFileInventory does not return it: such input is
// reported as a *model.FormatError.
var ErrUnsupportedFormat = errors.New("unsupported layer archive format")
