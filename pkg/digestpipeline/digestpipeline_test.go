package digestpipeline

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"testing"
)

func TestSocketReaderFansOutChunks(t *testing.T) {
	src := bytes.NewReader([]byte("abcdefgh"))
	sr := NewSocketReader(src)

	var tee bytes.Buffer
	sr.AddHandler(func(chunk []byte) { tee.Write(chunk) })

	var count int
	sr.AddHandler(func(chunk []byte) { count += len(chunk) })

	buf := make([]byte, 3)
	var total []byte
	for {
		n, err := sr.Read(buf)
		total = append(total, buf[:n]...)
		if err != nil {
			break
		}
	}

	if tee.String() != "abcdefgh" {
		t.Fatalf("tee mismatch: got %q", tee.String())
	}
	if count != 8 {
		t.Fatalf("handler saw %d bytes, want 8", count)
	}
}

func TestSeededDigestMatchesManualSHA256(t *testing.T) {
	seed := []byte(`{"id":"abc"}`)
	layer := []byte("layer-bytes-here")

	d := NewSeededDigest(seed)
	h := d.Handler()
	h(layer)

	want := sha256.Sum256(append(append([]byte{}, seed...), layer...))
	got := d.Final()
	if got.Encoded() != hexString(want[:]) {
		t.Fatalf("digest mismatch: got %s", got.Encoded())
	}
}

func TestComputeTarsumOrderIndependent(t *testing.T) {
	tarsum1 := buildTarsum(t, []string{"a", "b"})
	tarsum2 := buildTarsum(t, []string{"b", "a"})
	if tarsum1.String() != tarsum2.String() {
		t.Fatalf("tarsum should not depend on member order: %s vs %s", tarsum1, tarsum2)
	}
}

func buildTarsum(t *testing.T, names []string) interface{ String() string } {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, name := range names {
		content := []byte("content-of-" + name)
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("WriteHeader: %v", err)
		}
		if _, err := tw.Write(content); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	d, err := ComputeTarsum(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ComputeTarsum: %v", err)
	}
	return d
}

func hexString(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = digits[v>>4]
		out[i*2+1] = digits[v&0xf]
	}
	return string(out)
}
