package objectstore

import (
	"io"
	"os"
)

// TempSink is the temp-file-backed buffer produced by
// TempStoreHandler: the inventory extractor and tarsum both need to
// re-read the full uploaded layer after the stream closes, so the tee
// writes to a real file rather than an in-memory buffer.
type TempSink struct {
	f *os.File
}

// Handler returns a digestpipeline.Handler-compatible func writing each
// chunk to the backing temp file.
func (t *TempSink) Handler() func(chunk []byte) {
	return func(chunk []byte) {
		// Best-effort: a failed temp write must not fail the upload,
		// it only degrades the optional inventory/tarsum computation.
		_, _ = t.f.Write(chunk)
	}
}

// Rewind seeks back to the start so a second consumer (inventory
// extraction, then tarsum) can read the same bytes again.
func (t *TempSink) Rewind() error {
	_, err := t.f.Seek(0, io.SeekStart)
	return err
}

func (t *TempSink) Reader() io.Reader { return t.f }

func (t *TempSink) Close() error {
	name := t.f.Name()
	err := t.f.Close()
	os.Remove(name)
	return err
}

// TempStoreHandler opens a temp file and returns the sink; its Handler
// method supplies the fanout-compatible func fed by the upload tee.
func TempStoreHandler() (*TempSink, error) {
	f, err := os.CreateTemp("", "layer-upload-*")
	if err != nil {
		return nil, err
	}
	return &TempSink{f: f}, nil
}
