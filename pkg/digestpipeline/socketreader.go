// Package digestpipeline implements a streaming reader that fans
// inbound bytes out to registered handlers before they reach the
// object store, plus the two digest functions (seeded SHA-256 and
// tarsum) that consume the tee'd copy.
package digestpipeline

import "io"

// Handler receives each chunk read from the wrapped reader, in order,
// before the chunk is returned to the caller. Handlers must not retain
// the slice past the call: it is the caller's read buffer, which the
// caller may reuse on its next Read.
type Handler func(chunk []byte)

// SocketReader wraps an inbound byte stream and tees every chunk to N
// registered handlers. It applies no backpressure of its own beyond
// what the handlers themselves impose by running synchronously in the
// Read call: a slow handler slows the whole pipeline.
type SocketReader struct {
	r        io.Reader
	handlers []Handler
}

func NewSocketReader(r io.Reader) *SocketReader {
	return &SocketReader{r: r}
}

func (s *SocketReader) AddHandler(h Handler) {
	s.handlers = append(s.handlers, h)
}

func (s *SocketReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if n > 0 {
		for _, h := range s.handlers {
			h(p[:n])
		}
	}
	return n, err
}
