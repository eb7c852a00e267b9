package redaction

import (
	"io"
	"sync"
)

// Writer scrubs everything written through it. Writes are serialized.
type Writer struct {
	mu       sync.Mutex
	out      io.Writer
	redactor *Redactor
}

// NewWriter wraps w. A nil redactor passes data through unchanged.
func NewWriter(w io.Writer, r *Redactor) *Writer {
	return &Writer{out: w, redactor: r}
}

// Write reports len(p) on success even when scrubbing changed the length.
func (w *Writer) Write(p []byte) (int, error) {
	data := p
	if w.redactor != nil {
		data = []byte(w.redactor.ScrubString(string(p)))
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.out.Write(data); err != nil {
		return 0, err
	}
	return len(p), nil
}
