package supervisor

import (
	"bytes"
	"strings"
	"sync"

	"wayfarer-hq/keeper/pkg/telemetry/logging"
)

// maxLine caps a buffered partial line.
const maxLine = 64 * 1024

// lineWriter forwards child output to the logger one line at a time.
type lineWriter struct {
	logger *logging.Logger
	stream string

	mu  sync.Mutex
	buf []byte
}

func newLineWriter(logger *logging.Logger, stream string) *lineWriter {
	return &lineWriter{logger: logger, stream: stream}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) > maxLine {
		w.emit(w.buf)
		w.buf = nil
	}
	return len(p), nil
}

// Flush emits a trailing line without a newline.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = nil
	}
}

func (w *lineWriter) emit(line []byte) {
	text := strings.TrimRight(string(line), "\r")
	if text == "" {
		return
	}
	w.logger.Info(text, "stream", w.stream)
}
