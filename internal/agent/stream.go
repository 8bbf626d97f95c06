package agent

import (
	"bytes"
	"strings"
)

// lineWriter is an io.Writer that calls fn once per complete output line.
// Agent CLIs stream one event (or one text line) per line, so this is the
// seam between the sandbox exec stream and the backend parsers.
type lineWriter struct {
	buf bytes.Buffer
	fn  func(line string)
}

func newLineWriter(fn func(line string)) *lineWriter {
	return &lineWriter{fn: fn}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)

	for {
		data := w.buf.String()
		idx := strings.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(data[:idx], "\r")
		w.buf.Next(idx + 1)
		if line != "" {
			w.fn(line)
		}
	}

	return len(p), nil
}

// Flush delivers a trailing line that wasn't newline terminated.
func (w *lineWriter) Flush() {
	if w.buf.Len() == 0 {
		return
	}
	line := strings.TrimRight(w.buf.String(), "\r\n")
	w.buf.Reset()
	if line != "" {
		w.fn(line)
	}
}

// tailBuffer keeps the last maxLen bytes written, used to surface the tail
// of stderr as error detail without retaining the whole stream.
type tailBuffer struct {
	max int
	buf bytes.Buffer
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf.Write(p)
	if b.buf.Len() > b.max {
		data := b.buf.Bytes()
		trimmed := make([]byte, b.max)
		copy(trimmed, data[len(data)-b.max:])
		b.buf.Reset()
		b.buf.Write(trimmed)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return strings.TrimSpace(b.buf.String())
}
