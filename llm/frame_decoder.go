package llm

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

// newUTF8Reader decodes the body incrementally: a code point split across
// two reads is held back until complete, and invalid bytes become U+FFFD.
func newUTF8Reader(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.UTF8.NewDecoder())
}

// FrameDecoder accumulates decoded text and hands out complete lines.
// Whatever follows the last newline stays buffered until more input
// arrives or Flush is called.
type FrameDecoder struct {
	buf []byte
}

// Write appends decoded bytes.
func (d *FrameDecoder) Write(p []byte) {
	d.buf = append(d.buf, p...)
}

// Next returns the next complete, trimmed line. Empty lines are returned
// too; callers skip them.
func (d *FrameDecoder) Next() (string, bool) {
	i := bytes.IndexByte(d.buf, '\n')
	if i < 0 {
		return "", false
	}
	line := strings.TrimSpace(string(d.buf[:i]))
	d.buf = d.buf[i+1:]
	if len(d.buf) == 0 {
		d.buf = d.buf[:0:0]
	}
	return line, true
}

// Flush returns the trimmed unterminated remainder and empties the buffer.
func (d *FrameDecoder) Flush() string {
	line := strings.TrimSpace(string(d.buf))
	d.buf = nil
	return line
}

// Buffered reports the number of bytes waiting for a newline.
func (d *FrameDecoder) Buffered() int {
	return len(d.buf)
}

type frameKind int

const (
	frameIgnored frameKind = iota
	frameData
	frameDone
)

// classifyLine strips the data prefix. Lines that are not data frames
// (comments, event: fields, blank payloads) are ignored.
func classifyLine(line string) (frameKind, string) {
	if !strings.HasPrefix(line, dataPrefix) {
		return frameIgnored, ""
	}
	payload := strings.TrimSpace(line[len(dataPrefix):])
	switch payload {
	case "":
		return frameIgnored, ""
	case doneSentinel:
		return frameDone, ""
	default:
		return frameData, payload
	}
}
