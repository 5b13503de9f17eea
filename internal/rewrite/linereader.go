package rewrite

import (
	"bufio"
	"errors"
	"io"
)

const initialReadBufSize = 64 * 1024 // 64KB

// LineReader reads newline-delimited records one at a time while
// keeping each record's terminator, so a file can be rewritten
// without changing its line structure. Only the current line is
// held in memory. When MaxLen is positive, bytes beyond it are
// discarded and Oversized reports the truncation.
type LineReader struct {
	r         *bufio.Reader
	MaxLen    int
	buf       []byte
	line      string
	eol       string
	oversized bool
	err       error
}

// NewLineReader returns a LineReader over r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{
		r:   bufio.NewReaderSize(r, initialReadBufSize),
		buf: make([]byte, 0, initialReadBufSize),
	}
}

// Next advances to the next line. It returns false at EOF or on a
// read error; check Err afterwards.
func (lr *LineReader) Next() bool {
	if lr.err != nil {
		return false
	}
	lr.buf = lr.buf[:0]
	lr.oversized = false

	for {
		chunk, err := lr.r.ReadSlice('\n')
		lr.appendChunk(chunk)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			if err != io.EOF {
				lr.err = err
				return false
			}
			if len(lr.buf) == 0 && !lr.oversized {
				return false
			}
		}
		break
	}

	lr.eol = ""
	n := len(lr.buf)
	if n > 0 && lr.buf[n-1] == '\n' {
		lr.eol = "\n"
		n--
		if n > 0 && lr.buf[n-1] == '\r' {
			lr.eol = "\r\n"
			n--
		}
	}
	lr.line = string(lr.buf[:n])
	return true
}

func (lr *LineReader) appendChunk(chunk []byte) {
	n := len(chunk)
	eol := 0
	if n > 0 && chunk[n-1] == '\n' {
		eol = 1
		if n > 1 && chunk[n-2] == '\r' {
			eol = 2
		}
	}
	if !lr.oversized &&
		(lr.MaxLen <= 0 || len(lr.buf)+n-eol <= lr.MaxLen) {
		lr.buf = append(lr.buf, chunk...)
		return
	}
	lr.oversized = true
	// Keep the terminator so EOL stays accurate.
	lr.buf = append(lr.buf[:0], chunk[n-eol:]...)
}

// Line returns the current line without its terminator. It is
// empty for oversized lines.
func (lr *LineReader) Line() string { return lr.line }

// EOL returns the current line's terminator: "\n", "\r\n", or ""
// for a final line without one.
func (lr *LineReader) EOL() string { return lr.eol }

// Oversized reports whether the current line exceeded MaxLen.
func (lr *LineReader) Oversized() bool { return lr.oversized }

// Err returns the first non-EOF read error.
func (lr *LineReader) Err() error { return lr.err }
