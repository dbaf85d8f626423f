package registry

// streaming.go cleans registry exports on the fly before CSV decoding:
//
//   - a leading UTF-8 BOM (common in spreadsheet exports) is dropped
//   - invalid UTF-8 bytes are replaced with '?'
//   - bytes pulled from the source are counted for metrics
//
// Use NewCleanReader for the first two and wrap it in a CountingReader.

import (
	"bufio"
	"io"
	"unicode/utf8"
)

const byteOrderMark = '\uFEFF'

// CleanReader strips a leading BOM and replaces invalid UTF-8 with '?'.
// Memory use is bounded by the bufio buffer regardless of input size.
type CleanReader struct {
	br         *bufio.Reader
	bomChecked bool

	// carry holds the tail of an encoded rune that did not fit in the caller's buffer.
	carry []byte
}

// NewCleanReader wraps r.
func NewCleanReader(r io.Reader) *CleanReader {
	return &CleanReader{br: bufio.NewReader(r)}
}

// Read implements io.Reader.
func (c *CleanReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if !c.bomChecked {
		c.bomChecked = true
		if r, _, err := c.br.ReadRune(); err == nil && r != byteOrderMark {
			_ = c.br.UnreadRune()
		}
	}

	n := copy(p, c.carry)
	c.carry = c.carry[n:]

	var buf [utf8.UTFMax]byte
	for n < len(p) {
		r, size, err := c.br.ReadRune()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}

		if r == utf8.RuneError && size == 1 {
			p[n] = '?'
			n++
			continue
		}

		w := utf8.EncodeRune(buf[:], r)
		copied := copy(p[n:], buf[:w])
		n += copied
		if copied < w {
			c.carry = append(c.carry[:0], buf[copied:w]...)
		}
	}
	return n, nil
}

// CountingReader tracks bytes read through it.
type CountingReader struct {
	reader    io.Reader
	BytesRead int64
}

// NewCountingReader wraps r.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{reader: r}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	return n, err
}
