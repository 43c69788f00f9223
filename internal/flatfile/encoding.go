package flatfile

// encoding.go holds the readers placed in front of encoding/csv so that files
// saved by spreadsheet tools parse as they stream:
//
//   - bomReader drops a leading UTF-8 byte order mark (0xEF 0xBB 0xBF)
//   - utf8Sanitizer replaces invalid UTF-8 bytes with '?'
//
// Both work on the stream with constant memory. Use decode to apply them in
// the right order.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decode wraps r with BOM stripping followed by UTF-8 sanitization.
func decode(r io.Reader) io.Reader {
	return newUTF8Sanitizer(newBOMReader(r))
}

// bomReader skips a UTF-8 BOM at the start of the stream.
type bomReader struct {
	r       *bufio.Reader
	checked bool
}

func newBOMReader(r io.Reader) *bomReader {
	return &bomReader{r: bufio.NewReader(r)}
}

func (b *bomReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		head, _ := b.r.Peek(len(utf8BOM))
		if bytes.Equal(head, utf8BOM) {
			_, _ = b.r.Discard(len(utf8BOM))
		}
	}
	return b.r.Read(p)
}

// utf8Sanitizer rewrites invalid UTF-8 in place. A multi-byte rune split
// across two reads is carried over instead of being treated as invalid.
type utf8Sanitizer struct {
	r     io.Reader
	carry []byte
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{r: r, carry: make([]byte, 0, utf8.UTFMax)}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	n := copy(p, s.carry)
	if n < len(s.carry) {
		s.carry = s.carry[:copy(s.carry, s.carry[n:])]
		return n, nil
	}
	s.carry = s.carry[:0]

	m, err := s.r.Read(p[n:])
	n += m
	if n == 0 {
		return 0, err
	}

	return s.sanitize(p[:n], err == io.EOF), err
}

// sanitize compacts buf in place and returns the number of bytes kept.
// Unless atEOF, an incomplete rune at the end is moved to carry.
func (s *utf8Sanitizer) sanitize(buf []byte, atEOF bool) int {
	w := 0
	for i := 0; i < len(buf); {
		if buf[i] < utf8.RuneSelf {
			buf[w] = buf[i]
			w++
			i++
			continue
		}

		r, size := utf8.DecodeRune(buf[i:])
		if r == utf8.RuneError && size == 1 {
			if !atEOF && !utf8.FullRune(buf[i:]) {
				s.carry = append(s.carry, buf[i:]...)
				return w
			}
			// '?' keeps the output no longer than the input.
			buf[w] = '?'
			w++
			i++
			continue
		}

		copy(buf[w:], buf[i:i+size])
		w += size
		i += size
	}
	return w
}
