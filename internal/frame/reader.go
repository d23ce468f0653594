package frame

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"github.com/and161185/s0-pulse-counter/internal/errs"
)

// DefaultMaxFrameLen bounds a frame when NewReader is given no limit.
const DefaultMaxFrameLen = 512

// Reader splits a byte stream into frames terminated by '\n'. A trailing
// '\r' is stripped as well.
type Reader struct {
	br *bufio.Reader
}

func NewReader(r io.Reader, maxLen int) *Reader {
	if maxLen <= 0 {
		maxLen = DefaultMaxFrameLen
	}
	// room for "\r\n"
	return &Reader{br: bufio.NewReaderSize(r, maxLen+2)}
}

// Next blocks until a complete frame is available. The returned slice is
// only valid until the following call.
//
// A span that overflows the limit is skipped up to the next delimiter and
// reported as errs.ErrFrameTooLong; the reader stays usable. Any other
// error comes from the underlying stream, and an incomplete span read
// before it is dropped.
func (r *Reader) Next() ([]byte, error) {
	line, err := r.br.ReadSlice('\n')
	switch {
	case err == nil:
		return trimDelimiter(line), nil
	case errors.Is(err, bufio.ErrBufferFull):
		if err := r.skipLine(); err != nil {
			return nil, err
		}
		return nil, errs.ErrFrameTooLong
	default:
		return nil, err
	}
}

func (r *Reader) skipLine() error {
	for {
		_, err := r.br.ReadSlice('\n')
		if err == nil {
			return nil
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
	}
}

func trimDelimiter(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte{'\n'})
	return bytes.TrimSuffix(line, []byte{'\r'})
}
