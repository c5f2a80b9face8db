package agent

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// 单行上限。观测是小向量，1MB 之内绰绰有余；超限的行整行丢弃，
// 按 invalid_json 回复，循环照常继续。
const maxLineBytes = 1 << 20

type flusher interface {
	Flush() error
}

// Serve runs the line protocol over one stream pair: one JSON command
// per line in, one JSON reply per line out, flushed immediately so a
// pipe peer can interleave request/response. Blank lines are skipped
// without a reply. Bad lines never stop the loop — oversized ones are
// drained and answered like malformed JSON; it ends when r is
// exhausted or the transport itself fails.
func Serve(r io.Reader, w io.Writer, s *Session) error {
	reader := bufio.NewReaderSize(r, 64*1024)

	for {
		line, oversized, err := readLine(reader)
		if err != nil && err != io.EOF {
			return fmt.Errorf("read command: %w", err)
		}
		atEOF := err == io.EOF

		if oversized {
			if werr := writeResponse(w, errorResponse(ErrInvalidJSON)); werr != nil {
				return werr
			}
		} else if line = bytes.TrimSpace(line); len(line) > 0 {
			if werr := writeResponse(w, s.Handle(ParseLine(line))); werr != nil {
				return werr
			}
		}

		if atEOF {
			return nil
		}
	}
}

// readLine reads up to the next newline. A line over maxLineBytes is
// drained to its end and reported oversized instead of failing the
// stream. io.EOF comes back alongside any final unterminated line.
func readLine(r *bufio.Reader) (line []byte, oversized bool, err error) {
	for {
		frag, rerr := r.ReadSlice('\n')
		switch {
		case oversized:
			// 已超限，只管排干到行尾
		case len(line)+len(frag) > maxLineBytes:
			oversized = true
			line = nil
		default:
			line = append(line, frag...)
		}

		switch rerr {
		case nil:
			return line, oversized, nil
		case bufio.ErrBufferFull:
			continue
		default:
			return line, oversized, rerr
		}
	}
}

func writeResponse(w io.Writer, resp Response) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	raw = append(raw, '\n')
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	if f, ok := w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("flush response: %w", err)
		}
	}
	return nil
}
