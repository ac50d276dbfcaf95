package protocol

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

const (
	// MaxLineLength is the maximum allowed length of a single wire line,
	// including the type tag but excluding the trailing newline.
	MaxLineLength = 4096

	// FieldSep separates top-level message fields on the wire.
	FieldSep = "|"

	// ListSep separates elements inside a single list-valued field.
	ListSep = ","
)

var (
	ErrLineTooLong   = errors.New("line exceeds maximum length (4 KB)")
	ErrEmptyLine     = errors.New("empty line")
	ErrUnknownType   = errors.New("unknown message type")
	ErrBadFieldCount = errors.New("wrong number of fields")
	ErrBadFieldValue = errors.New("malformed field value")
	ErrUnsafeField   = errors.New("field contains reserved characters")
)

// IsSingleLineAndSafe reports whether s may be carried in a freeform wire
// field: non-empty, no field or list separators, no control characters.
// Applied to nicknames, room names, and robot cookies before they touch the
// wire.
func IsSingleLineAndSafe(s string) bool {
	if s == "" {
		return false
	}
	if strings.ContainsAny(s, FieldSep+ListSep) {
		return false
	}
	return noControlChars(s)
}

// IsSafeText is the validator for a message's trailing text field: chat
// lines, status text, reject reasons. The field is never list-valued and
// nothing follows it on the line, so list separators are fine; the field
// separator still is not.
func IsSafeText(s string) bool {
	if s == "" || strings.Contains(s, FieldSep) {
		return false
	}
	return noControlChars(s)
}

func noControlChars(s string) bool {
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	return true
}

// WriteMessage encodes msg and writes it as a single newline-terminated line.
func WriteMessage(w io.Writer, msg Message) error {
	line, err := msg.Encode()
	if err != nil {
		return err
	}
	if len(line) > MaxLineLength {
		return ErrLineTooLong
	}
	_, err = io.WriteString(w, line+"\n")
	return err
}

// Reader reads newline-framed protocol messages from a stream.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader wraps r in a message reader with the protocol line limit.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 512), MaxLineLength+1)
	return &Reader{scanner: scanner}
}

// ReadMessage reads and parses the next line. Returns io.EOF at end of
// stream, and ErrLineTooLong for oversized lines.
func (r *Reader) ReadMessage() (Message, error) {
	line, err := r.ReadLine()
	if err != nil {
		return nil, err
	}
	return Parse(line)
}

// ReadLine reads the next raw line without parsing. Used by transports that
// relay frames without interpreting them.
func (r *Reader) ReadLine() (string, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				return "", ErrLineTooLong
			}
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}
