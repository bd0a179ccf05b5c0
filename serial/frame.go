package serial

import "strings"

// Command is one SCPI command line. Bytes terminates it with CRLF.
type Command string

// Bytes returns the wire form of the command with exactly one CRLF.
func (c Command) Bytes() []byte {
	return []byte(c.String() + "\r\n")
}

// String returns the command without its line terminator.
func (c Command) String() string {
	return strings.TrimRight(string(c), "\r\n")
}

// IsQuery reports whether the command expects a response line.
func (c Command) IsQuery() bool {
	return strings.HasSuffix(c.String(), "?")
}

// Frame is one response line as received, without the LF terminator.
type Frame []byte

// Text returns the frame as a string with a trailing CR removed.
func (f Frame) Text() string {
	return strings.TrimRight(string(f), "\r")
}
