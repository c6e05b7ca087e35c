package logging

import (
	"bytes"
	"io"
	"regexp"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
	ansiCyan   = "\x1b[36m"
	ansiGray   = "\x1b[90m"
)

// tokenPattern matches quoted strings, IPv4 addresses, and numbers in that order of preference.
var tokenPattern = regexp.MustCompile(`"(?:[^"\\]|\\.)*"|\b\d{1,3}(?:\.\d{1,3}){3}(?::\d+)?\b|\b-?\d+(?:\.\d+)?\b`)

// colorLineWriter colours slog text lines by level and highlights value tokens.
// Params: dst terminal writer.
// Returns: io.Writer wrapper.
type colorLineWriter struct {
	dst io.Writer
}

// Write colours one rendered log line.
// Params: p one line produced by slog.TextHandler.
// Returns: len(p) and destination write error.
func (w *colorLineWriter) Write(p []byte) (int, error) {
	base := levelColor(p)
	if base == "" {
		if _, err := w.dst.Write(p); err != nil {
			return 0, err
		}
		return len(p), nil
	}

	line, newline := bytes.CutSuffix(p, []byte("\n"))

	var out bytes.Buffer
	out.Grow(len(p) + 64)
	out.WriteString(base)

	last := 0
	for _, loc := range tokenPattern.FindAllIndex(line, -1) {
		out.Write(line[last:loc[0]])
		out.WriteString(tokenColor(line[loc[0]:loc[1]]))
		out.Write(line[loc[0]:loc[1]])
		out.WriteString(ansiReset)
		out.WriteString(base)
		last = loc[1]
	}
	out.Write(line[last:])
	out.WriteString(ansiReset)
	if newline {
		out.WriteByte('\n')
	}

	if _, err := w.dst.Write(out.Bytes()); err != nil {
		return 0, err
	}
	return len(p), nil
}

// levelColor picks the base colour from the level field.
// Params: line rendered log line.
// Returns: ANSI sequence or empty string when no level is present.
func levelColor(line []byte) string {
	switch {
	case bytes.Contains(line, []byte("level=ERROR")):
		return ansiRed
	case bytes.Contains(line, []byte("level=WARN")):
		return ansiYellow
	case bytes.Contains(line, []byte("level=INFO")):
		return ansiBlue
	case bytes.Contains(line, []byte("level=DEBUG")):
		return ansiGray
	default:
		return ""
	}
}

// tokenColor picks the highlight colour for one matched token.
// Params: token quoted string, address, or number.
// Returns: ANSI sequence.
func tokenColor(token []byte) string {
	switch {
	case token[0] == '"':
		return ansiGreen
	case bytes.Count(token, []byte(".")) == 3:
		return ansiCyan
	default:
		return ansiYellow
	}
}
