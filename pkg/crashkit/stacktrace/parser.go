// Package stacktrace parses the managed-runtime stack trace text format into
// structured frame records.
//
// A frame line has the shape
//
//	line     = ws* "at" sp qualname sp args [sp offset] [sp "in" sp file ":" digits] ws*
//	qualname = a run of non-space characters containing ".", split at the last "."
//	args     = "(" up to and including the first ")"
//	offset   = everything before " in " (or the end of the line), with an optional
//	           leading "<" and trailing ">" removed
//
// for example
//
//	at App.Views.MainPage.OnClick (System.Object sender, System.EventArgs e) [0x00012] in /src/MainPage.cs:42
//	at System.Threading.Tasks.Task.Execute () <0x00053 + 0x0002b> in <filename unknown>:0
//	at Foo.Bar (System.String)
//
// Lines that do not fit the grammar, such as
// "--- End of inner exception stack trace ---", are skipped.
package stacktrace

import (
	"strconv"
	"strings"
	"unicode"
)

// Line is one frame line matched by the grammar.
type Line struct {
	// ClassName is the qualified name up to its last ".".
	ClassName string

	// MethodName is the qualified name after its last ".".
	MethodName string

	// Arguments is the parenthesized parameter list, verbatim.
	Arguments string

	// Offset is the raw offset marker with angle brackets removed.
	Offset string

	// File is the source file of the location suffix, if any.
	File string

	// LineNumber is the parsed line number. Zero when the line carries no
	// location suffix or the number cannot be parsed.
	LineNumber int

	// HasLocation reports whether the " in file:line" suffix was present.
	HasLocation bool
}

// Parse splits text into lines and returns the ones that match the frame
// grammar, in source order.
func Parse(text string) []Line {
	if text == "" {
		return nil
	}

	var lines []Line
	for _, raw := range strings.Split(text, "\n") {
		if line, ok := ParseLine(raw); ok {
			lines = append(lines, line)
		}
	}
	return lines
}

// scanner states for ParseLine.
type state int

const (
	stateKeyword state = iota
	stateQualName
	stateArgs
	stateTail
	stateDone
)

// ParseLine parses a single frame line. The second result is false when the
// line does not match the grammar.
func ParseLine(raw string) (Line, bool) {
	rest := strings.TrimRightFunc(strings.TrimLeftFunc(raw, unicode.IsSpace), unicode.IsSpace)

	var line Line
	for st := stateKeyword; st != stateDone; {
		switch st {
		case stateKeyword:
			if !strings.HasPrefix(rest, "at ") {
				return Line{}, false
			}
			rest = rest[len("at "):]
			st = stateQualName

		case stateQualName:
			end := strings.IndexFunc(rest, unicode.IsSpace)
			if end < 0 {
				return Line{}, false
			}
			qual := rest[:end]
			dot := strings.LastIndexByte(qual, '.')
			if dot < 0 {
				return Line{}, false
			}
			line.ClassName = qual[:dot]
			line.MethodName = qual[dot+1:]
			rest = rest[end+1:]
			st = stateArgs

		case stateArgs:
			if !strings.HasPrefix(rest, "(") {
				return Line{}, false
			}
			closing := strings.IndexByte(rest, ')')
			if closing < 0 {
				return Line{}, false
			}
			line.Arguments = rest[:closing+1]
			rest = rest[closing+1:]
			st = stateTail

		case stateTail:
			line.Offset, line.File, line.LineNumber, line.HasLocation = parseTail(rest)
			st = stateDone
		}
	}
	return line, true
}

// parseTail splits what follows the argument list into the offset marker and
// the optional location suffix.
func parseTail(tail string) (offset, file string, lineNumber int, hasLocation bool) {
	tail = strings.TrimPrefix(tail, " ")

	marker := tail
	if tail == "in" || strings.HasPrefix(tail, "in ") {
		marker = ""
	} else if idx := strings.Index(tail, " in "); idx >= 0 {
		marker, tail = tail[:idx], tail[idx+1:]
	} else {
		tail = ""
	}

	marker = strings.TrimPrefix(marker, "<")
	marker = strings.TrimSuffix(marker, ">")
	offset = marker

	if tail == "" {
		return offset, "", 0, false
	}

	location := strings.TrimPrefix(strings.TrimPrefix(tail, "in"), " ")
	colon := strings.LastIndexByte(location, ':')
	if colon < 0 {
		return offset, location, 0, true
	}

	file = location[:colon]
	digits := location[colon+1:]
	if end := strings.IndexFunc(digits, func(r rune) bool { return r < '0' || r > '9' }); end >= 0 {
		digits = digits[:end]
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		n = 0
	}
	return offset, file, n, true
}

// OffsetToken returns the last "+"- or space-delimited token of an offset
// marker. "0x00053 + 0x0002b" yields "0x0002b"; an empty marker yields "".
func OffsetToken(marker string) string {
	if idx := strings.LastIndexAny(marker, "+ "); idx >= 0 {
		return marker[idx+1:]
	}
	return marker
}
