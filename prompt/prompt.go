// Package prompt recognises the remote shell's prompt in command output and
// pulls session paths out of free-form text.
//
// The remote end is a plain interactive shell with no framing. A chunk that
// contains the prompt character is taken to end a command, unless the chunk
// also carries the escape marker some remote scripts wrap around a prompt.
// The rule is imprecise on purpose: programs that print ">" will end a
// command early, and prompts split across reads can end it late. Detector
// exists so a stricter framing can replace the heuristic.
package prompt

import (
	"strings"
	"unicode"
)

const (
	// Char marks the end of the remote shell prompt.
	Char = ">"
	// EscapeMarker appears next to prompt-like text that is not a prompt.
	EscapeMarker = "<"
	// BuildMarker in command output means a long-running build is in progress.
	BuildMarker = "make"
	// SourceLabel precedes the source root in the initial script's output.
	SourceLabel = "source: "
)

// Detector decides when a command's output is complete.
type Detector interface {
	// Complete reports whether chunk ends the current command.
	Complete(chunk string) bool
	// LongRunning reports whether chunk indicates a command that may stay
	// silent for a long time.
	LongRunning(chunk string) bool
}

// Heuristic is the default Detector: substring checks on each received chunk.
type Heuristic struct {
	Prompt string
	Escape string
	Build  string
}

// Default returns the heuristic used against the supported remote shells.
func Default() Heuristic {
	return Heuristic{Prompt: Char, Escape: EscapeMarker, Build: BuildMarker}
}

// Complete implements Detector.
func (h Heuristic) Complete(chunk string) bool {
	if !strings.Contains(chunk, h.Prompt) {
		return false
	}
	return h.Escape == "" || !strings.Contains(chunk, h.Escape)
}

// LongRunning implements Detector.
func (h Heuristic) LongRunning(chunk string) bool {
	return h.Build != "" && strings.Contains(chunk, h.Build)
}

// ParsePwd extracts the working directory from the prompt on the last line
// of text. The path runs from the first '/' on that line to its end, with
// whitespace and prompt characters removed. It returns "" when the last line
// holds no path.
func ParsePwd(text string) string {
	last := text
	if i := strings.LastIndexByte(text, '\n'); i >= 0 {
		last = text[i+1:]
	}

	start := strings.IndexByte(last, '/')
	if start < 0 {
		return ""
	}

	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '>' {
			return -1
		}
		return r
	}, last[start:])
}

// ParseSource extracts the source root following SourceLabel. The value ends
// at the first carriage return or newline; an unterminated value is ignored.
func ParseSource(text string) string {
	i := strings.Index(text, SourceLabel)
	if i < 0 {
		return ""
	}

	rest := text[i+len(SourceLabel):]
	end := strings.IndexAny(rest, "\r\n")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}
