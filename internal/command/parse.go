package command

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Command is a parsed console slash command.
type Command struct {
	// Name is the lower-cased word after the slash.
	Name string
	// Args are the whitespace separated words after Name.
	Args []string
	// Body is everything after the separator that follows Name, kept verbatim
	// so program text keeps its indentation and line endings.
	Body string
}

// Parse parses a console line. Lines that do not start with "/" (after
// leading blanks) are program text and report false.
func Parse(input string) (Command, bool) {
	line := strings.TrimLeft(input, " \t")
	if !strings.HasPrefix(line, "/") {
		return Command{}, false
	}
	rest := line[1:]
	end := strings.IndexFunc(rest, unicode.IsSpace)
	if end < 0 {
		end = len(rest)
	}
	cmd := Command{Name: strings.ToLower(rest[:end]), Args: []string{}}
	if end == len(rest) {
		return cmd, true
	}
	_, width := utf8.DecodeRuneInString(rest[end:])
	cmd.Body = rest[end+width:]
	cmd.Args = strings.Fields(cmd.Body)
	return cmd, true
}
