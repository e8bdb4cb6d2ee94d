package pipeline

import (
	"regexp"
	"strings"
)

var continuation = regexp.MustCompile(`\\\s*\r?\n`)

// NormalizeCommand joins shell line continuations so a multi-line
// "docker run \" invocation executes as one command.
func NormalizeCommand(command string) string {
	return strings.TrimSpace(continuation.ReplaceAllString(command, " "))
}
