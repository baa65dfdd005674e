package catalog

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

var (
	intToken   = regexp.MustCompile(`^-?\d+$`)
	numToken   = regexp.MustCompile(`^-?\d+\.\d+$`)
	clockToken = regexp.MustCompile(`^\d{1,2}:[0-5]\d$`)
)

// Normalize turns tokens into a stable shape. The code token is kept
// literally; every other non-empty token becomes a positional placeholder
// naming its lexical class.
func Normalize(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	parts := make([]string, len(tokens))
	parts[0] = tokens[0]
	for i := 1; i < len(tokens); i++ {
		parts[i] = placeholder(i, strings.TrimSpace(tokens[i]))
	}
	return strings.Join(parts, ";")
}

func placeholder(pos int, tok string) string {
	switch {
	case tok == "":
		return ""
	case intToken.MatchString(tok):
		return fmt.Sprintf("{%d:int}", pos)
	case numToken.MatchString(tok):
		return fmt.Sprintf("{%d:num}", pos)
	case clockToken.MatchString(tok):
		return fmt.Sprintf("{%d:time}", pos)
	default:
		return fmt.Sprintf("{%d:str}", pos)
	}
}

// Hash returns the hex xxhash of a normalized pattern.
func Hash(pattern string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(pattern))
}
