package helpers

import (
	"errors"
	"strings"
)

// ErrNoJSON is returned when no balanced JSON value can be found.
var ErrNoJSON = errors.New("no balanced JSON value found")

// ExtractJSON returns the first JSON object or array in s. Generated text often wraps the
// payload in a fenced block or surrounds it with prose; both are tolerated.
func ExtractJSON(s string) (string, error) {
	return extract(s, "{[")
}

// ExtractJSONArray is ExtractJSON restricted to arrays.
func ExtractJSONArray(s string) (string, error) {
	return extract(s, "[")
}

func extract(s, openers string) (string, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "\uFEFF")
	if inner, ok := fencedBody(s); ok {
		if out, ok := scanBalanced(inner, openers); ok {
			return out, nil
		}
	}
	if out, ok := scanBalanced(s, openers); ok {
		return out, nil
	}
	return "", ErrNoJSON
}

// fencedBody returns the content of the first ``` or ~~~ block, skipping the info string.
func fencedBody(s string) (string, bool) {
	for _, fence := range []string{"```", "~~~"} {
		i := strings.Index(s, fence)
		if i < 0 {
			continue
		}
		rest := s[i+len(fence):]
		nl := strings.IndexByte(rest, '\n')
		if nl < 0 {
			continue
		}
		rest = rest[nl+1:]
		if end := strings.Index(rest, fence); end >= 0 {
			return rest[:end], true
		}
	}
	return "", false
}

func scanBalanced(s, openers string) (string, bool) {
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(openers, s[i]) < 0 {
			continue
		}
		if out, ok := balancedFrom(s, i); ok {
			return out, true
		}
	}
	return "", false
}

// balancedFrom reads one JSON value starting at s[start], honouring strings and escapes.
func balancedFrom(s string, start int) (string, bool) {
	var (
		stack    = []byte{s[start]}
		inString bool
		escape   bool
	)
	for i := start + 1; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escape:
				escape = false
			case c == '\\':
				escape = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			top := stack[len(stack)-1]
			if (top == '{' && c != '}') || (top == '[' && c != ']') {
				return "", false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
