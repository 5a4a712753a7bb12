package variables

import "strings"

// FormatString expands `[name]` references in pattern against the store.
// `[\c]` escapes the single character c; an unterminated `[` at the end of
// the string is emitted literally; a missing variable expands to "".
func (s *Store) FormatString(pattern string) string {
	return s.format(pattern, false)
}

// FormatStringObfuscated is like FormatString but renders hidden
// variables as "*****" instead of their underlying value.
func (s *Store) FormatStringObfuscated(pattern string) string {
	return s.format(pattern, true)
}

func (s *Store) format(pattern string, obfuscate bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out strings.Builder
	runes := []rune(pattern)
	i := 0
	for i < len(runes) {
		c := runes[i]
		if c != '[' {
			out.WriteRune(c)
			i++
			continue
		}

		// '[' opener: look for an escape or a name up to the matching ']'.
		if i+1 < len(runes) && runes[i+1] == '\\' {
			// [\c] escapes the single character at i+2, if closed by ']'.
			if i+3 < len(runes) && runes[i+3] == ']' {
				out.WriteRune(runes[i+2])
				i += 4
				continue
			}
		}

		close := indexRune(runes, ']', i+1)
		if close < 0 {
			// Unterminated '[' at end of string: emit literally.
			out.WriteString(string(runes[i:]))
			break
		}

		name := string(runes[i+1 : close])
		if name == "" {
			// An empty bracket pair is literal text, not an expansion
			// of the zero-length name.
			out.WriteString("[]")
			i = close + 1
			continue
		}

		value, found, hidden := s.stringValueRaw(name)
		if found {
			if hidden && obfuscate {
				out.WriteString("*****")
			} else {
				out.WriteString(value)
			}
		}
		i = close + 1
	}
	return out.String()
}

// EscapeString returns value with every '[' and ']' escaped so that a
// subsequent FormatString treats it as a literal.
func EscapeString(value string) string {
	var out strings.Builder
	for _, c := range value {
		if c == '[' || c == ']' {
			out.WriteRune('[')
			out.WriteRune('\\')
			out.WriteRune(c)
			out.WriteRune(']')
			continue
		}
		out.WriteRune(c)
	}
	return out.String()
}

func indexRune(runes []rune, target rune, from int) int {
	for i := from; i < len(runes); i++ {
		if runes[i] == target {
			return i
		}
	}
	return -1
}
