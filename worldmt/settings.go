// Package worldmt reads and updates the world.mt settings file which
// accompanies a world's map database and names, among other things, the
// backend in which its map blocks are stored.
package worldmt

import (
	"net/url"
	"strings"
)

// Settings is a parsed world.mt file: lines of "key = value" entries,
// interspersed with comments and blank lines. Settings retains the exact
// text of every line which isn't explicitly Set, so that re-serializing
// a parsed file reproduces it byte-for-byte.
type Settings struct {
	lines []line
}

type line struct {
	text  string // Full line text, including its terminator (if any).
	key   string // Empty if the line is not an entry.
	value string
}

// Parse |content| into Settings. Parse never fails: lines which aren't
// recognizable entries are retained verbatim.
func Parse(content []byte) *Settings {
	var s = new(Settings)

	for _, text := range strings.SplitAfter(string(content), "\n") {
		if text == "" {
			continue // Final split of content ending in newline.
		}
		var l = line{text: text}
		var trimmed = strings.TrimSpace(text)

		if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			if ind := strings.IndexByte(trimmed, '='); ind > 0 {
				l.key = strings.TrimSpace(trimmed[:ind])
				l.value = strings.TrimSpace(trimmed[ind+1:])
			}
		}
		s.lines = append(s.lines, l)
	}
	return s
}

// Get returns the value of the last entry for |key|, and whether one exists.
func (s *Settings) Get(key string) (value string, ok bool) {
	for _, l := range s.lines {
		if l.key != "" && l.key == key {
			value, ok = l.value, true
		}
	}
	return
}

// Set the |key| entry to |value|. The last existing entry of |key| is
// rewritten in place; otherwise an entry is appended. All other lines are
// left untouched.
func (s *Settings) Set(key, value string) {
	var text = key + " = " + value

	for i := len(s.lines) - 1; i >= 0; i-- {
		if s.lines[i].key != key {
			continue
		}
		var l = &s.lines[i]
		if strings.HasSuffix(l.text, "\r\n") {
			text += "\r\n"
		} else if strings.HasSuffix(l.text, "\n") {
			text += "\n"
		}
		l.text, l.value = text, value
		return
	}

	if n := len(s.lines); n != 0 && !strings.HasSuffix(s.lines[n-1].text, "\n") {
		s.lines[n-1].text += "\n"
	}
	s.lines = append(s.lines, line{text: text + "\n", key: key, value: value})
}

// Keys returns entry keys in file order, without duplicates.
func (s *Settings) Keys() []string {
	var out []string
	var seen = make(map[string]struct{})

	for _, l := range s.lines {
		if _, ok := seen[l.key]; l.key != "" && !ok {
			seen[l.key] = struct{}{}
			out = append(out, l.key)
		}
	}
	return out
}

// Values returns Settings entries as url.Values, suited for decoding into
// a tagged struct (see mapdb.DecodeSettings).
func (s *Settings) Values() url.Values {
	var out = make(url.Values)
	for _, k := range s.Keys() {
		var v, _ = s.Get(k)
		out.Set(k, v)
	}
	return out
}

// Bytes serializes the Settings.
func (s *Settings) Bytes() []byte {
	var b strings.Builder
	for _, l := range s.lines {
		b.WriteString(l.text)
	}
	return []byte(b.String())
}
