package m3u8

import (
	"strings"
)

// attributes is a decoded HLS attribute list keyed by upper-cased name.
type attributes map[string]string

// parseAttributes decodes the attribute list following prefix on a tag line.
// Values are either quoted strings, which may contain commas, or bare tokens.
func parseAttributes(line, prefix string) attributes {
	attrs := make(attributes)
	rest := strings.TrimPrefix(line, prefix)

	for rest != "" {
		eq := strings.IndexByte(rest, '=')
		if eq < 0 {
			break
		}
		key := strings.ToUpper(strings.TrimSpace(rest[:eq]))
		rest = rest[eq+1:]

		var value string
		if strings.HasPrefix(rest, `"`) {
			end := strings.IndexByte(rest[1:], '"')
			if end < 0 {
				value, rest = rest[1:], ""
			} else {
				value, rest = rest[1:end+1], rest[end+2:]
			}
			// skip anything up to the separator
			if comma := strings.IndexByte(rest, ','); comma >= 0 {
				rest = rest[comma+1:]
			} else {
				rest = ""
			}
		} else {
			value, rest, _ = strings.Cut(rest, ",")
			value = strings.TrimSpace(value)
		}

		if key != "" {
			if _, seen := attrs[key]; !seen {
				attrs[key] = value
			}
		}
	}

	return attrs
}

// get returns the value of key, or "" when absent.
func (a attributes) get(key string) string {
	return a[strings.ToUpper(key)]
}
