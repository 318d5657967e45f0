package fetch

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/textproto"
	"os"
	"strings"
)

// LoadHeaders reads extra request headers from path. The file holds either
// a JSON object of name to value, or "Name: value" lines as copied from a
// browser's network panel. Names come back in canonical form. An empty path
// yields no headers.
func LoadHeaders(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read headers file: %w", err)
	}

	var raw map[string]string
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse headers file %s: %w", path, err)
		}
	} else if raw, err = parseHeaderLines(data); err != nil {
		return nil, fmt.Errorf("failed to parse headers file %s: %w", path, err)
	}

	headers := make(map[string]string, len(raw))
	for name, value := range raw {
		name = strings.TrimSpace(name)
		if !validHeaderName(name) {
			return nil, fmt.Errorf("invalid header name %q in %s", name, path)
		}
		headers[textproto.CanonicalMIMEHeaderKey(name)] = strings.TrimSpace(value)
	}
	return headers, nil
}

func parseHeaderLines(data []byte) (map[string]string, error) {
	headers := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("line %d: missing ':'", n)
		}
		headers[name] = value
	}
	return headers, scanner.Err()
}

// validHeaderName reports whether name is a non-empty RFC 7230 token.
func validHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("!#$%&'*+-.^_`|~", r):
		default:
			return false
		}
	}
	return true
}
