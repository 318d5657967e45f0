package grab

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/hollowness-inside/hlsgrab/pkg/m3u8"
)

var (
	unsafeChars = regexp.MustCompile(`(?i)[^a-z0-9\-_. ]`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// SanitizeName reduces raw to letters, digits, '-', '_' and '.', with runs of
// spaces turned into a single '_'. An empty result becomes "video".
func SanitizeName(raw string) string {
	cleaned := unsafeChars.ReplaceAllString(strings.TrimSpace(raw), "")
	cleaned = whitespace.ReplaceAllString(strings.TrimSpace(cleaned), "_")
	cleaned = strings.Trim(cleaned, ".")
	if cleaned == "" {
		return "video"
	}
	return cleaned
}

// BuildFileName derives a unique base name from a page title.
func BuildFileName(title string, now time.Time) string {
	return fmt.Sprintf("%s_%d", SanitizeName(title), now.UnixMilli())
}

// nameFromURL is the sanitized file name of rawURL without its extension.
func nameFromURL(rawURL string) string {
	name := m3u8.BaseName(rawURL)
	return SanitizeName(strings.TrimSuffix(name, path.Ext(name)))
}

// uniquePath returns dir/name, or dir/stem_N.ext for the first N that does
// not exist yet.
func uniquePath(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := filepath.Join(dir, name)
	for n := 1; ; n++ {
		_, err := os.Stat(candidate)
		if os.IsNotExist(err) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, n, ext))
	}
}
