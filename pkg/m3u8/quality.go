package m3u8

import (
	"fmt"
	"regexp"
	"strings"
)

var qualityInName = regexp.MustCompile(`(?i)(\d{3,4})p`)

// QualityLabel names a variant for display. The label comes from the
// resolution height when known, otherwise from hints in the URL's file name,
// otherwise it is the file name itself.
func QualityLabel(res *Resolution, rawURL string) string {
	if res != nil && res.Height > 0 {
		return heightLabel(res.Height)
	}

	name := rawURL[strings.LastIndex(rawURL, "/")+1:]
	if m := qualityInName.FindStringSubmatch(name); m != nil {
		return m[1] + "p"
	}
	if strings.Contains(strings.ToLower(name), "4k") {
		return "4K"
	}
	return name
}

func heightLabel(h uint) string {
	switch {
	case h >= 2160:
		return "4K"
	case h >= 1080:
		return "1080p"
	case h >= 720:
		return "720p"
	case h >= 480:
		return "480p"
	case h >= 360:
		return "360p"
	default:
		return fmt.Sprintf("%dp", h)
	}
}
