package m3u8

import "strings"

// Resolve turns a playlist reference into an absolute URL.
//
// References that already carry an http or https scheme are returned as is.
// Anything else replaces the part of base after its last slash. Dot segments,
// root-relative paths and query-only references are not interpreted.
func Resolve(base, ref string) string {
	if isAbsolute(ref) {
		return ref
	}
	return base[:strings.LastIndex(base, "/")+1] + ref
}

func isAbsolute(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
