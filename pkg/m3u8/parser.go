package m3u8

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	tagStreamInf = "#EXT-X-STREAM-INF"
	tagMedia     = "#EXT-X-MEDIA:"
	tagInf       = "#EXTINF:"
)

var (
	audioURLHint  = regexp.MustCompile(`(?i)audio|sound|snd`)
	leadingNumber = regexp.MustCompile(`^[0-9.]+`)
	uriAttribute  = regexp.MustCompile(`URI="([^"]*)"`)
)

// Parse classifies text fetched from sourceURL and decodes it.
func Parse(sourceURL, text string) (*Document, error) {
	class, err := ClassifyPlaylist(sourceURL, text)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Kind: class.Kind,
		Rule: class.Rule,
		URL:  sourceURL,
	}

	lines := splitLines(text)
	if class.Kind == KindMaster {
		doc.Master = parseMaster(sourceURL, lines)
	} else {
		doc.Media = parseMedia(sourceURL, lines)
	}

	return doc, nil
}

// ClassifyPlaylist decides the Kind of a playlist. The first matching rule
// wins: a stream-inf tag means master; audio segment extensions or an audio
// hint in the URL mean audio; ts segments mean variant.
func ClassifyPlaylist(sourceURL, text string) (Classification, error) {
	if strings.Contains(text, tagStreamInf) {
		return Classification{Kind: KindMaster, Rule: RuleStreamInf}, nil
	}

	lines := splitLines(text)

	if anyReference(lines, ".aac", ".m4a") {
		return Classification{Kind: KindAudio, Rule: RuleAudioSegment}, nil
	}
	if audioURLHint.MatchString(sourceURL) {
		return Classification{Kind: KindAudio, Rule: RuleAudioURLHint}, nil
	}
	if anyReference(lines, ".ts") {
		return Classification{Kind: KindVariant, Rule: RuleTransportStream}, nil
	}

	return Classification{}, ErrUnrecognizedFormat
}

func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return lines
}

func isReference(line string) bool {
	return line != "" && !strings.HasPrefix(line, "#")
}

// anyReference reports whether a reference line, or a URI attribute of a
// tag such as EXT-X-MAP, ends in one of exts, ignoring any query string.
func anyReference(lines []string, exts ...string) bool {
	for _, line := range lines {
		var ref string
		switch {
		case isReference(line):
			ref = line
		case strings.HasPrefix(line, "#"):
			m := uriAttribute.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			ref = m[1]
		default:
			continue
		}
		path := strings.ToLower(urlPath(ref))
		for _, ext := range exts {
			if strings.HasSuffix(path, ext) {
				return true
			}
		}
	}
	return false
}

func parseMaster(sourceURL string, lines []string) *MasterPlaylist {
	master := &MasterPlaylist{
		Variants:    []VariantRef{},
		AudioTracks: []AudioTrackRef{},
	}

	// attributes of the last stream-inf tag still waiting for its URI line;
	// a second stream-inf tag replaces them
	var pending attributes

	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, tagMedia):
			attrs := parseAttributes(line, tagMedia)
			if !strings.EqualFold(attrs.get("TYPE"), "AUDIO") {
				continue
			}
			uri := attrs.get("URI")
			if uri == "" {
				continue
			}
			master.AudioTracks = append(master.AudioTracks, AudioTrackRef{
				GroupID:  attrs.get("GROUP-ID"),
				Name:     attrs.get("NAME"),
				Language: attrs.get("LANGUAGE"),
				URI:      Resolve(sourceURL, uri),
				Default:  strings.EqualFold(attrs.get("DEFAULT"), "YES"),
			})

		case strings.HasPrefix(line, tagStreamInf):
			pending = parseAttributes(line, tagStreamInf+":")

		case isReference(line) && pending != nil:
			master.Variants = append(master.Variants, newVariant(Resolve(sourceURL, line), pending))
			pending = nil
		}
	}

	sort.SliceStable(master.Variants, func(i, j int) bool {
		return master.Variants[i].Bandwidth > master.Variants[j].Bandwidth
	})

	return master
}

func newVariant(url string, attrs attributes) VariantRef {
	v := VariantRef{
		URL:          url,
		Codecs:       attrs.get("CODECS"),
		AudioGroupID: attrs.get("AUDIO"),
	}
	v.Bandwidth, _ = strconv.ParseUint(attrs.get("BANDWIDTH"), 10, 64)
	v.Resolution = parseResolution(attrs.get("RESOLUTION"))
	if fps, err := strconv.ParseFloat(attrs.get("FRAME-RATE"), 64); err == nil {
		v.FrameRate = &fps
	}
	v.QualityLabel = QualityLabel(v.Resolution, url)
	return v
}

func parseResolution(s string) *Resolution {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return nil
	}
	width, err := strconv.ParseUint(w, 10, 32)
	if err != nil {
		return nil
	}
	height, err := strconv.ParseUint(h, 10, 32)
	if err != nil {
		return nil
	}
	return &Resolution{Width: uint(width), Height: uint(height)}
}

func parseMedia(sourceURL string, lines []string) *MediaPlaylist {
	media := &MediaPlaylist{Segments: []Segment{}}
	var pending float64

	for _, line := range lines {
		if strings.HasPrefix(line, tagInf) {
			if num := leadingNumber.FindString(strings.TrimPrefix(line, tagInf)); num != "" {
				if d, err := strconv.ParseFloat(num, 64); err == nil {
					pending = d
				}
			}
			continue
		}
		if !isReference(line) {
			continue
		}

		media.Segments = append(media.Segments, Segment{
			URL:      Resolve(sourceURL, line),
			Duration: pending,
		})
		media.TotalDuration += pending
		pending = 0
	}

	return media
}
