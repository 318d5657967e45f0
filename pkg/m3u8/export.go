package m3u8

import (
	"fmt"
	"math"

	gm3u8 "github.com/grafov/m3u8"
)

// Encode renders the document back to M3U8 text with every reference
// resolved to an absolute URL, so the playlist plays from anywhere.
func (d *Document) Encode() ([]byte, error) {
	switch {
	case d.Master != nil:
		return d.Master.encode(), nil
	case d.Media != nil:
		return d.Media.encode()
	default:
		return nil, fmt.Errorf("encode %s playlist: empty document", d.Kind)
	}
}

func (m *MasterPlaylist) encode() []byte {
	pl := gm3u8.NewMasterPlaylist()

	alternatives := make([]*gm3u8.Alternative, 0, len(m.AudioTracks))
	for _, track := range m.AudioTracks {
		alternatives = append(alternatives, &gm3u8.Alternative{
			GroupId:  track.GroupID,
			URI:      track.URI,
			Type:     "AUDIO",
			Language: track.Language,
			Name:     track.Name,
			Default:  track.Default,
		})
	}

	for _, v := range m.Variants {
		params := gm3u8.VariantParams{
			Bandwidth: uint32(min(v.Bandwidth, math.MaxUint32)),
			Codecs:    v.Codecs,
			Audio:     v.AudioGroupID,
		}
		if v.Resolution != nil {
			params.Resolution = v.Resolution.String()
		}
		if v.FrameRate != nil {
			params.FrameRate = *v.FrameRate
		}
		if v.AudioGroupID != "" {
			for _, alt := range alternatives {
				if alt.GroupId == v.AudioGroupID {
					params.Alternatives = append(params.Alternatives, alt)
				}
			}
		}
		pl.Append(v.URL, nil, params)
	}

	return pl.Encode().Bytes()
}

func (m *MediaPlaylist) encode() ([]byte, error) {
	pl, err := gm3u8.NewMediaPlaylist(0, uint(len(m.Segments)))
	if err != nil {
		return nil, fmt.Errorf("failed to create media playlist: %w", err)
	}

	for _, seg := range m.Segments {
		if err := pl.Append(seg.URL, seg.Duration, ""); err != nil {
			return nil, fmt.Errorf("failed to append segment %s: %w", seg.URL, err)
		}
	}
	pl.Close()

	return pl.Encode().Bytes(), nil
}
