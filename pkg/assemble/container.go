package assemble

import "bytes"

// Container is a segment format recognized from its leading bytes.
type Container int

const (
	ContainerUnknown Container = iota
	ContainerMPEGTS
	ContainerFMP4
	ContainerADTS
)

const tsPacketSize = 188

var fmp4Boxes = [][]byte{[]byte("ftyp"), []byte("styp"), []byte("moof"), []byte("sidx")}

func (c Container) String() string {
	switch c {
	case ContainerMPEGTS:
		return "mpegts"
	case ContainerFMP4:
		return "fmp4"
	case ContainerADTS:
		return "adts"
	default:
		return "unknown"
	}
}

// Sniff guesses the container of a segment payload from its first bytes.
func Sniff(data []byte) Container {
	switch {
	case len(data) >= 8 && isFMP4Box(data[4:8]):
		return ContainerFMP4
	case len(data) > 0 && data[0] == 0x47 && (len(data) <= tsPacketSize || data[tsPacketSize] == 0x47):
		return ContainerMPEGTS
	case bytes.HasPrefix(data, []byte("ID3")):
		// packed audio carries an ID3 timestamp tag ahead of the ADTS frames
		return ContainerADTS
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xF6 == 0xF0:
		return ContainerADTS
	default:
		return ContainerUnknown
	}
}

func isFMP4Box(name []byte) bool {
	for _, box := range fmp4Boxes {
		if bytes.Equal(name, box) {
			return true
		}
	}
	return false
}

// fileType returns the extension and MIME type for a single-track output.
// Unknown payloads are treated as MPEG-TS, the HLS default.
func fileType(c Container, audio bool) (string, string) {
	switch c {
	case ContainerFMP4:
		if audio {
			return ".m4a", "audio/mp4"
		}
		return ".mp4", "video/mp4"
	case ContainerADTS:
		return ".aac", "audio/aac"
	default:
		return ".ts", "video/mp2t"
	}
}
