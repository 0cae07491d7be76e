package video

// H.264 NAL unit types (ITU-T H.264 Table 7-1) relevant to admission
const (
	NALTypeSlice = 1
	NALTypeIDR   = 5
	NALTypeSEI   = 6
	NALTypeSPS   = 7
	NALTypePPS   = 8
	NALTypeAUD   = 9
)

// NALUnit is one NAL unit without its start code
type NALUnit struct {
	Type byte
	Data []byte
}

// ParseAnnexB splits an Annex-B byte stream on 3- and 4-byte start codes.
func ParseAnnexB(data []byte) []NALUnit {
	n := len(data)
	if n < 4 {
		return nil
	}

	type scPos struct {
		scStart   int
		dataStart int
	}

	var positions []scPos
	i := 0
	for i < n-2 {
		if data[i] == 0 && data[i+1] == 0 {
			if i < n-3 && data[i+2] == 0 && data[i+3] == 1 {
				positions = append(positions, scPos{scStart: i, dataStart: i + 4})
				i += 4
				continue
			}
			if data[i+2] == 1 {
				positions = append(positions, scPos{scStart: i, dataStart: i + 3})
				i += 3
				continue
			}
		}
		i++
	}

	var units []NALUnit
	for idx, pos := range positions {
		end := n
		if idx+1 < len(positions) {
			end = positions[idx+1].scStart
		}
		if pos.dataStart >= end {
			continue
		}
		nal := data[pos.dataStart:end]
		units = append(units, NALUnit{Type: nal[0] & 0x1F, Data: nal})
	}
	return units
}

// IsKeyframe reports whether an access unit can start decoding: it carries
// an IDR slice or a sequence parameter set.
func IsKeyframe(data []byte) bool {
	for _, u := range ParseAnnexB(data) {
		if u.Type == NALTypeIDR || u.Type == NALTypeSPS {
			return true
		}
	}
	return false
}
