package platform

// Segment describes a contiguous region of a file.
type Segment struct {
	Offset int64
	Length int64
	IsData bool
}

// End returns the offset just past the segment.
func (s Segment) End() int64 { return s.Offset + s.Length }

func wholeFile(size int64) []Segment {
	return []Segment{{Offset: 0, Length: size, IsData: true}}
}

// RangeIsHole reports whether [off, off+n) lies wholly inside hole
// segments. segments must be sorted and contiguous, as DataSegments
// returns them.
func RangeIsHole(segments []Segment, off, n int64) bool {
	if len(segments) == 0 || n <= 0 {
		return false
	}
	end := off + n
	for _, s := range segments {
		if s.End() <= off {
			continue
		}
		if s.Offset >= end {
			break
		}
		if s.IsData {
			return false
		}
	}
	last := segments[len(segments)-1]
	return end <= last.End()
}

