// Package image defines the wire-format constants shared by the
// encoder and linker: the fixed 40-byte, 5-offset image header and
// segment ordering of spec.md §4.H.
package image

// HeaderSize is the fixed size, in bytes, of the image header: five
// uint64 segment offsets, one per Segment, in Segment order.
const HeaderSize = NumSegments * 8

// OffsetSize is the width of one header offset field.
const OffsetSize = 8

// Segment names the five segments whose offsets the header carries,
// in on-disk order.
type Segment int

const (
	SegCode Segment = iota
	SegConstants
	SegGlobals
	SegTemplates
	SegObjectKeys
	numSegments
)

// NumSegments is the number of offset fields the header carries.
const NumSegments = int(numSegments)

func (s Segment) String() string {
	switch s {
	case SegCode:
		return "code"
	case SegConstants:
		return "constants"
	case SegGlobals:
		return "globals"
	case SegTemplates:
		return "templates"
	case SegObjectKeys:
		return "object_keys"
	default:
		return "unknown"
	}
}
