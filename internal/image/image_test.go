package image

import "testing"

func TestHeaderSize(t *testing.T) {
	if HeaderSize != 40 {
		t.Fatalf("HeaderSize = %d, want 40", HeaderSize)
	}
	if NumSegments != 5 {
		t.Fatalf("NumSegments = %d, want 5", NumSegments)
	}
}

func TestSegmentString(t *testing.T) {
	want := map[Segment]string{
		SegCode:       "code",
		SegConstants:  "constants",
		SegGlobals:    "globals",
		SegTemplates:  "templates",
		SegObjectKeys: "object_keys",
	}
	for seg, name := range want {
		if got := seg.String(); got != name {
			t.Errorf("Segment(%d).String() = %q, want %q", seg, got, name)
		}
	}
}
