package models

import "testing"

func TestDetectionValid(t *testing.T) {
	cases := []struct {
		name string
		d    Detection
		want bool
	}{
		{"ok", Detection{X1: 10, Y1: 10, X2: 20, Y2: 20}, true},
		{"touching edges", Detection{X1: 0, Y1: 0, X2: 1280, Y2: 720}, true},
		{"degenerate x", Detection{X1: 10, Y1: 10, X2: 10, Y2: 20}, false},
		{"inverted y", Detection{X1: 10, Y1: 20, X2: 20, Y2: 10}, false},
		{"negative", Detection{X1: -1, Y1: 0, X2: 10, Y2: 10}, false},
		{"out of frame", Detection{X1: 10, Y1: 10, X2: 1281, Y2: 20}, false},
	}
	for _, tc := range cases {
		if got := tc.d.Valid(1280, 720); got != tc.want {
			t.Errorf("%s: Valid = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestDetectionPadded(t *testing.T) {
	d := Detection{X1: 100, Y1: 100, X2: 200, Y2: 200}
	x1, y1, x2, y2 := d.Padded(0.15, 1280, 720)
	// 100-wide box grows by 15 on each side.
	if x1 != 85 || y1 != 85 || x2 != 215 || y2 != 215 {
		t.Errorf("padded = %d,%d,%d,%d", x1, y1, x2, y2)
	}
}

func TestDetectionPaddedClips(t *testing.T) {
	d := Detection{X1: 0, Y1: 0, X2: 100, Y2: 100}
	x1, y1, _, _ := d.Padded(0.15, 1280, 720)
	if x1 != 0 || y1 != 0 {
		t.Errorf("padding escaped the frame: %d,%d", x1, y1)
	}

	d = Detection{X1: 1200, Y1: 650, X2: 1280, Y2: 720}
	_, _, x2, y2 := d.Padded(0.15, 1280, 720)
	if x2 != 1280 || y2 != 720 {
		t.Errorf("padding escaped the frame: %d,%d", x2, y2)
	}
}

func TestClassString(t *testing.T) {
	if ClassFace.String() != "face" {
		t.Errorf("face class = %s", ClassFace.String())
	}
	if ClassID(7).String() != "class_7" {
		t.Errorf("unknown class = %s", ClassID(7).String())
	}
}
