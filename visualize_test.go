package roiplanner

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/viam-labs/motion-tools/client/colorutil"
)

func TestViewpointColors(t *testing.T) {
	got := viewpointColors(3, 1)
	if diff := cmp.Diff([]string{"blue", "green", "blue"}, got); diff != "" {
		t.Errorf("colors mismatch (-want +got):\n%s", diff)
	}
	for _, c := range got {
		if _, ok := colorutil.Colors[c]; !ok {
			t.Errorf("%q is not a visualizer color", c)
		}
	}
	if colorutil.NamedColorToHex(chosenColor) == colorutil.NamedColorToHex(candidateColor) {
		t.Error("chosen viewpoint is drawn like the other candidates")
	}
	for _, c := range viewpointColors(2, -1) {
		if c != candidateColor {
			t.Errorf("no candidate chosen, got %q", c)
		}
	}
}
