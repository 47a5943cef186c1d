package roidetect

import (
	"math"
	"testing"
)

func TestRGBToHSV(t *testing.T) {
	cases := []struct {
		r, g, b uint8
		want    hsvColor
	}{
		{255, 0, 0, hsvColor{H: 0, S: 1, V: 1}},
		{0, 255, 0, hsvColor{H: 120, S: 1, V: 1}},
		{0, 0, 255, hsvColor{H: 240, S: 1, V: 1}},
		{255, 0, 255, hsvColor{H: 300, S: 1, V: 1}},
		{128, 128, 128, hsvColor{H: 0, S: 0, V: 128.0 / 255}},
	}
	for _, c := range cases {
		got := rgbToHSV(c.r, c.g, c.b)
		if math.Abs(got.H-c.want.H) > 1e-9 || math.Abs(got.S-c.want.S) > 1e-9 || math.Abs(got.V-c.want.V) > 1e-9 {
			t.Errorf("rgbToHSV(%d,%d,%d) = %+v, want %+v", c.r, c.g, c.b, got, c.want)
		}
	}
}

func TestIsFruitColored(t *testing.T) {
	red := DefaultConfig().Color
	green := ColorConfig{HueMin: 80, HueMax: 160, MinSaturation: 0.3, MinValue: 0.2}

	cases := []struct {
		name    string
		r, g, b uint8
		cfg     ColorConfig
		want    bool
	}{
		{"red pepper", 200, 30, 30, red, true},
		{"crimson wraps", 200, 20, 60, red, true},
		{"leaf in red band", 40, 160, 40, red, false},
		{"grey", 120, 120, 120, red, false},
		{"dark red too dim", 30, 2, 2, red, false},
		{"leaf in green band", 40, 160, 40, green, true},
		{"red in green band", 200, 30, 30, green, false},
	}
	for _, c := range cases {
		if got := IsFruitColored(c.r, c.g, c.b, c.cfg); got != c.want {
			t.Errorf("%s: IsFruitColored = %v, want %v (hsv %+v)", c.name, got, c.want, rgbToHSV(c.r, c.g, c.b))
		}
	}
}
