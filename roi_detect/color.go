package roidetect

import "math"

// hsvColor represents a color in HSV space.
type hsvColor struct {
	H float64 // Hue in degrees [0, 360)
	S float64 // Saturation [0, 1]
	V float64 // Value [0, 1]
}

// rgbToHSV converts RGB (0-255) to HSV.
func rgbToHSV(r, g, b uint8) hsvColor {
	rf := float64(r) / 255.0
	gf := float64(g) / 255.0
	bf := float64(b) / 255.0

	maxC := math.Max(rf, math.Max(gf, bf))
	minC := math.Min(rf, math.Min(gf, bf))
	delta := maxC - minC

	var h float64
	switch {
	case delta == 0:
		h = 0
	case maxC == rf:
		h = 60 * math.Mod((gf-bf)/delta, 6)
	case maxC == gf:
		h = 60 * ((bf-rf)/delta + 2)
	case maxC == bf:
		h = 60 * ((rf-gf)/delta + 4)
	}
	if h < 0 {
		h += 360
	}

	var s float64
	if maxC > 0 {
		s = delta / maxC
	}

	return hsvColor{H: h, S: s, V: maxC}
}

// IsFruitColored reports whether an RGB color falls in the configured fruit
// hue band. The band may wrap through 0 degrees (HueMin > HueMax), which is
// how red fruit is configured.
func IsFruitColored(r, g, b uint8, cfg ColorConfig) bool {
	hsv := rgbToHSV(r, g, b)
	if hsv.S < cfg.MinSaturation || hsv.V < cfg.MinValue {
		return false
	}
	if cfg.HueMin <= cfg.HueMax {
		return hsv.H >= cfg.HueMin && hsv.H <= cfg.HueMax
	}
	return hsv.H >= cfg.HueMin || hsv.H <= cfg.HueMax
}
