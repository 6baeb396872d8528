package mediautil

import (
	"strconv"
	"strings"
)

// HeightToResolution converts a video height to a resolution label.
// This is the canonical label function used by the resolver and the engine.
func HeightToResolution(height int) string {
	switch {
	case height >= 2160:
		return "2160p"
	case height > 0:
		return strconv.Itoa(height) + "p"
	default:
		return ""
	}
}

// ResolutionToHeight parses a label such as "720p" or "1080p60" back to its
// height. It returns 0 for labels it does not understand.
func ResolutionToHeight(label string) int {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "4k" {
		return 2160
	}
	i := strings.IndexByte(label, 'p')
	if i <= 0 {
		return 0
	}
	h, err := strconv.Atoi(label[:i])
	if err != nil || h < 0 {
		return 0
	}
	return h
}

// ParseDimensions parses an HLS RESOLUTION attribute ("1280x720").
func ParseDimensions(s string) (width, height int, ok bool) {
	w, h, found := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !found {
		return 0, 0, false
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return 0, 0, false
	}
	height, err = strconv.Atoi(h)
	if err != nil || height <= 0 {
		return 0, 0, false
	}
	return width, height, true
}

// DimensionsForLabel returns 16:9 dimensions for a resolution label.
func DimensionsForLabel(label string) (width, height int) {
	height = ResolutionToHeight(label)
	if height == 0 {
		return 0, 0
	}
	width = (height*16 + 8) / 9
	return width, height
}

// AspectRatio returns width/height, or 0 when height is not positive.
func AspectRatio(width, height int) float64 {
	if height <= 0 || width <= 0 {
		return 0
	}
	return float64(width) / float64(height)
}
