package imaging

import (
	"fmt"
	"image"
)

// Measure computes the average-lightness score (0-100) and the dominant
// colour ("#rrggbb") of m. Pixels are sampled on a grid capped at roughly
// 64x64 so large images stay cheap to analyse; the caller is expected to
// hand in the smallest generated variant anyway.
func Measure(m image.Image) (int, string) {
	bounds := m.Bounds()
	stepX := bounds.Dx() / 64
	if stepX < 1 {
		stepX = 1
	}
	stepY := bounds.Dy() / 64
	if stepY < 1 {
		stepY = 1
	}

	// 4 bits per channel: 4096 histogram buckets.
	type bucket struct {
		count   int
		r, g, b uint64
	}
	hist := make(map[uint16]*bucket)

	var lumaSum uint64
	var samples uint64

	for y := bounds.Min.Y; y < bounds.Max.Y; y += stepY {
		for x := bounds.Min.X; x < bounds.Max.X; x += stepX {
			r, g, b, _ := m.At(x, y).RGBA()
			r8, g8, b8 := r>>8, g>>8, b>>8

			// Rec. 601 luma.
			lumaSum += (299*uint64(r8) + 587*uint64(g8) + 114*uint64(b8)) / 1000
			samples++

			key := uint16(r8>>4)<<8 | uint16(g8>>4)<<4 | uint16(b8>>4)
			bk, ok := hist[key]
			if !ok {
				bk = &bucket{}
				hist[key] = bk
			}
			bk.count++
			bk.r += uint64(r8)
			bk.g += uint64(g8)
			bk.b += uint64(b8)
		}
	}
	if samples == 0 {
		return 0, "#000000"
	}

	brightness := int(lumaSum * 100 / (samples * 255))

	var top *bucket
	var topKey uint16
	for key, bk := range hist {
		if top == nil || bk.count > top.count || (bk.count == top.count && key < topKey) {
			top = bk
			topKey = key
		}
	}
	n := uint64(top.count)
	dominant := fmt.Sprintf("#%02x%02x%02x", top.r/n, top.g/n, top.b/n)
	return brightness, dominant
}
