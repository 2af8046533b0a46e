package canvas

import (
	"image"
	"image/color"
	"math"

	xdraw "golang.org/x/image/draw"
)

// fill paints every pixel of img with c.
func fill(img *image.RGBA, c color.RGBA) {
	pix := img.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = c.R, c.G, c.B, c.A
	}
}

// paintSegment paints every pixel whose center lies within width/2 of the
// segment a-b. Painting the capsule gives round caps, and consecutive
// segments of one stroke overlap into round joins.
func paintSegment(img *image.RGBA, a, b Point, st Style) {
	r := st.Width / 2
	if r <= 0 {
		return
	}
	bounds := img.Bounds()
	minX := int(math.Floor(math.Min(a.X, b.X) - r))
	maxX := int(math.Ceil(math.Max(a.X, b.X) + r))
	minY := int(math.Floor(math.Min(a.Y, b.Y) - r))
	maxY := int(math.Ceil(math.Max(a.Y, b.Y) + r))
	clip := image.Rect(minX, minY, maxX+1, maxY+1).Intersect(bounds)
	if clip.Empty() {
		return
	}

	dx, dy := b.X-a.X, b.Y-a.Y
	lenSq := dx*dx + dy*dy
	r2 := r * r
	for y := clip.Min.Y; y < clip.Max.Y; y++ {
		py := float64(y) + 0.5
		for x := clip.Min.X; x < clip.Max.X; x++ {
			px := float64(x) + 0.5
			t := 0.0
			if lenSq > 0 {
				t = ((px-a.X)*dx + (py-a.Y)*dy) / lenSq
				t = math.Max(0, math.Min(1, t))
			}
			cx, cy := a.X+t*dx-px, a.Y+t*dy-py
			if cx*cx+cy*cy <= r2 {
				img.SetRGBA(x, y, st.Color)
			}
		}
	}
}

// FitRect returns the destination rectangle and uniform scale used to place
// an imgW x imgH image centered on a surfaceW x surfaceH surface. The scale
// is min(surfaceW/imgW, surfaceH/imgH) with no cap, so small images are
// scaled up to fill.
func FitRect(surfaceW, surfaceH, imgW, imgH int) (image.Rectangle, float64) {
	if imgW <= 0 || imgH <= 0 {
		return image.Rectangle{}, 0
	}
	scale := math.Min(float64(surfaceW)/float64(imgW), float64(surfaceH)/float64(imgH))
	w := float64(imgW) * scale
	h := float64(imgH) * scale
	x := (float64(surfaceW) - w) / 2
	y := (float64(surfaceH) - h) / 2
	rect := image.Rect(
		int(math.Round(x)), int(math.Round(y)),
		int(math.Round(x+w)), int(math.Round(y+h)),
	)
	return rect, scale
}

// drawFitted composites src onto dst inside rect, picking a kernel by
// scale direction.
func drawFitted(dst *image.RGBA, rect image.Rectangle, src image.Image, scale float64) {
	var s xdraw.Scaler = xdraw.CatmullRom
	if scale > 1 {
		s = xdraw.ApproxBiLinear
	}
	s.Scale(dst, rect, src, src.Bounds(), xdraw.Over, nil)
}
