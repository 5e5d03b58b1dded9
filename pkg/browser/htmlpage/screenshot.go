package htmlpage

import (
	"bytes"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
)

// placeholderPNG renders a small solid image whose color is derived from the
// page URL, so identical pages produce identical screenshots.
func placeholderPNG(w, h int, url string) ([]byte, error) {
	if w <= 0 || h <= 0 {
		w, h = 1280, 720
	}
	w, h = w/20, h/20
	if w == 0 {
		w = 1
	}
	if h == 0 {
		h = 1
	}
	sum := fnv.New32a()
	sum.Write([]byte(url))
	v := sum.Sum32()
	c := color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
