package videomixer

import "github.com/p1stream/p1stream-go/internal/plugin"

// rgbaToI420 implements the RGB→I420 kernel from Start's description: one Y
// sample per pixel plus a single UV sample per 2×2 block (taken from the
// block's top-left pixel), using the standard
// BT.601 coefficients. It is a pure function of rgba for a fixed (w,h): two
// calls with identical input produce byte-identical output, matching the
// "YUV kernel is a pure function of its input image" property.
func rgbaToI420(rgba []byte, w, h int, pic *plugin.Picture) {
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			r, g, b := normalized(rgba[i+0]), normalized(rgba[i+1]), normalized(rgba[i+2])
			pic.Y[y*w+x] = clampByte(16 + 65.481*r + 128.553*g + 24.966*b)
		}
	}

	cw, ch := w/2, h/2
	for cy := 0; cy < ch; cy++ {
		for cx := 0; cx < cw; cx++ {
			x, y := cx*2, cy*2
			i := (y*w + x) * 4
			r, g, b := normalized(rgba[i+0]), normalized(rgba[i+1]), normalized(rgba[i+2])
			pic.U[cy*cw+cx] = clampByte(128 - 37.797*r - 74.203*g + 112.0*b)
			pic.V[cy*cw+cx] = clampByte(128 + 112.0*r - 93.786*g - 18.214*b)
		}
	}
}

// normalized maps an 8-bit channel value to [0,1], matching the kernel
// source's own texture-sampled r/g/b inputs.
func normalized(c byte) float32 { return float32(c) / 255 }

func clampByte(v float32) byte {
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	return byte(v)
}
