package videomixer

import "github.com/p1stream/p1stream-go/internal/plugin"

// compositeInto draws src's BGRA texture onto target (width x height RGBA)
// within the clip-space destination rectangle, sampling from the
// texture-space source rectangle, mirroring step 3's vertex quad
// {(x1,y1,u1,v1),(x1,y2,u1,v2),(x2,y1,u2,v1),(x2,y2,u2,v2)} drawn as a
// triangle strip — here evaluated directly per destination pixel rather
// than rasterized, since there is no GPU pipeline to rasterize it.
func compositeInto(target []byte, width, height int, tex *plugin.Texture, dest, src plugin.Rect) {
	if tex == nil || tex.Width <= 0 || tex.Height <= 0 {
		return
	}

	// Clip space [-1,+1] maps to pixel space [0,width)x[0,height)], with
	// the original's +Y-up convention: y1 is the bottom edge.
	px1 := clampInt(int((dest.X1+1)/2*float32(width)), 0, width)
	px2 := clampInt(int((dest.X2+1)/2*float32(width)), 0, width)
	py1 := clampInt(int((1-dest.Y2)/2*float32(height)), 0, height)
	py2 := clampInt(int((1-dest.Y1)/2*float32(height)), 0, height)
	if px2 <= px1 || py2 <= py1 {
		return
	}

	dw := float32(px2 - px1)
	dh := float32(py2 - py1)

	for py := py1; py < py2; py++ {
		v := src.Y1 + (src.Y2-src.Y1)*(float32(py-py1)+0.5)/dh
		ty := clampInt(int(v*float32(tex.Height)), 0, tex.Height-1)
		for px := px1; px < px2; px++ {
			u := src.X1 + (src.X2-src.X1)*(float32(px-px1)+0.5)/dw
			tx := clampInt(int(u*float32(tex.Width)), 0, tex.Width-1)

			ti := (ty*tex.Width + tx) * 4
			b, g, r, a := tex.Pixels[ti], tex.Pixels[ti+1], tex.Pixels[ti+2], tex.Pixels[ti+3]

			di := (py*width + px) * 4
			target[di+0], target[di+1], target[di+2], target[di+3] = r, g, b, a
		}
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
