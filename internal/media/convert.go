package media

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// RGBAToI420 converts a validated RGBA frame to planar 4:2:0 YCbCr as VP9
// expects it. Odd dimensions are rounded up for the chroma planes.
func RGBAToI420(f VideoFrame) *image.YCbCr {
	img := image.NewYCbCr(image.Rect(0, 0, f.Width, f.Height), image.YCbCrSubsampleRatio420)
	stride := f.Width * BytesPerPixel
	for y := 0; y < f.Height; y++ {
		row := f.Pixels[y*stride : (y+1)*stride]
		for x := 0; x < f.Width; x++ {
			p := row[x*BytesPerPixel:]
			yy, cb, cr := color.RGBToYCbCr(p[0], p[1], p[2])
			img.Y[img.YOffset(x, y)] = yy
			if x%2 == 0 && y%2 == 0 {
				ci := img.COffset(x, y)
				img.Cb[ci] = cb
				img.Cr[ci] = cr
			}
		}
	}
	return img
}

// RenderToCanvas scales a decoded picture into an RGBA canvas of the given
// size. A zero canvas keeps the source dimensions.
func RenderToCanvas(src image.Image, width, height int) *image.RGBA {
	sb := src.Bounds()
	if width <= 0 || height <= 0 {
		width, height = sb.Dx(), sb.Dy()
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if width == sb.Dx() && height == sb.Dy() {
		draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Src)
		return dst
	}
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, sb, draw.Src, nil)
	return dst
}

// FrameFromImage wraps an RGBA canvas as a VideoFrame without copying.
func FrameFromImage(img *image.RGBA) VideoFrame {
	b := img.Bounds()
	return VideoFrame{Width: b.Dx(), Height: b.Dy(), Pixels: img.Pix}
}
