package imaging

import (
	"image"

	"golang.org/x/image/draw"
)

// Preprocessing constants. They are not configurable.
const (
	ScaleFactor = 2
	Threshold   = 120
)

// SharpenKernel is applied after upscaling.
var SharpenKernel = [3][3]int{
	{0, -1, 0},
	{-1, 5, -1},
	{0, -1, 0},
}

// Preprocess normalizes a RawImage for text recognition:
// grayscale, 2x bilinear upscale, 3x3 sharpen, binarize at Threshold.
// The input is never modified.
func Preprocess(img image.Image) *image.Gray {
	gray := Grayscale(img)
	up := Upscale(gray, ScaleFactor)
	sharp := Sharpen(up)
	return Binarize(sharp, Threshold)
}

// Grayscale converts img with the BT.601 luma weights (0.299, 0.587, 0.114),
// in the same 14-bit fixed point OpenCV uses.
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	if g, ok := img.(*image.Gray); ok {
		for y := 0; y < b.Dy(); y++ {
			copy(out.Pix[y*out.Stride:y*out.Stride+b.Dx()], g.Pix[g.PixOffset(b.Min.X, b.Min.Y+y):])
		}
		return out
	}
	for y := 0; y < b.Dy(); y++ {
		row := out.Pix[y*out.Stride:]
		for x := 0; x < b.Dx(); x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			row[x] = luma(uint8(r>>8), uint8(g>>8), uint8(bl>>8))
		}
	}
	return out
}

func luma(r, g, b uint8) uint8 {
	const (
		wr    = 4899 // 0.299 * 2^14
		wg    = 9617 // 0.587 * 2^14
		wb    = 1868 // 0.114 * 2^14
		shift = 14
	)
	return uint8((int(r)*wr + int(g)*wg + int(b)*wb + 1<<(shift-1)) >> shift)
}

// Upscale resizes by an integer factor with bilinear interpolation.
func Upscale(src *image.Gray, factor int) *image.Gray {
	if factor <= 1 {
		return cloneGray(src)
	}
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// Sharpen convolves src with SharpenKernel. Borders are mirrored without
// repeating the edge pixel and results saturate to [0,255].
func Sharpen(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	at := func(x, y int) int {
		return int(src.Pix[src.PixOffset(b.Min.X+reflect101(x, w), b.Min.Y+reflect101(y, h))])
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc int
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					k := SharpenKernel[ky+1][kx+1]
					if k == 0 {
						continue
					}
					acc += k * at(x+kx, y+ky)
				}
			}
			out.Pix[y*out.Stride+x] = saturate(acc)
		}
	}
	return out
}

// Binarize maps pixels above threshold to 255 and the rest to 0.
// Binarizing an image that only holds 0 and 255 returns the same pixels.
func Binarize(src *image.Gray, threshold uint8) *image.Gray {
	b := src.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		in := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
		row := out.Pix[y*out.Stride:]
		for x := 0; x < b.Dx(); x++ {
			if in[x] > threshold {
				row[x] = 255
			} else {
				row[x] = 0
			}
		}
	}
	return out
}

// IsBinary reports whether every pixel is 0 or 255.
func IsBinary(img *image.Gray) bool {
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < b.Dx(); x++ {
			if row[x] != 0 && row[x] != 255 {
				return false
			}
		}
	}
	return true
}

func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*(n-1) - i
		}
	}
	return i
}

func saturate(v int) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v)
	}
}

func cloneGray(src *image.Gray) *image.Gray {
	b := src.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		copy(out.Pix[y*out.Stride:y*out.Stride+b.Dx()], src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):])
	}
	return out
}
