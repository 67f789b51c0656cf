package vision

import (
	"image"
	"image/color"
	"image/draw"
)

func preprocessForFaces(img image.Image, w, h int) []float32 {
	return toCHW(resizeImage(img, w, h), [3]float32{127.5, 127.5, 127.5}, [3]float32{128, 128, 128})
}

func preprocessForEmbedding(img image.Image, w, h int) []float32 {
	return toCHW(resizeImage(img, w, h), [3]float32{127.5, 127.5, 127.5}, [3]float32{127.5, 127.5, 127.5})
}

// letterbox records how a frame was fitted into the square detector input.
type letterbox struct {
	scale  float32
	padX   float32
	padY   float32
	origW  int
	origH  int
	inputW int
	inputH int
}

func newLetterbox(origW, origH, inputW, inputH int) letterbox {
	scale := float32(inputW) / float32(origW)
	if s := float32(inputH) / float32(origH); s < scale {
		scale = s
	}
	newW := int(float32(origW) * scale)
	newH := int(float32(origH) * scale)
	return letterbox{
		scale:  scale,
		padX:   float32(inputW-newW) / 2,
		padY:   float32(inputH-newH) / 2,
		origW:  origW,
		origH:  origH,
		inputW: inputW,
		inputH: inputH,
	}
}

// toFrame maps a box in detector input space back to frame pixels.
func (lb letterbox) toFrame(b [4]float32) [4]float32 {
	return [4]float32{
		clampF((b[0]-lb.padX)/lb.scale, 0, float32(lb.origW)),
		clampF((b[1]-lb.padY)/lb.scale, 0, float32(lb.origH)),
		clampF((b[2]-lb.padX)/lb.scale, 0, float32(lb.origW)),
		clampF((b[3]-lb.padY)/lb.scale, 0, float32(lb.origH)),
	}
}

// preprocessForPPE letterboxes img onto a grey canvas and scales pixels to [0,1].
func preprocessForPPE(img image.Image, lb letterbox) []float32 {
	canvas := image.NewRGBA(image.Rect(0, 0, lb.inputW, lb.inputH))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: color.RGBA{R: 114, G: 114, B: 114, A: 255}}, image.Point{}, draw.Src)

	newW := int(float32(lb.origW) * lb.scale)
	newH := int(float32(lb.origH) * lb.scale)
	resized := resizeImage(img, newW, newH)
	offset := image.Pt(int(lb.padX), int(lb.padY))
	draw.Draw(canvas, resized.Bounds().Add(offset), resized, image.Point{}, draw.Src)

	return toCHW(canvas, [3]float32{0, 0, 0}, [3]float32{255, 255, 255})
}

// toCHW lays out img as planar RGB with pixel = (pixel - mean) / std.
func toCHW(img image.Image, mean, std [3]float32) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	data := make([]float32, 3*plane)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(x+b.Min.X, y+b.Min.Y).RGBA()
			i := y*w + x
			data[i] = (float32(r>>8) - mean[0]) / std[0]
			data[plane+i] = (float32(g>>8) - mean[1]) / std[1]
			data[2*plane+i] = (float32(bl>>8) - mean[2]) / std[2]
		}
	}
	return data
}

// resizeImage is a nearest-neighbour resize; model inputs tolerate it.
func resizeImage(img image.Image, w, h int) *image.RGBA {
	b := img.Bounds()
	srcW, srcH := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if srcW == 0 || srcH == 0 {
		return dst
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(x, y, img.At(b.Min.X+x*srcW/w, b.Min.Y+y*srcH/h))
		}
	}
	return dst
}

// cropFace cuts the box out of img with 10% padding on each side. It
// returns nil for an empty box.
func cropFace(img image.Image, bbox [4]float32) image.Image {
	b := img.Bounds()
	r := image.Rect(int(bbox[0]), int(bbox[1]), int(bbox[2]), int(bbox[3])).Intersect(b)
	if r.Empty() {
		return nil
	}
	padW, padH := r.Dx()/10, r.Dy()/10
	r = image.Rect(r.Min.X-padW, r.Min.Y-padH, r.Max.X+padW, r.Max.Y+padH).Intersect(b)

	crop := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(crop, crop.Bounds(), img, r.Min, draw.Src)
	return crop
}
