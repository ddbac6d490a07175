// Package viz renders the policy distributions produced by a model as an
// animated GIF: one frame per forward pass, one grayscale heatmap row per
// (env, agent), one cell per action. A debugging aid, not a training
// surface.
package viz

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"io"
	"math"

	"github.com/golang/freetype/truetype"
	"github.com/warpdrive/warpnet"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/math/fixed"
)

var regular *truetype.Font

const (
	dpi        = 144.0
	fontsize   = 12.0
	lineheight = 1.2
	cellSize   = 8
	frameDelay = 20 // hundredths of a second
)

func init() {
	var err error
	if regular, err = truetype.Parse(gomono.TTF); err != nil {
		panic(err)
	}
}

func grayPalette() color.Palette {
	p := make(color.Palette, 0, 256)
	for i := 0; i < 256; i++ {
		p = append(p, color.Gray{uint8(i)})
	}
	return p
}

// Encoder encodes forward states according to the warpnet.OutputEncoder
// interface. Probabilities of the first action dimension are drawn as a
// heatmap; the caption carries the policy tag and step number.
type Encoder struct {
	H, W int
	font.Drawer

	out *gif.GIF
	io.Writer
	face font.Face

	padH, padW  int // padding so everything don't start at the topleft
	initialized bool
}

// NewEncoder writing frames to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		H:    -1,
		W:    -1,
		padH: 10,
		padW: 10,

		Writer: w,
		Drawer: font.Drawer{
			Src: image.Black,
		},
		out: &gif.GIF{LoopCount: -1},
	}
}

// Encode one forward pass.
func (enc *Encoder) Encode(fs warpnet.ForwardState) error {
	probs := fs.Probs()
	if len(probs) == 0 {
		return nil
	}
	head := probs[0]
	shp := head.Shape()
	cols := shp[len(shp)-1]
	rows := shp.TotalSize() / cols
	data := head.Data().([]float32)

	dy := int(math.Ceil(fontsize * lineheight * dpi / 72))
	if !enc.initialized {
		// lazy init of frame geometry
		enc.face = truetype.NewFace(regular, &truetype.Options{
			Size:    fontsize,
			DPI:     dpi,
			Hinting: font.HintingFull,
		})
		enc.Drawer.Src = image.Black
		enc.Drawer.Face = enc.face

		caption := font.MeasureString(enc.Face, dummyCaption).Ceil()
		enc.W = maxInt(cols*cellSize, caption) + 2*enc.padW
		enc.H = rows*cellSize + 2*dy + 2*enc.padH
		enc.initialized = true
	}

	im := image.NewPaletted(image.Rect(0, 0, enc.W, enc.H), grayPalette())
	draw.Draw(im, im.Bounds(), image.White, image.ZP, draw.Src)

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			p := data[r*cols+c]
			shade := uint8(255 - 255*clamp01(p))
			cell := image.Rect(enc.padW+c*cellSize, enc.padH+r*cellSize, enc.padW+(c+1)*cellSize, enc.padH+(r+1)*cellSize)
			draw.Draw(im, cell, &image.Uniform{color.Gray{shade}}, image.ZP, draw.Src)
		}
	}

	enc.Dst = im
	y := enc.padH + rows*cellSize + dy
	enc.Dot = fixed.P(enc.padW, y)
	enc.DrawString(fmt.Sprintf("Policy %s", fs.Policy()))
	y += dy
	enc.Dot = fixed.P(enc.padW, y)
	enc.DrawString(fmt.Sprintf("Step: %d", fs.Step()))

	enc.out.Image = append(enc.out.Image, im)
	enc.out.Delay = append(enc.out.Delay, frameDelay)
	return nil
}

// Flush writes the gif into the writer
func (enc *Encoder) Flush() error { return gif.EncodeAll(enc.Writer, enc.out) }

const dummyCaption = `Policy abcdefgh, Step: 100000`

func clamp01(p float32) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return float64(p)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
