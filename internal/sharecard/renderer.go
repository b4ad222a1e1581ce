// Package sharecard renders a PNG result card for a finished battle. The card
// geometry is generated as SVG and rasterized; names and counts are overlaid
// as text afterwards since the SVG rasterizer does not handle text elements.
package sharecard

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	cardWidth  = 640
	cardHeight = 360

	barX      = 60
	barHeight = 34
	barMaxW   = 520
	bar1Y     = 150
	bar2Y     = 240
)

// Card carries everything the renderer needs about a finished battle.
type Card struct {
	Mode         string
	Player1Name  string
	Player2Name  string
	Player1Votes int
	Player2Votes int
}

type Renderer struct{}

func NewRenderer() *Renderer { return &Renderer{} }

// RenderPNG produces the share card image.
func (r *Renderer) RenderPNG(ctx context.Context, c Card) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	svg := buildSVG(c)
	icon, err := oksvg.ReadIconStream(strings.NewReader(svg))
	if err != nil {
		return nil, fmt.Errorf("parse card svg: %w", err)
	}
	icon.SetTarget(0, 0, cardWidth, cardHeight)

	img := image.NewRGBA(image.Rect(0, 0, cardWidth, cardHeight))
	scanner := rasterx.NewScannerGV(cardWidth, cardHeight, img, img.Bounds())
	raster := rasterx.NewDasher(cardWidth, cardHeight, scanner)
	icon.Draw(raster, 1.0)

	drawLabels(img, c)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func buildSVG(c Card) string {
	total := c.Player1Votes + c.Player2Votes
	w1, w2 := 6, 6 // stub width so a zero-vote side still shows a sliver
	if total > 0 {
		w1 = max(6, barMaxW*c.Player1Votes/total)
		w2 = max(6, barMaxW*c.Player2Votes/total)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`,
		cardWidth, cardHeight, cardWidth, cardHeight)
	// backdrop and header band
	fmt.Fprintf(&b, `<rect x="0" y="0" width="%d" height="%d" fill="#0d0d0f"/>`, cardWidth, cardHeight)
	fmt.Fprintf(&b, `<rect x="0" y="0" width="%d" height="72" fill="#1a1a20"/>`, cardWidth)
	fmt.Fprintf(&b, `<rect x="0" y="70" width="%d" height="4" fill="#ff6600"/>`, cardWidth)
	// tally tracks and fills
	fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d" rx="8" fill="#232329"/>`, barX, bar1Y, barMaxW, barHeight)
	fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d" rx="8" fill="#ff6600"/>`, barX, bar1Y, w1, barHeight)
	fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d" rx="8" fill="#232329"/>`, barX, bar2Y, barMaxW, barHeight)
	fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d" rx="8" fill="#2f80ed"/>`, barX, bar2Y, w2, barHeight)
	b.WriteString(`</svg>`)
	return b.String()
}

func drawLabels(img *image.RGBA, c Card) {
	white := color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	dim := color.NRGBA{R: 160, G: 164, B: 178, A: 255}

	title := "SPITFIRE BATTLE"
	if c.Mode != "" {
		title = fmt.Sprintf("SPITFIRE BATTLE - %s", strings.ToUpper(c.Mode))
	}
	drawString(img, title, barX, 45, white)
	drawString(img, fmt.Sprintf("@%s", c.Player1Name), barX, bar1Y-12, white)
	drawString(img, fmt.Sprintf("%d votes", c.Player1Votes), barX+barMaxW-70, bar1Y-12, dim)
	drawString(img, fmt.Sprintf("@%s", c.Player2Name), barX, bar2Y-12, white)
	drawString(img, fmt.Sprintf("%d votes", c.Player2Votes), barX+barMaxW-70, bar2Y-12, dim)
}

func drawString(img *image.RGBA, s string, x, y int, col color.NRGBA) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}
