package sharecard

import (
	"bytes"
	"context"
	"image/png"
	"testing"
)

func TestRenderPNG(t *testing.T) {
	r := NewRenderer()
	data, err := r.RenderPNG(context.Background(), Card{
		Mode:         "freestyle",
		Player1Name:  "mc_alpha",
		Player2Name:  "mc_bravo",
		Player1Votes: 12,
		Player2Votes: 7,
	})
	if err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a valid png: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != cardWidth || b.Dy() != cardHeight {
		t.Fatalf("card size = %dx%d, want %dx%d", b.Dx(), b.Dy(), cardWidth, cardHeight)
	}
}

func TestRenderPNGZeroVotes(t *testing.T) {
	r := NewRenderer()
	data, err := r.RenderPNG(context.Background(), Card{
		Player1Name: "mc_alpha",
		Player2Name: "mc_bravo",
	})
	if err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("output is not a valid png: %v", err)
	}
}

func TestRenderPNGCancelledContext(t *testing.T) {
	r := NewRenderer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.RenderPNG(ctx, Card{}); err == nil {
		t.Fatalf("expected context error")
	}
}
