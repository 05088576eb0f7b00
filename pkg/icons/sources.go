package icons

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"math"
	"net/http"
	"strings"

	"github.com/sudorandom/event-globe/pkg/categories"
	"github.com/sudorandom/event-globe/pkg/utils"
)

var ErrUnknownIcon = errors.New("unknown icon")

// GlyphSource draws each category's marker procedurally: a disc in the category
// color with a soft rim and a light core.
type GlyphSource struct {
	Categories *categories.Registry
	Size       int
}

func (g GlyphSource) Load(ctx context.Context, theme categories.Theme, id string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, c := range g.Categories.All() {
		if c.IconID == id {
			return Glyph(c.Color(theme), g.Size), nil
		}
	}
	return nil, fmt.Errorf("%s: %w", id, ErrUnknownIcon)
}

// Glyph renders a size x size marker.
func Glyph(c color.RGBA, size int) *image.RGBA {
	if size <= 0 {
		size = 32
	}
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	center, maxDist := float64(size)/2.0, float64(size)/2.0
	outer, core := 0.85, 0.35
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x)+0.5-center, float64(y)+0.5-center
			dist := math.Sqrt(dx*dx + dy*dy)
			if dist >= maxDist {
				continue
			}
			alpha := 1.0
			if dist > maxDist*outer {
				alpha = math.Cos(((dist - maxDist*outer) / (maxDist * (1 - outer))) * (math.Pi / 2))
			}
			r, gg, b := float64(c.R), float64(c.G), float64(c.B)
			if dist < maxDist*core {
				mix := 1 - dist/(maxDist*core)
				r, gg, b = r+(255-r)*mix*0.6, gg+(255-gg)*mix*0.6, b+(255-b)*mix*0.6
			}
			a := alpha * 255
			// image.RGBA is premultiplied.
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(r * alpha),
				G: uint8(gg * alpha),
				B: uint8(b * alpha),
				A: uint8(a),
			})
		}
	}
	return img
}

// HTTPSource fetches {BaseURL}/{theme}/{id}.png, through the on-disk cache when
// CacheDir is set.
type HTTPSource struct {
	BaseURL  string
	Client   *http.Client
	CacheDir string
}

func (h HTTPSource) URL(theme categories.Theme, id string) string {
	return fmt.Sprintf("%s/%s/%s.png", strings.TrimRight(h.BaseURL, "/"), theme, id)
}

func (h HTTPSource) Load(ctx context.Context, theme categories.Theme, id string) (image.Image, error) {
	r, err := utils.GetCachedReader(ctx, h.Client, h.URL(theme, id), h.CacheDir, "[ICONS "+theme.String()+"]")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := r.Close(); err != nil {
			log.Printf("[ICONS] Error closing %s: %v", id, err)
		}
	}()
	img, err := png.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	return img, nil
}

// Fallback tries each source in turn and returns the first image found.
type Fallback []Source

func (f Fallback) Load(ctx context.Context, theme categories.Theme, id string) (image.Image, error) {
	var errs []error
	for _, s := range f {
		img, err := s.Load(ctx, theme, id)
		if err == nil {
			return img, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%s: %w", id, ErrUnknownIcon)
	}
	return nil, errors.Join(errs...)
}
