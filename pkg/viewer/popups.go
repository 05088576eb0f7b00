package viewer

import (
	"image/color"
	"strings"

	"github.com/sudorandom/event-globe/pkg/mapengine"
)

const (
	popupPad     = 10.0
	popupMaxW    = 380.0
	popupGap     = 14.0
	headerSize   = 15.0
	bodySize     = 13.0
	lineSpacing  = 1.45
	notClickable = -2
	headerItem   = -1
	ellipsis     = "…"
)

var defaultAccent = color.RGBA{230, 230, 230, 255}

type rect struct{ x, y, w, h float64 }

func (r rect) contains(x, y float64) bool {
	return x >= r.x && x < r.x+r.w && y >= r.y && y < r.y+r.h
}

type popupLine struct {
	text  string
	size  float64
	alpha float32
	area  rect
	// item is the index passed to Trigger: headerItem, an item index, or notClickable.
	item int
}

type popupBox struct {
	id     string
	frame  rect
	accent color.RGBA
	lines  []popupLine
}

// measureFunc returns the rendered width of s at the given font size.
type measureFunc func(s string, size float64) float64

func truncate(s string, size, maxW float64, measure measureFunc) string {
	if measure(s, size) <= maxW {
		return s
	}
	r := []rune(s)
	for len(r) > 0 {
		r = r[:len(r)-1]
		t := strings.TrimRight(string(r), " ") + ellipsis
		if measure(t, size) <= maxW {
			return t
		}
	}
	return ellipsis
}

// layoutPopup places a popup above its anchor, kept inside the screen.
func layoutPopup(p mapengine.Popup, anchor mapengine.ScreenPoint, screenW, screenH float64, measure measureFunc) popupBox {
	c := p.Content
	box := popupBox{id: p.ID, accent: c.Color}
	if box.accent.A == 0 {
		box.accent = defaultAccent
	}

	add := func(s string, size float64, alpha float32, item int) {
		if s != "" {
			box.lines = append(box.lines, popupLine{text: s, size: size, alpha: alpha, item: item})
		}
	}
	header := notClickable
	if c.HeaderAction != nil {
		header = headerItem
	}
	add(c.Header, headerSize, 1, header)
	add(c.Description, bodySize, 0.7, notClickable)
	for i, it := range c.Items {
		label := it.Title
		if it.Subtitle != "" {
			label += " · " + it.Subtitle
		}
		item := notClickable
		if it.Action != nil {
			item = i
		}
		add(label, bodySize, 0.9, item)
	}
	add(c.OverflowNote(), bodySize, 0.5, notClickable)
	add(c.EmptyNote(), bodySize, 0.5, notClickable)

	maxText := popupMaxW - 2*popupPad
	w, h := 0.0, popupPad
	for i := range box.lines {
		l := &box.lines[i]
		l.text = truncate(l.text, l.size, maxText, measure)
		if tw := measure(l.text, l.size); tw > w {
			w = tw
		}
		lh := l.size * lineSpacing
		l.area = rect{y: h, h: lh}
		h += lh
	}
	w += 2 * popupPad
	h += popupPad

	x := anchor.X - w/2
	y := anchor.Y - h - popupGap
	if y < 0 {
		y = anchor.Y + popupGap
	}
	x = clamp(x, 0, screenW-w)
	y = clamp(y, 0, screenH-h)
	box.frame = rect{x, y, w, h}
	for i := range box.lines {
		l := &box.lines[i]
		l.area = rect{x: x, y: y + l.area.y, w: w, h: l.area.h}
	}
	return box
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// hitPopup finds the topmost popup under (x, y) and the clickable line, if any.
func hitPopup(boxes []popupBox, x, y float64) (id string, item int, inside bool) {
	for i := len(boxes) - 1; i >= 0; i-- {
		b := boxes[i]
		if !b.frame.contains(x, y) {
			continue
		}
		for _, l := range b.lines {
			if l.item != notClickable && l.area.contains(x, y) {
				return b.id, l.item, true
			}
		}
		return b.id, notClickable, true
	}
	return "", notClickable, false
}
