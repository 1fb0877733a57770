package selection

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/xxxsen/redpen/internal/textrange"
)

// State is the ephemeral product of a captured text selection. It is never
// persisted; it drives the floating action bar until the selection is
// committed to an annotation or dismissed.
type State struct {
	Range      *textrange.Range
	Text       string
	Position   Anchor
	PageNumber int
}

// Anchor is the on-screen position for the floating action bar, relative to
// the scrollable document container so it stays put under scroll and zoom.
type Anchor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Input carries what the client reports on pointer-up: the raw selected
// text, the resolved range into the rendered page tree, the selection's
// bounding rectangle and the container's rectangle (both viewport-relative).
type Input struct {
	Range         *textrange.Range
	Text          string
	SelectionRect Rect
	ContainerRect Rect
	ScrollTop     float64
	ScrollLeft    float64
}

type Options struct {
	// ActionBarWidthPx is the expected action bar width; the anchor centers
	// on the selection by shifting left half of it.
	ActionBarWidthPx int
}

// Capture turns a raw selection into a State, or nil when the selection is
// dismissed: collapsed, whitespace-only, or outside any page element. The
// stored range is a clone so later offset computation stays stable even if
// the live selection mutates.
func Capture(in Input, opts Options) *State {
	if in.Range == nil || in.Range.Collapsed() {
		return nil
	}
	if strings.TrimSpace(in.Text) == "" {
		return nil
	}
	page := pageNumberOf(in.Range.StartNode)
	if page <= 0 {
		return nil
	}
	return &State{
		Range:      in.Range.Clone(),
		Text:       in.Text,
		Position:   anchorFor(in, opts),
		PageNumber: page,
	}
}

func anchorFor(in Input, opts Options) Anchor {
	center := in.SelectionRect.Left + in.SelectionRect.Width/2
	x := center - float64(opts.ActionBarWidthPx)/2 - in.ContainerRect.Left + in.ScrollLeft
	y := in.SelectionRect.Top - in.ContainerRect.Top + in.ScrollTop
	return Anchor{X: x, Y: y}
}

func pageNumberOf(n *html.Node) int {
	_, v := textrange.AncestorWithAttr(n, textrange.AttrPage)
	if v == "" {
		return 0
	}
	page, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return page
}
