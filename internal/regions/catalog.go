// Package regions holds the static table of screenshot sub-areas that are
// cropped and recognized independently.
//
// Coordinates are fractions of the screenshot's width and height so the same
// catalog serves every resolution. Pixel rectangles are derived with
// pixel = floor(dimension * fraction) and clamped to the image.
package regions

import (
	"fmt"
	"image"
	"math"
	"sort"
)

// Region is a named fractional rectangle. Lower Priority values win ties.
type Region struct {
	Name     string  `json:"name"`
	Top      float64 `json:"top"`
	Left     float64 `json:"left"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Priority int     `json:"priority"`

	// Whitelist restricts the recognizer's character set when non-empty.
	Whitelist string `json:"whitelist,omitempty"`
}

// Rect is a pixel rectangle in image coordinates.
type Rect struct {
	Top    int `json:"top"`
	Left   int `json:"left"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Image converts the rectangle to an image.Rectangle.
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.Left, r.Top, r.Left+r.Width, r.Top+r.Height)
}

// Empty reports whether the rectangle covers no pixels.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Validate checks that all fractions lie in [0,1].
func (r Region) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("region name is required")
	}
	for _, f := range []struct {
		name string
		v    float64
	}{{"top", r.Top}, {"left", r.Left}, {"width", r.Width}, {"height", r.Height}} {
		if math.IsNaN(f.v) || f.v < 0 || f.v > 1 {
			return fmt.Errorf("region %s: %s must be within [0,1], got %v", r.Name, f.name, f.v)
		}
	}
	return nil
}

// PixelRect maps the region onto an image of the given size. The result
// always lies inside [0,width]x[0,height] with non-negative extent.
func (r Region) PixelRect(width, height int) Rect {
	width = max(width, 0)
	height = max(height, 0)

	top := clamp(floorMul(height, r.Top), 0, height)
	left := clamp(floorMul(width, r.Left), 0, width)
	w := clamp(floorMul(width, r.Width), 0, width-left)
	h := clamp(floorMul(height, r.Height), 0, height-top)

	return Rect{Top: top, Left: left, Width: w, Height: h}
}

func floorMul(dim int, fraction float64) int {
	if math.IsNaN(fraction) {
		return 0
	}
	return int(math.Floor(float64(dim) * fraction))
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// Catalog is an immutable, priority-ordered set of regions.
type Catalog struct {
	ordered []Region
	byName  map[string]Region
}

// NewCatalog validates the regions and orders them by priority, keeping
// declaration order among equal priorities.
func NewCatalog(regions ...Region) (*Catalog, error) {
	c := &Catalog{
		ordered: make([]Region, 0, len(regions)),
		byName:  make(map[string]Region, len(regions)),
	}
	for _, r := range regions {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byName[r.Name]; dup {
			return nil, fmt.Errorf("duplicate region %q", r.Name)
		}
		c.byName[r.Name] = r
		c.ordered = append(c.ordered, r)
	}
	sort.SliceStable(c.ordered, func(i, j int) bool {
		return c.ordered[i].Priority < c.ordered[j].Priority
	})
	return c, nil
}

// MustCatalog is NewCatalog for static tables; it panics on invalid input.
func MustCatalog(regions ...Region) *Catalog {
	c, err := NewCatalog(regions...)
	if err != nil {
		panic(err)
	}
	return c
}

// Ordered returns a copy of the regions in priority order.
func (c *Catalog) Ordered() []Region {
	out := make([]Region, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Get looks a region up by name.
func (c *Catalog) Get(name string) (Region, bool) {
	r, ok := c.byName[name]
	return r, ok
}

// Len returns the number of regions.
func (c *Catalog) Len() int {
	return len(c.ordered)
}
