// Package traversal enumerates the (category, location, page) targets a site
// crawler visits. The cursor is a pure state machine: the only state is the
// target handed back to Next and the two static lists.
package traversal

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrEmptyPlan is returned when a cursor has no categories or no locations.
var ErrEmptyPlan = errors.New("traversal needs at least one category and one location")

// Category is one entry of a site's category list.
type Category struct {
	Key  string
	Main string
	Sub  string
	ID   string
}

// Location is one country a site is searched in.
type Location struct {
	Code      string
	CountryID string
	Name      string
}

// Target is one unit of crawl work.
type Target struct {
	Category Category
	Location Location
	Page     int
}

// String renders the target for logs.
func (t Target) String() string {
	return fmt.Sprintf("%s/%s/p%d", t.Category.Key, t.Location.Code, t.Page)
}

// Outcome summarizes a listing pass over a target.
type Outcome struct {
	Candidates int
	HasNext    bool
}

// Exhausted is the outcome of a failed fetch or an empty page.
var Exhausted = Outcome{}

// Cursor walks categories (outer) and locations (inner), with pages nested
// inside each pair.
type Cursor struct {
	categories []Category
	locations  []Location
	logger     *zap.Logger
}

// NewCursor builds a cursor over the given lists, which are used in order.
func NewCursor(categories []Category, locations []Location, logger *zap.Logger) (*Cursor, error) {
	if len(categories) == 0 || len(locations) == 0 {
		return nil, ErrEmptyPlan
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cursor{
		categories: append([]Category(nil), categories...),
		locations:  append([]Location(nil), locations...),
		logger:     logger,
	}, nil
}

// Start returns the first target.
func (c *Cursor) Start() Target {
	return Target{Category: c.categories[0], Location: c.locations[0], Page: 1}
}

// Pairs returns the number of (category, location) pairs.
func (c *Cursor) Pairs() int {
	return len(c.categories) * len(c.locations)
}

// Next returns the target that follows from after a pass with outcome out.
// The boolean is false once every pair is exhausted.
//
// Zero candidates always moves on to the next pair, even if the page showed
// a next control. Otherwise a next control paginates.
func (c *Cursor) Next(from Target, out Outcome) (Target, bool) {
	ci, li, ok := c.locate(from)
	if !ok {
		c.logger.Warn("traversal target not in plan, restarting",
			zap.String("target", from.String()),
		)
		return c.Start(), true
	}
	if out.Candidates > 0 && out.HasNext {
		return Target{Category: from.Category, Location: from.Location, Page: from.Page + 1}, true
	}
	if li+1 < len(c.locations) {
		return Target{Category: c.categories[ci], Location: c.locations[li+1], Page: 1}, true
	}
	if ci+1 < len(c.categories) {
		return Target{Category: c.categories[ci+1], Location: c.locations[0], Page: 1}, true
	}
	return Target{}, false
}

func (c *Cursor) locate(t Target) (int, int, bool) {
	ci := -1
	for i, cat := range c.categories {
		if cat.Key == t.Category.Key {
			ci = i
			break
		}
	}
	li := -1
	for i, loc := range c.locations {
		if loc.Code == t.Location.Code {
			li = i
			break
		}
	}
	if ci < 0 || li < 0 || t.Page < 1 {
		return 0, 0, false
	}
	return ci, li, true
}
