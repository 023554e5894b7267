// Package diff is comparing two snapshots of a resource.
//
// Generic content is compared line by line and rendered as a combined
// HTML table. Feeds are compared item by item, keyed by GUID or link, so
// that reordered items don't show up as changes.
package diff

import (
	"fmt"

	"gitlab.com/henri.philipps/diffdetect"
)

// Result is holding a computed diff and its HTML rendering.
// Blocks is set for generic resources, Feed for RSS resources.
type Result struct {
	Type      diffdetect.ResourceType `json:"type"`
	Identical bool                    `json:"identical"`
	Blocks    []Block                 `json:"blocks,omitempty"`
	Feed      *FeedDiff               `json:"feed,omitempty"`
	HTML      string                  `json:"html"`
}

// Engine is computing diffs between snapshots. It is stateless and safe for concurrent use.
type Engine struct {
	parser FeedParser
	opts   LineOptions
}

// Opt is a functional option for an Engine.
type Opt func(*Engine)

// NewEngine is returning an Engine comparing generic content with DefaultLineOptions
// and parsing feeds with gofeed.
func NewEngine(opts ...Opt) *Engine {
	e := &Engine{
		parser: NewFeedParser(),
		opts:   DefaultLineOptions(),
	}

	for _, o := range opts {
		o(e)
	}

	return e
}

// WithFeedParser replaces the parser used for RSS resources.
func WithFeedParser(p FeedParser) Opt {
	return func(e *Engine) {
		e.parser = p
	}
}

// WithLineOptions configures the comparison of generic resources.
func WithLineOptions(opts LineOptions) Opt {
	return func(e *Engine) {
		e.opts = opts
	}
}

// Diff is comparing the content of two snapshots according to the resource type.
func (e *Engine) Diff(before, after *diffdetect.Snapshot, typ diffdetect.ResourceType) (*Result, error) {
	switch typ {
	case diffdetect.TypeGeneric:
		return e.Lines(before.Content, after.Content)
	case diffdetect.TypeRSS:
		return e.Feed(before.Content, after.Content)
	}
	return nil, fmt.Errorf("no diff for resource type %d: %w", typ, diffdetect.ErrConfig)
}
