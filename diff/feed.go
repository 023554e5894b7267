package diff

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/mmcdole/gofeed"
	"github.com/sergi/go-diff/diffmatchpatch"
	"gitlab.com/henri.philipps/diffdetect"
)

// FeedItem is the comparable content of one feed entry.
type FeedItem struct {
	Key         string `json:"key"`
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	Content     string `json:"content"`
	Author      string `json:"author"`
}

// FeedParser is turning raw feed content into its items, in feed order.
type FeedParser interface {
	Parse(content []byte) ([]FeedItem, error)
}

// NewFeedParser is returning a FeedParser for RSS, Atom and JSON feeds.
// HTML in descriptions and contents is converted to markdown, so that
// markup-only changes don't clutter the diff.
func NewFeedParser() FeedParser {
	return gofeedParser{}
}

type gofeedParser struct{}

func (gofeedParser) Parse(content []byte) ([]FeedItem, error) {
	// gofeed parsers keep state while parsing, so each call gets its own
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", diffdetect.ErrFeedParse, err)
	}

	conv := md.NewConverter("", true, nil)
	toText := func(s string) string {
		s = strings.TrimSpace(s)
		if !strings.Contains(s, "<") {
			return s
		}
		text, err := conv.ConvertString(s)
		if err != nil {
			return s
		}
		return strings.TrimSpace(text)
	}

	items := make([]FeedItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		fi := FeedItem{
			Title:       strings.TrimSpace(item.Title),
			Link:        strings.TrimSpace(item.Link),
			Description: toText(item.Description),
			Content:     toText(item.Content),
		}
		if item.Author != nil {
			fi.Author = strings.TrimSpace(item.Author.Name)
		}
		fi.Key = itemKey(strings.TrimSpace(item.GUID), fi)
		items = append(items, fi)
	}

	return items, nil
}

// itemKey is identifying an item by GUID, by link or by a hash of title and description.
func itemKey(guid string, item FeedItem) string {
	if guid != "" {
		return guid
	}
	if item.Link != "" {
		return item.Link
	}
	return fmt.Sprintf("sha256:%x", sha256.Sum256([]byte(item.Title+"\x00"+item.Description)))
}

// ChangeKind is the kind of change of a feed item.
type ChangeKind int

const (
	Added ChangeKind = iota
	Changed
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case Changed:
		return "changed"
	case Removed:
		return "removed"
	default:
		return "added"
	}
}

func (k ChangeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// FieldChange is a field of a changed item with its inline diff as HTML.
type FieldChange struct {
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
	HTML   string `json:"html"`
}

// ItemChange is an added, changed or removed item.
// Item is the after version, except for removed items.
type ItemChange struct {
	Kind   ChangeKind    `json:"kind"`
	Item   FeedItem      `json:"item"`
	Fields []FieldChange `json:"fields,omitempty"`
}

// FeedDiff is holding the changed items grouped by kind. Unchanged items are left out.
type FeedDiff struct {
	Added   []ItemChange `json:"added"`
	Changed []ItemChange `json:"changed"`
	Removed []ItemChange `json:"removed"`
}

// Empty reports whether no item was added, changed or removed.
func (d *FeedDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Changed) == 0 && len(d.Removed) == 0
}

// Feed is comparing two feeds item by item. Both have to be parseable,
// there is no fallback to a line diff.
func (e *Engine) Feed(before, after []byte) (*Result, error) {
	beforeItems, err := e.parser.Parse(before)
	if err != nil {
		return nil, fmt.Errorf("before snapshot: %w", err)
	}
	afterItems, err := e.parser.Parse(after)
	if err != nil {
		return nil, fmt.Errorf("after snapshot: %w", err)
	}

	fd := CompareItems(beforeItems, afterItems)

	html, err := renderFeed(fd)
	if err != nil {
		return nil, err
	}

	return &Result{Type: diffdetect.TypeRSS, Identical: fd.Empty(), Feed: fd, HTML: html}, nil
}

// CompareItems is computing the set difference of two item lists by key.
// Added and changed items follow the order of after, removed items the order of before.
// For duplicate keys only the first item is considered.
func CompareItems(before, after []FeedItem) *FeedDiff {
	fd := &FeedDiff{}

	beforeByKey := make(map[string]FeedItem, len(before))
	for _, item := range before {
		if _, ok := beforeByKey[item.Key]; !ok {
			beforeByKey[item.Key] = item
		}
	}

	seen := make(map[string]bool, len(after))
	for _, item := range after {
		if seen[item.Key] {
			continue
		}
		seen[item.Key] = true

		old, ok := beforeByKey[item.Key]
		if !ok {
			fd.Added = append(fd.Added, ItemChange{Kind: Added, Item: item})
			continue
		}
		if fields := compareFields(old, item); len(fields) > 0 {
			fd.Changed = append(fd.Changed, ItemChange{Kind: Changed, Item: item, Fields: fields})
		}
	}

	removed := make(map[string]bool)
	for _, item := range before {
		if seen[item.Key] || removed[item.Key] {
			continue
		}
		removed[item.Key] = true
		fd.Removed = append(fd.Removed, ItemChange{Kind: Removed, Item: item})
	}

	return fd
}

func compareFields(before, after FeedItem) []FieldChange {
	pairs := []struct {
		name          string
		before, after string
	}{
		{"title", before.Title, after.Title},
		{"link", before.Link, after.Link},
		{"description", before.Description, after.Description},
		{"content", before.Content, after.Content},
		{"author", before.Author, after.Author},
	}

	var fields []FieldChange
	dmp := diffmatchpatch.New()
	for _, p := range pairs {
		if p.before == p.after {
			continue
		}
		diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(p.before, p.after, false))
		fields = append(fields, FieldChange{
			Field:  p.name,
			Before: p.before,
			After:  p.after,
			HTML:   dmp.DiffPrettyHtml(diffs),
		})
	}
	return fields
}
