package diff

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
	"gitlab.com/henri.philipps/diffdetect"
)

// FullContext keeps all unchanged lines in the output.
const FullContext = -1

// Granularity is the detail level of rendered changes.
type Granularity int

const (
	GranularityLine Granularity = iota
	GranularityWord
)

// LineOptions configures the comparison of generic content.
type LineOptions struct {
	// Context is the number of unchanged lines kept around changes, or FullContext.
	Context          int
	IgnoreLineEnding bool
	IgnoreWhitespace bool
	Granularity      Granularity
}

// DefaultLineOptions returns full context, ignoring line endings and
// whitespace with line granularity.
func DefaultLineOptions() LineOptions {
	return LineOptions{
		Context:          FullContext,
		IgnoreLineEnding: true,
		IgnoreWhitespace: true,
		Granularity:      GranularityLine,
	}
}

// Op is the kind of a block of lines.
type Op int

const (
	OpEqual Op = iota
	OpDelete
	OpInsert
	// OpSkip is standing in for unchanged lines left out of the context.
	OpSkip
)

func (op Op) String() string {
	switch op {
	case OpDelete:
		return "delete"
	case OpInsert:
		return "insert"
	case OpSkip:
		return "skip"
	default:
		return "equal"
	}
}

func (op Op) MarshalText() ([]byte, error) {
	return []byte(op.String()), nil
}

// Block is a run of lines with the same Op. Skipped counts the lines of an OpSkip block.
type Block struct {
	Op      Op       `json:"op"`
	Lines   []string `json:"lines,omitempty"`
	Skipped int      `json:"skipped,omitempty"`
}

var errTooManyLines = errors.New("too many distinct lines to compare")

// Lines is comparing two texts line by line. If they don't differ after
// normalisation, the result is Identical and renders the after content.
func (e *Engine) Lines(before, after []byte) (*Result, error) {
	a := splitLines(string(before), e.opts.IgnoreLineEnding)
	b := splitLines(string(after), e.opts.IgnoreLineEnding)

	blocks, err := e.diffLines(a, b)
	if err != nil {
		return nil, err
	}

	res := &Result{Type: diffdetect.TypeGeneric, Identical: true}
	for _, bl := range blocks {
		if bl.Op == OpInsert || bl.Op == OpDelete {
			res.Identical = false
			break
		}
	}

	if res.Identical {
		res.HTML, err = renderIdentical(string(after))
		return res, err
	}

	res.Blocks = applyContext(blocks, e.opts.Context)
	res.HTML, err = renderLines(res.Blocks, e.opts.Granularity)
	return res, err
}

// diffLines is mapping every distinct normalised line to one rune, so the
// character based diffmatchpatch algorithm is operating on whole lines.
func (e *Engine) diffLines(a, b []string) ([]Block, error) {
	tokens := map[string]rune{}
	next := 0

	tokenize := func(lines []string) ([]rune, error) {
		runes := make([]rune, len(lines))
		for i, line := range lines {
			key := line
			if e.opts.IgnoreWhitespace {
				key = stripWhitespace(line)
			}
			r, ok := tokens[key]
			if !ok {
				var err error
				if r, err = lineRune(next); err != nil {
					return nil, err
				}
				tokens[key] = r
				next++
			}
			runes[i] = r
		}
		return runes, nil
	}

	ra, err := tokenize(a)
	if err != nil {
		return nil, err
	}
	rb, err := tokenize(b)
	if err != nil {
		return nil, err
	}

	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	diffs := dmp.DiffMainRunes(ra, rb, false)

	var blocks []Block
	i, j := 0, 0
	for _, d := range diffs {
		n := utf8.RuneCountInString(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			// unchanged lines are shown as they are in the after content
			blocks = appendBlock(blocks, OpEqual, b[j:j+n])
			i += n
			j += n
		case diffmatchpatch.DiffDelete:
			blocks = appendBlock(blocks, OpDelete, a[i:i+n])
			i += n
		case diffmatchpatch.DiffInsert:
			blocks = appendBlock(blocks, OpInsert, b[j:j+n])
			j += n
		}
	}

	return blocks, nil
}

func appendBlock(blocks []Block, op Op, lines []string) []Block {
	if len(lines) == 0 {
		return blocks
	}
	if l := len(blocks); l > 0 && blocks[l-1].Op == op {
		blocks[l-1].Lines = append(blocks[l-1].Lines, lines...)
		return blocks
	}
	return append(blocks, Block{Op: op, Lines: append([]string(nil), lines...)})
}

// lineRune is returning the n-th valid rune, skipping the surrogate range.
func lineRune(n int) (rune, error) {
	r := rune(n + 1)
	if r >= 0xD800 {
		r += 0x800
	}
	if r > unicode.MaxRune {
		return 0, errTooManyLines
	}
	return r, nil
}

// applyContext is replacing unchanged lines farther than context lines away
// from a change by OpSkip blocks.
func applyContext(blocks []Block, context int) []Block {
	if context < 0 {
		return blocks
	}

	out := make([]Block, 0, len(blocks))
	for i, bl := range blocks {
		if bl.Op != OpEqual {
			out = append(out, bl)
			continue
		}

		first, last := i == 0, i == len(blocks)-1
		keepHead, keepTail := context, context
		if first {
			keepHead = 0
		}
		if last {
			keepTail = 0
		}

		if len(bl.Lines) <= keepHead+keepTail {
			out = append(out, bl)
			continue
		}

		if keepHead > 0 {
			out = append(out, Block{Op: OpEqual, Lines: bl.Lines[:keepHead]})
		}
		out = append(out, Block{Op: OpSkip, Skipped: len(bl.Lines) - keepHead - keepTail})
		if keepTail > 0 {
			out = append(out, Block{Op: OpEqual, Lines: bl.Lines[len(bl.Lines)-keepTail:]})
		}
	}

	return out
}

// splitLines is splitting text into lines without their line terminators.
func splitLines(text string, ignoreLineEnding bool) []string {
	if ignoreLineEnding {
		text = strings.ReplaceAll(text, "\r\n", "\n")
		text = strings.ReplaceAll(text, "\r", "\n")
	}
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

// stripWhitespace is removing all whitespace from the given string.
func stripWhitespace(str string) string {
	var builder strings.Builder
	builder.Grow(len(str))
	for _, r := range str {
		if !unicode.IsSpace(r) {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}
