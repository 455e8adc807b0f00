package types

import (
	"fmt"
	"sort"
	"strings"
)

// Source is a piece of source text that code was parsed from.
type Source struct {
	Name string
	Text string

	lines []int // offsets of line starts, computed lazily
}

// NewSource creates a source.
func NewSource(name, text string) *Source {
	s := &Source{Name: name, Text: text}
	s.lines = append(s.lines, 0)
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			s.lines = append(s.lines, i+1)
		}
	}
	return s
}

// PositionAt converts a byte offset into a position with 1-based line and
// column numbers.
func (s *Source) PositionAt(offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(s.Text) {
		offset = len(s.Text)
	}
	if s.lines == nil {
		*s = *NewSource(s.Name, s.Text)
	}
	line := sort.Search(len(s.lines), func(i int) bool { return s.lines[i] > offset }) - 1
	return Position{
		Offset: offset,
		Line:   line + 1,
		Column: offset - s.lines[line] + 1,
	}
}

// Line returns the text of the 1-based line number, without its newline.
func (s *Source) Line(n int) string {
	lines := strings.Split(s.Text, "\n")
	if n < 1 || n > len(lines) {
		return ""
	}
	return strings.TrimRight(lines[n-1], "\r")
}

// Position is a point in a source.
type Position struct {
	Offset int
	Line   int
	Column int
}

// Location is the span of source text a node was parsed from.
// Locations are immutable once attached.
type Location struct {
	Source *Source
	Start  Position
	End    Position
}

// Span returns the location of the half-open byte range [start, end) of src.
func Span(src *Source, start, end int) *Location {
	return &Location{
		Source: src,
		Start:  src.PositionAt(start),
		End:    src.PositionAt(end),
	}
}

// Fragment returns the source text covered by the location.
func (l *Location) Fragment() string {
	if l == nil || l.Source == nil {
		return ""
	}
	start, end := l.Start.Offset, l.End.Offset
	if start < 0 || end > len(l.Source.Text) || start > end {
		return ""
	}
	return l.Source.Text[start:end]
}

// String returns name:line:column.
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	if l.Source == nil || l.Source.Name == "" {
		return fmt.Sprintf("%d:%d", l.Start.Line, l.Start.Column)
	}
	return fmt.Sprintf("%s:%d:%d", l.Source.Name, l.Start.Line, l.Start.Column)
}
