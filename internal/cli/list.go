package cli

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/list"
)

// StringList is a simple list of strings.
// Created via Output.StringList().
type StringList struct {
	out   *Output
	meta  Meta
	items []string
}

// Add appends strings to the list.
func (l *StringList) Add(items ...string) *StringList {
	l.items = append(l.items, items...)
	return l
}

// WithPagination sets pagination cursor and hasMore flag.
func (l *StringList) WithPagination(cursor string, hasMore bool) *StringList {
	l.meta = l.meta.WithPagination(cursor, hasMore)
	return l
}

// Render outputs the list in the configured format.
func (l *StringList) Render() error {
	return l.out.Render(l)
}

// Meta returns the list metadata.
func (l *StringList) Meta() Meta {
	return l.meta
}

// RenderText writes an ASCII list.
func (l *StringList) RenderText(w io.Writer) error {
	lw := list.NewWriter()
	lw.SetStyle(list.StyleBulletCircle)
	for _, item := range l.items {
		lw.AppendItem(item)
	}
	_, err := io.WriteString(w, lw.Render()+"\n")
	return err
}

// RenderJSON returns the items as an array of strings.
func (l *StringList) RenderJSON() any {
	return l.items
}

// RenderMarkdown writes a markdown list.
func (l *StringList) RenderMarkdown(w io.Writer) error {
	lw := list.NewWriter()
	lw.SetStyle(list.StyleMarkdown)
	for _, item := range l.items {
		lw.AppendItem(item)
	}
	_, err := io.WriteString(w, lw.RenderMarkdown()+"\n")
	return err
}
