package parser

import (
	"path/filepath"
	"strings"

	"github.com/dgallion1/versegest/internal/doctree"
)

// outline builds a DocTree from a flat stream of headings and paragraphs.
// Headings nest by level; paragraphs attach to the innermost open heading.
type outline struct {
	root  *doctree.DocNode
	stack []outlineEntry
	text  strings.Builder
}

type outlineEntry struct {
	node  *doctree.DocNode
	level int
}

func newOutline() *outline {
	root := &doctree.DocNode{}
	return &outline{root: root, stack: []outlineEntry{{node: root}}}
}

func (o *outline) heading(level int, title string) *doctree.DocNode {
	o.flush()
	n := &doctree.DocNode{Title: title}
	for len(o.stack) > 1 && o.stack[len(o.stack)-1].level >= level {
		o.stack = o.stack[:len(o.stack)-1]
	}
	parent := o.stack[len(o.stack)-1].node
	parent.Children = append(parent.Children, n)
	o.stack = append(o.stack, outlineEntry{node: n, level: level})
	return n
}

func (o *outline) paragraph(t string) {
	t = strings.TrimSpace(t)
	if t == "" {
		return
	}
	if o.text.Len() > 0 {
		o.text.WriteString("\n\n")
	}
	o.text.WriteString(t)
}

func (o *outline) flush() {
	t := strings.TrimSpace(o.text.String())
	o.text.Reset()
	if t == "" {
		return
	}
	top := o.stack[len(o.stack)-1].node
	switch {
	case len(top.Children) > 0:
		// Keep document order: Flatten emits a node's Text before its children.
		top.Children = append(top.Children, &doctree.DocNode{Text: t})
	case top.Text != "":
		top.Text += "\n\n" + t
	default:
		top.Text = t
	}
}

// tagged appends a leaf carrying a reference under the innermost heading.
func (o *outline) tagged(text, ref string) {
	o.flush()
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	top := o.stack[len(o.stack)-1].node
	top.Children = append(top.Children, &doctree.DocNode{Text: text, Ref: ref})
}

// tree closes the outline. Text that appeared before the first heading
// becomes a leading untitled node.
func (o *outline) tree(title string) *doctree.DocTree {
	o.flush()
	t := &doctree.DocTree{Title: title}
	if o.root.Text != "" {
		t.Children = append(t.Children, &doctree.DocNode{Text: o.root.Text})
	}
	t.Children = append(t.Children, o.root.Children...)
	return t
}

// baseTitle is the filename without directory or extension.
func baseTitle(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
