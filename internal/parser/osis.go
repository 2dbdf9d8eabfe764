package parser

import (
	"errors"
	"io"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/dgallion1/versegest/internal/doctree"
	"github.com/dgallion1/versegest/internal/faults"
)

// Commentary is a note or commentary division attached to a reference.
type Commentary struct {
	Ref     string
	Excerpt string
	Source  string // note type or the work the note came from
}

// Markup is the parse of an OSIS document.
type Markup struct {
	Tree       *doctree.DocTree
	Commentary []Commentary
}

// OSISParser handles OSIS XML. Verses become leaf nodes tagged with their
// osisID, in both container (<verse osisID>text</verse>) and milestone
// (<verse sID/>text<verse eID/>) form. Notes are lifted out of verse text
// into Commentary.
type OSISParser struct{}

func (p *OSISParser) Name() string    { return "osis" }
func (p *OSISParser) Version() string { return "1" }

func (p *OSISParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	m, err := p.ParseMarkup(r, filename)
	if err != nil {
		return nil, err
	}
	return m.Tree, nil
}

func (p *OSISParser) ParseMarkup(r io.Reader, filename string) (*Markup, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, faults.Unsupported(filename, "malformed xml", err)
	}
	root := findLocal(doc, "osisText")
	if root == nil {
		return nil, faults.Unsupported(filename, "not an OSIS document", errors.New("no osisText element"))
	}

	w := &osisWalker{work: root.SelectAttr("osisIDWork")}
	top := &doctree.DocNode{}
	w.walk(root, top)
	w.closeVerse(top)
	if len(top.Children) == 0 && len(w.notes) == 0 {
		return nil, faults.Unsupported(filename, "OSIS document has no text", nil)
	}

	title := baseTitle(filename)
	if t := findLocal(root, "title"); t != nil && isHeaderTitle(t) {
		title = collapse(t.InnerText())
	} else if w.work != "" {
		title = w.work
	}
	return &Markup{
		Tree:       &doctree.DocTree{Title: title, Children: top.Children},
		Commentary: w.notes,
	}, nil
}

type osisWalker struct {
	work  string
	open  *doctree.DocNode // milestone verse being collected
	text  strings.Builder
	notes []Commentary
}

func (w *osisWalker) walk(n *xmlquery.Node, parent *doctree.DocNode) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case xmlquery.TextNode, xmlquery.CharDataNode:
			if w.open != nil {
				w.text.WriteString(c.Data)
			}
			continue
		case xmlquery.ElementNode:
		default:
			continue
		}

		switch c.Data {
		case "header", "title":
			// Titles are read by their division.
		case "note":
			w.note(c, w.currentRef())
		case "verse":
			w.verse(c, parent)
		case "chapter":
			if id := c.SelectAttr("osisID"); id != "" && c.SelectAttr("sID") == "" && c.FirstChild != nil {
				w.closeVerse(parent)
				node := &doctree.DocNode{Title: chapterTitle(id)}
				parent.Children = append(parent.Children, node)
				w.walk(c, node)
				w.closeVerse(node)
				continue
			}
			w.walk(c, parent)
		case "div":
			if c.SelectAttr("type") == "commentary" || c.SelectAttr("annotateRef") != "" {
				w.note(c, c.SelectAttr("annotateRef"))
				continue
			}
			w.closeVerse(parent)
			node := &doctree.DocNode{Title: divTitle(c)}
			if node.Title == "" {
				w.walk(c, parent)
				continue
			}
			parent.Children = append(parent.Children, node)
			w.walk(c, node)
			w.closeVerse(node)
		default:
			if w.open != nil {
				w.walk(c, parent)
				continue
			}
			if c.Data == "p" && findLocal(c, "verse") == nil {
				if t := collapse(textWithoutNotes(c)); t != "" {
					parent.Children = append(parent.Children, &doctree.DocNode{Text: t})
				}
				w.collectNotes(c, "")
				continue
			}
			w.walk(c, parent)
		}
	}
}

func (w *osisWalker) verse(v *xmlquery.Node, parent *doctree.DocNode) {
	switch {
	case v.SelectAttr("eID") != "":
		w.closeVerse(parent)
	case v.SelectAttr("sID") != "":
		w.closeVerse(parent)
		w.open = &doctree.DocNode{Ref: v.SelectAttr("osisID")}
		w.text.Reset()
	default:
		w.closeVerse(parent)
		ref := v.SelectAttr("osisID")
		if t := collapse(textWithoutNotes(v)); t != "" {
			parent.Children = append(parent.Children, &doctree.DocNode{Text: t, Ref: ref})
		}
		w.collectNotes(v, ref)
	}
}

func (w *osisWalker) closeVerse(parent *doctree.DocNode) {
	if w.open == nil {
		return
	}
	w.open.Text = collapse(w.text.String())
	if w.open.Text != "" {
		parent.Children = append(parent.Children, w.open)
	}
	w.open = nil
	w.text.Reset()
}

func (w *osisWalker) currentRef() string {
	if w.open != nil {
		return w.open.Ref
	}
	return ""
}

// collectNotes lifts every note below n, defaulting their reference to ref.
func (w *osisWalker) collectNotes(n *xmlquery.Node, ref string) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode {
			continue
		}
		if c.Data == "note" {
			w.note(c, ref)
			continue
		}
		w.collectNotes(c, ref)
	}
}

func (w *osisWalker) note(n *xmlquery.Node, fallback string) {
	kind := n.SelectAttr("type")
	if kind == "crossReference" {
		return
	}
	ref := n.SelectAttr("osisRef")
	if ref == "" {
		ref = n.SelectAttr("annotateRef")
	}
	if ref == "" {
		ref = fallback
	}
	text := collapse(n.InnerText())
	if ref == "" || text == "" {
		return
	}
	source := kind
	if source == "" {
		source = w.work
	}
	w.notes = append(w.notes, Commentary{Ref: ref, Excerpt: text, Source: source})
}

func divTitle(n *xmlquery.Node) string {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && c.Data == "title" {
			return collapse(c.InnerText())
		}
	}
	if id := n.SelectAttr("osisID"); id != "" {
		return id
	}
	return ""
}

func chapterTitle(osisID string) string {
	if i := strings.LastIndexByte(osisID, '.'); i >= 0 {
		return "Chapter " + osisID[i+1:]
	}
	return osisID
}

func isHeaderTitle(n *xmlquery.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == xmlquery.ElementNode && p.Data == "header" {
			return true
		}
	}
	return false
}

// textWithoutNotes is InnerText minus any note or title descendants.
func textWithoutNotes(n *xmlquery.Node) string {
	var b strings.Builder
	var walk func(*xmlquery.Node)
	walk = func(n *xmlquery.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case xmlquery.TextNode, xmlquery.CharDataNode:
				b.WriteString(c.Data)
			case xmlquery.ElementNode:
				if c.Data != "note" && c.Data != "title" {
					walk(c)
				}
			}
		}
	}
	walk(n)
	return b.String()
}

// findLocal returns the first element below n with the given local name,
// regardless of namespace prefix.
func findLocal(n *xmlquery.Node, name string) *xmlquery.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && c.Data == name {
			return c
		}
		if found := findLocal(c, name); found != nil {
			return found
		}
	}
	return nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
