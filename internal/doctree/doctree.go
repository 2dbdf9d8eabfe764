package doctree

import "strings"

// DocTree is the root of a parsed document.
type DocTree struct {
	Title       string         // Document title (from metadata or filename)
	Frontmatter map[string]any // Leading YAML metadata block, if the format has one
	Children    []*DocNode     // Top-level sections
}

// DocNode is a recursive section in the document tree.
type DocNode struct {
	Title    string     // Section heading (empty for leaf text)
	Text     string     // Text content of this node (may be empty for container nodes)
	Page     int        // Source page (0 if N/A)
	Ref      string     // OSIS reference the node is tagged with, if any
	Children []*DocNode // Subsections
}

// Section locates one node's text inside a flattened Body.
type Section struct {
	Start      int
	End        int
	Breadcrumb []string // Heading hierarchy, e.g. ["Romans", "Chapter 8"]
	Page       int
	Ref        string
}

// Body is the plain-text rendering of a tree. Node texts are separated by
// blank lines so the chunker sees them as paragraphs.
type Body struct {
	Text     string
	Sections []Section
}

// Flatten walks the tree depth-first and concatenates node texts.
func Flatten(tree *DocTree) Body {
	var sb strings.Builder
	var sections []Section

	var walk func(nodes []*DocNode, breadcrumb []string)
	walk = func(nodes []*DocNode, breadcrumb []string) {
		for _, n := range nodes {
			bc := breadcrumb
			if n.Title != "" {
				bc = append(append([]string(nil), breadcrumb...), n.Title)
			}
			if t := strings.TrimSpace(n.Text); t != "" {
				if sb.Len() > 0 {
					sb.WriteString("\n\n")
				}
				start := sb.Len()
				sb.WriteString(t)
				sections = append(sections, Section{
					Start:      start,
					End:        sb.Len(),
					Breadcrumb: bc,
					Page:       n.Page,
					Ref:        n.Ref,
				})
			}
			walk(n.Children, bc)
		}
	}
	walk(tree.Children, nil)

	return Body{Text: sb.String(), Sections: sections}
}

// Locate returns the sections overlapping [start, end).
func (b Body) Locate(start, end int) []Section {
	var out []Section
	for _, s := range b.Sections {
		if s.Start < end && s.End > start {
			out = append(out, s)
		}
	}
	return out
}
