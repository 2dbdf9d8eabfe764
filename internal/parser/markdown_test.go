package parser

import (
	"strings"
	"testing"
)

func TestMarkdownParser_OutlineFollowsHeadings(t *testing.T) {
	input := `# The Sermon on the Mount

Matthew 5 through 7.

## Beatitudes

Blessed are the poor in spirit.

### Peacemakers

Matt 5:9 calls them children of God.

## Love of Enemies

Matt 5:44 asks us to pray for them.
`
	p := &MarkdownParser{}
	tree, err := p.Parse(strings.NewReader(input), "mount.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tree.Title != "mount" {
		t.Errorf("expected title %q, got %q", "mount", tree.Title)
	}
	if len(tree.Children) != 1 {
		t.Fatalf("expected one top-level section, got %d", len(tree.Children))
	}

	top := tree.Children[0]
	if top.Title != "The Sermon on the Mount" || top.Text != "Matthew 5 through 7." {
		t.Errorf("unexpected top section: %q / %q", top.Title, top.Text)
	}
	if len(top.Children) != 2 {
		t.Fatalf("expected 2 subsections, got %d", len(top.Children))
	}
	beatitudes, enemies := top.Children[0], top.Children[1]
	if beatitudes.Title != "Beatitudes" || enemies.Title != "Love of Enemies" {
		t.Errorf("unexpected subsection titles %q, %q", beatitudes.Title, enemies.Title)
	}
	if len(beatitudes.Children) != 1 || beatitudes.Children[0].Title != "Peacemakers" {
		t.Fatalf("expected Peacemakers under Beatitudes, got %+v", beatitudes.Children)
	}
	if !strings.Contains(beatitudes.Children[0].Text, "Matt 5:9") {
		t.Errorf("expected citation kept in text, got %q", beatitudes.Children[0].Text)
	}
}

func TestMarkdownParser_Bodies(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		children int
		contains []string
	}{
		{
			name:     "no headings",
			input:    "Grace to you.\n\nAnd peace, Rom 1:7.",
			children: 1,
			contains: []string{"Grace to you.", "And peace, Rom 1:7."},
		},
		{
			name:     "fenced block kept verbatim",
			input:    "# Readings\n\nToday:\n\n```\nPs 23:1-6\nJohn 10:11\n```\n\nClosing prayer.\n",
			children: 1,
			contains: []string{"Ps 23:1-6\nJohn 10:11", "Closing prayer."},
		},
		{
			name:     "emphasis flattened",
			input:    "The *Lord* is my **shepherd**.",
			children: 1,
			contains: []string{"The Lord is my shepherd."},
		},
		{
			name:     "empty",
			input:    "",
			children: 0,
		},
	}

	p := &MarkdownParser{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := p.Parse(strings.NewReader(tt.input), "body.md")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(tree.Children) != tt.children {
				t.Fatalf("expected %d children, got %d", tt.children, len(tree.Children))
			}
			for _, want := range tt.contains {
				if !strings.Contains(tree.Children[0].Text, want) {
					t.Errorf("expected text to contain %q, got %q", want, tree.Children[0].Text)
				}
			}
		})
	}
}

func TestMarkdownParser_TitleFromFilename(t *testing.T) {
	for filename, want := range map[string]string{
		"romans-8.md":           "romans-8",
		"advent.week1.markdown": "advent.week1",
	} {
		tree, err := (&MarkdownParser{}).Parse(strings.NewReader("text"), filename)
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", filename, err)
		}
		if tree.Title != want {
			t.Errorf("filename=%q: expected title %q, got %q", filename, want, tree.Title)
		}
	}
}

func TestMarkdownParser_Frontmatter(t *testing.T) {
	input := "---\ntitle: On Grace\nauthor: J. Newton\nrefs: [John 3:16]\n---\n# Opening\n\nFor God so loved the world.\n"
	p := &MarkdownParser{}
	tree, err := p.Parse(strings.NewReader(input), "sermon.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tree.Title != "On Grace" {
		t.Errorf("expected frontmatter title, got %q", tree.Title)
	}
	if tree.Frontmatter["author"] != "J. Newton" {
		t.Errorf("expected author in frontmatter, got %v", tree.Frontmatter)
	}
	if len(tree.Children) != 1 || tree.Children[0].Title != "Opening" {
		t.Fatalf("expected body parsed after frontmatter, got %+v", tree.Children)
	}
	if strings.Contains(tree.Children[0].Text, "author") {
		t.Errorf("frontmatter leaked into body: %q", tree.Children[0].Text)
	}
}

func TestMarkdownParser_NoDuplicatedParagraphText(t *testing.T) {
	p := &MarkdownParser{}
	tree, err := p.Parse(strings.NewReader("Grace alone."), "one.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := tree.Children[0].Text; got != "Grace alone." {
		t.Errorf("expected paragraph text once, got %q", got)
	}
}

func TestMarkdownParser_PreambleBeforeFirstHeading(t *testing.T) {
	p := &MarkdownParser{}
	tree, err := p.Parse(strings.NewReader("Preface.\n\n# One\n\nBody."), "pre.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tree.Children) != 2 {
		t.Fatalf("expected preface node plus heading, got %d", len(tree.Children))
	}
	if tree.Children[0].Text != "Preface." || tree.Children[1].Title != "One" {
		t.Errorf("unexpected order: %+v", tree.Children)
	}
}
