package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/dgallion1/versegest/internal/doctree"
	"github.com/dgallion1/versegest/internal/faults"
)

const containerOSIS = `<?xml version="1.0" encoding="UTF-8"?>
<osis xmlns="http://www.bibletechnologies.net/2003/OSIS/namespace">
 <osisText osisIDWork="KJV">
  <header><work osisWork="KJV"><title>King James Version</title></work></header>
  <div type="book" osisID="John">
   <title>The Gospel According to John</title>
   <chapter osisID="John.3">
    <verse osisID="John.3.16">For God so loved the world,<note type="study">Note the scope: the world.</note> that he gave his only begotten Son.</verse>
    <verse osisID="John.3.17">For God sent not his Son <note type="crossReference"><reference osisRef="Luke.19.10">Lk 19:10</reference></note>to condemn the world.</verse>
   </chapter>
  </div>
  <div type="commentary" annotateRef="John.3.16"><p>The gospel in miniature.</p></div>
 </osisText>
</osis>`

const milestoneOSIS = `<osis><osisText osisIDWork="WEB">
<div type="book" osisID="Ps">
<p><verse sID="Ps.23.1" osisID="Ps.23.1"/>Yahweh is my <w lemma="strong:H7462">shepherd</w>:<verse eID="Ps.23.1"/>
<verse sID="Ps.23.2" osisID="Ps.23.2"/>He makes me lie down<note>Or, rest</note> in green pastures.<verse eID="Ps.23.2"/></p>
</div></osisText></osis>`

func TestOSISParser_ContainerVerses(t *testing.T) {
	m, err := (&OSISParser{}).ParseMarkup(strings.NewReader(containerOSIS), "kjv.xml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Tree.Title != "King James Version" {
		t.Errorf("expected header title, got %q", m.Tree.Title)
	}
	if len(m.Tree.Children) != 1 || m.Tree.Children[0].Title != "The Gospel According to John" {
		t.Fatalf("expected one book division, got %+v", m.Tree.Children)
	}
	chapter := m.Tree.Children[0].Children[0]
	if chapter.Title != "Chapter 3" || len(chapter.Children) != 2 {
		t.Fatalf("unexpected chapter node: %+v", chapter)
	}
	v16 := chapter.Children[0]
	if v16.Ref != "John.3.16" || v16.Text != "For God so loved the world, that he gave his only begotten Son." {
		t.Errorf("unexpected verse: %+v", v16)
	}
	if chapter.Children[1].Text != "For God sent not his Son to condemn the world." {
		t.Errorf("cross reference leaked into text: %q", chapter.Children[1].Text)
	}

	if len(m.Commentary) != 2 {
		t.Fatalf("expected study note and commentary division, got %+v", m.Commentary)
	}
	if m.Commentary[0] != (Commentary{Ref: "John.3.16", Excerpt: "Note the scope: the world.", Source: "study"}) {
		t.Errorf("unexpected note: %+v", m.Commentary[0])
	}
	if m.Commentary[1].Ref != "John.3.16" || m.Commentary[1].Excerpt != "The gospel in miniature." {
		t.Errorf("unexpected commentary: %+v", m.Commentary[1])
	}
}

func TestOSISParser_MilestoneVerses(t *testing.T) {
	m, err := (&OSISParser{}).ParseMarkup(strings.NewReader(milestoneOSIS), "web.osis")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Tree.Title != "WEB" {
		t.Errorf("expected work id as title, got %q", m.Tree.Title)
	}
	body := doctree.Flatten(m.Tree)
	if len(body.Sections) != 2 {
		t.Fatalf("expected 2 verse sections, got %d", len(body.Sections))
	}
	if body.Sections[0].Ref != "Ps.23.1" || body.Sections[1].Ref != "Ps.23.2" {
		t.Errorf("unexpected refs: %+v", body.Sections)
	}
	want := "Yahweh is my shepherd:\n\nHe makes me lie down in green pastures."
	if body.Text != want {
		t.Errorf("expected %q, got %q", want, body.Text)
	}
	if len(m.Commentary) != 1 || m.Commentary[0].Ref != "Ps.23.2" || m.Commentary[0].Source != "WEB" {
		t.Errorf("unexpected notes: %+v", m.Commentary)
	}
}

func TestOSISParser_Rejects(t *testing.T) {
	for name, input := range map[string]string{
		"malformed": "<osis><osisText>",
		"not osis":  "<html><body/></html>",
	} {
		_, err := (&OSISParser{}).Parse(strings.NewReader(input), "x.xml")
		if !errors.Is(err, faults.ErrUnsupportedSource) {
			t.Errorf("%s: expected unsupported source, got %v", name, err)
		}
	}
}
