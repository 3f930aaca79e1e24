package scrape

import (
	"regexp"
	"testing"
)

func TestBlocks(t *testing.T) {
	page := `<ul><li class="r">a</li><li class="r">b</li></ul>`
	got := Blocks(page, regexp.MustCompile(`<li class="r">`))
	if len(got) != 2 || got[0] != `<li class="r">a</li>` || got[1] != `<li class="r">b</li></ul>` {
		t.Fatalf("unexpected blocks %q", got)
	}
	if got := Blocks(page, regexp.MustCompile(`<table>`)); len(got) != 0 {
		t.Fatalf("expected no blocks, got %q", got)
	}
}

func TestText(t *testing.T) {
	got := Text("<b>Rock &amp;\n  Roll</b> <i>Hall</i>")
	if got != "Rock & Roll Hall" {
		t.Fatalf("got %q", got)
	}
}

func TestAttr(t *testing.T) {
	tag := `<a class='x' href="/album/one?from=search&amp;x=1"><img src="inner.jpg"></a>`
	if got := Attr(tag, "href"); got != "/album/one?from=search&x=1" {
		t.Fatalf("href = %q", got)
	}
	if got := Attr(tag, "class"); got != "x" {
		t.Fatalf("class = %q", got)
	}
	if got := Attr(tag, "src"); got != "" {
		t.Fatalf("src must only be read from the first tag, got %q", got)
	}
}

func TestElementAndClassTag(t *testing.T) {
	frag := `<div class="result big"><h4 class="heading main">Title <em>x</em></h4></div>`
	tag, inner, ok := Element(frag, ClassTag("h4", "heading"), "h4")
	if !ok {
		t.Fatal("heading not found")
	}
	if tag != `<h4 class="heading main">` || inner != "Title <em>x</em>" {
		t.Fatalf("tag %q inner %q", tag, inner)
	}
	if _, _, ok := Element(frag, ClassTag("h4", "head"), "h4"); ok {
		t.Fatal("partial class name must not match")
	}
}
