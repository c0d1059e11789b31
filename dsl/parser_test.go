package dsl_test

import (
	"strings"
	"testing"

	"github.com/ByLCY/storybook/dsl"
)

const sampleDSL = `
profile Picture v1 {
  // 纸张与边距
  page A5 landscape margin 12mm 15mm

  font body {
    src: ["fonts/Literata.ttf", "builtin:latin-modern"]
    size: 13pt
    line-height: 1.3x
    indent: 6mm
  }

  illustrations {
    cadence: 2
    on-failure: skip
  }

  labels {
    footer: "- ${page} -"
    cover-title: true
  }
  # 关键词
  meta { keywords: ["bedtime", "fox"]; subject: "A story" }
}
`

func TestParseDocument(t *testing.T) {
	doc, err := dsl.ParseString(sampleDSL)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if doc.Name != "Picture" || doc.Version != "v1" {
		t.Fatalf("unexpected header: %s %s", doc.Name, doc.Version)
	}
	stmts := doc.Body.Statements
	if len(stmts) != 5 {
		t.Fatalf("expected 5 statements, got %d", len(stmts))
	}

	page := stmts[0].Command
	if page == nil || page.Name != "page" {
		t.Fatalf("expected page command, got %+v", stmts[0])
	}
	if got := tokensToString(page.Args); got != "A5 landscape margin 12mm 15mm" {
		t.Fatalf("unexpected page args: %s", got)
	}
	if page.Block != nil {
		t.Fatalf("page command should not have a block")
	}
	if page.Pos.Line != 4 {
		t.Fatalf("expected page on line 4, got %d", page.Pos.Line)
	}

	font := stmts[1].Command
	if font == nil || font.Name != "font" || len(font.Args) != 1 || font.Args[0].Value != "body" {
		t.Fatalf("unexpected font command: %+v", stmts[1])
	}
	if font.Block == nil || len(font.Block.Statements) != 4 {
		t.Fatalf("font block statements missing")
	}
	src := font.Block.Statements[0].Assignment
	if src == nil || src.Key != "src" {
		t.Fatalf("expected src assignment, got %+v", font.Block.Statements[0])
	}
	if got := strings.Join(src.Value.Strings(), "|"); got != "fonts/Literata.ttf|builtin:latin-modern" {
		t.Fatalf("unexpected src list: %s", got)
	}
	if lh := font.Block.Statements[2].Assignment; lh == nil || lh.Key != "line-height" || lh.Value.Text() != "1.3x" {
		t.Fatalf("unexpected line-height: %+v", font.Block.Statements[2])
	}

	ill := stmts[2].Command
	if ill == nil || ill.Block == nil {
		t.Fatalf("illustrations block missing")
	}
	if v := ill.Block.Statements[1].Assignment; v == nil || v.Value.Ident == nil || *v.Value.Ident != "skip" {
		t.Fatalf("on-failure should be an identifier, got %+v", ill.Block.Statements[1])
	}

	labels := stmts[3].Command.Block.Statements
	if got := labels[0].Assignment.Value.Text(); !strings.Contains(got, "${page}") {
		t.Fatalf("footer label lost placeholder: %s", got)
	}

	meta := stmts[4].Command
	if meta == nil || meta.Name != "meta" || len(meta.Block.Statements) != 2 {
		t.Fatalf("inline meta block not parsed: %+v", stmts[4])
	}
	if got := meta.Block.Statements[0].Assignment.Value.Strings(); len(got) != 2 || got[1] != "fox" {
		t.Fatalf("unexpected keywords: %v", got)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []string{
		`doc Story v1 {}`,
		`profile Broken v1 { page A4`,
		`profile Broken v1 { labels { footer: "x" }`,
		`profile Broken { }`,
	}
	for _, src := range cases {
		if _, err := dsl.ParseString(src); err == nil {
			t.Fatalf("expected parse error for %q", src)
		}
	}
}

func TestParseReader(t *testing.T) {
	doc, err := dsl.Parse(strings.NewReader("profile Empty v2 {}\n"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if doc.Version != "v2" || len(doc.Body.Statements) != 0 {
		t.Fatalf("unexpected document: %+v", doc)
	}
}

func TestValueHelpers(t *testing.T) {
	var nilValue *dsl.Value
	if nilValue.Text() != "" || nilValue.Strings() != nil {
		t.Fatalf("nil value helpers should be empty")
	}
}

func tokensToString(parts []*dsl.Lexeme) string {
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		values = append(values, p.Value)
	}
	return strings.Join(values, " ")
}
