package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdfmark/editor"
	"github.com/wudi/pdfmark/render/rendertest"
	"github.com/wudi/pdfmark/view"
)

func parse(args ...string) (options, error) {
	fs := flag.NewFlagSet("pdfmark", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return parseFlags(fs, args)
}

func TestParseFlags(t *testing.T) {
	opts, err := parse("-search", "total", "-lang", "eng, deu", "-share-cmd", "mail -s hi", "-rotate", "180", "in.pdf")
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if opts.pdfPath != "in.pdf" || opts.query != "total" || opts.rotate != 180 {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if diff := cmp.Diff([]string{"eng", "deu"}, opts.languages); diff != "" {
		t.Fatalf("languages mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"mail", "-s", "hi"}, opts.shareCmd); diff != "" {
		t.Fatalf("share command mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFlagsRejects(t *testing.T) {
	cases := [][]string{
		{},
		{"a.pdf", "b.pdf"},
		{"-rotate", "45", "in.pdf"},
		{"-note", "hello", "in.pdf"},
		{"-columns", "0", "in.pdf"},
		{"-viewport", "wide", "in.pdf"},
		{"-quality", "90", "in.pdf"},
	}
	for _, args := range cases {
		if _, err := parse(args...); err == nil {
			t.Fatalf("parseFlags(%q) succeeded", args)
		}
	}
}

func TestAsk(t *testing.T) {
	cases := map[string]bool{"y\n": true, " YES \n": true, "n\n": false, "": false, "maybe\n": false}
	for input, want := range cases {
		var out bytes.Buffer
		if got := ask(strings.NewReader(input), &out, "Download?"); got != want {
			t.Fatalf("ask(%q) = %v, want %v", input, got, want)
		}
		if out.String() != "Download? [y/N] " {
			t.Fatalf("prompt = %q", out.String())
		}
	}
}

func TestShareTarget(t *testing.T) {
	if shareTarget(nil) != nil {
		t.Fatalf("empty command produced a target")
	}
}

func TestParseSize(t *testing.T) {
	got, err := parseSize("1024X 768")
	if err != nil || got != (view.Size{Width: 1024, Height: 768}) {
		t.Fatalf("parseSize() = %+v, %v", got, err)
	}
	for _, bad := range []string{"", "1024", "0x10", "axb"} {
		if _, err := parseSize(bad); err == nil {
			t.Fatalf("parseSize(%q) succeeded", bad)
		}
	}
}

func TestSummarizeLayout(t *testing.T) {
	cfg := editor.DefaultConfig()
	cfg.Columns = 2
	s := editor.New(cfg)
	if err := s.LoadDocument(context.Background(), "a.pdf", rendertest.New(3)); err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	got, err := summarizeLayout(s)
	if err != nil {
		t.Fatalf("summarizeLayout() error = %v", err)
	}
	if got.Columns != 2 || got.Zoom != 100 || len(got.Pages) != 3 {
		t.Fatalf("unexpected summary %+v", got)
	}
	if got.Pages[2].Page != 3 || got.Pages[2].X != 0 || got.Pages[2].Y <= got.Pages[0].Y {
		t.Fatalf("third page not on the second row: %+v", got.Pages[2])
	}
}
