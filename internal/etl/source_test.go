package etl_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"textingest/internal/etl"
	_ "textingest/internal/etl/sources"
)

func collect(t *testing.T, src etl.LineSource) []etl.RawLine {
	t.Helper()
	var out []etl.RawLine
	for src.Next() {
		out = append(out, src.Line())
	}
	if err := src.Err(); err != nil {
		t.Fatalf("Err: %v", err)
	}
	return out
}

func TestLineReader(t *testing.T) {
	src := etl.NewLineReader("x", io.NopCloser(strings.NewReader("a\r\nb\n\nc")))
	lines := collect(t, src)
	want := []string{"a", "b", "", "c"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %+v", lines)
	}
	for i, l := range lines {
		if l.Number != i+1 || l.Text != want[i] {
			t.Errorf("line %d = %+v", i, l)
		}
	}
	if err := src.Close(); err != nil {
		t.Fatal(err)
	}
	if err := src.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestLineReaderTrailingNewline(t *testing.T) {
	lines := collect(t, etl.NewLineReader("x", io.NopCloser(strings.NewReader("a\nb\n"))))
	if len(lines) != 2 {
		t.Errorf("expected 2 lines, got %d", len(lines))
	}
}

func TestOpenLinesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte("1,a\n2,b\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, loc := range []string{path, "file://" + path} {
		src, err := etl.OpenLines(context.Background(), loc)
		if err != nil {
			t.Fatalf("OpenLines(%q): %v", loc, err)
		}
		if n := len(collect(t, src)); n != 2 {
			t.Errorf("%s: %d lines", loc, n)
		}
		src.Close()
	}
}

func TestOpenLinesErrors(t *testing.T) {
	dir := t.TempDir()
	for _, loc := range []string{filepath.Join(dir, "missing.csv"), dir, "ftp://host/data.csv"} {
		_, err := etl.OpenLines(context.Background(), loc)
		var fe *etl.FatalIOError
		if !errors.As(err, &fe) {
			t.Errorf("%s: expected *etl.FatalIOError, got %v", loc, err)
		}
	}
}

func TestOpenLinesUnknownSchemeListsRegistered(t *testing.T) {
	_, err := etl.OpenLines(context.Background(), "ftp://example.com/data.txt")
	if err == nil {
		t.Fatal("expected error for ftp scheme")
	}
	for _, want := range []string{`"ftp"`, "file", "http", "https"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestOpenLinesHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data.csv" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, "34,Lisbon\n35,Porto\n")
	}))
	defer srv.Close()

	src, err := etl.OpenLines(context.Background(), srv.URL+"/data.csv")
	if err != nil {
		t.Fatalf("OpenLines: %v", err)
	}
	defer src.Close()
	lines := collect(t, src)
	if len(lines) != 2 || lines[1].Text != "35,Porto" {
		t.Errorf("lines = %+v", lines)
	}

	if _, err := etl.OpenLines(context.Background(), srv.URL+"/missing.csv"); err == nil {
		t.Error("expected error for 404")
	}
}

func TestSchemeOf(t *testing.T) {
	tests := map[string]string{
		"/tmp/a.csv":            "file",
		"data.csv":              "file",
		"file:///tmp/a.csv":     "file",
		"HTTPS://example.com/x": "https",
		"http://example.com/x":  "http",
	}
	for in, want := range tests {
		if got := etl.SchemeOf(in); got != want {
			t.Errorf("SchemeOf(%q) = %q, want %q", in, got, want)
		}
	}
}
