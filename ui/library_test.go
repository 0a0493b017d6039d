package ui

import (
	"path/filepath"
	"testing"
)

func newTestLibrary(notes ...string) libraryModel {
	m := newLibraryModel(&commonModel{width: 80, height: 30})
	for _, n := range notes {
		m.addFile(&pdfFile{path: filepath.Join("/docs", n), note: n})
	}
	m.loaded = true
	return m
}

func notesOf(files []*pdfFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.note
	}
	return out
}

func TestLibraryAddFileSorted(t *testing.T) {
	m := newTestLibrary("report.pdf", "notes/paper.pdf", "book.pdf")

	want := []string{"book.pdf", "notes/paper.pdf", "report.pdf"}
	got := notesOf(m.files)
	if len(got) != len(want) {
		t.Fatalf("files = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("files = %v, want %v", got, want)
		}
	}
}

func TestLibraryFilterAndOpen(t *testing.T) {
	m := newTestLibrary("report.pdf", "notes/paper.pdf", "book.pdf")

	m, _ = m.update(key("/"))
	if !m.filtering() {
		t.Fatal("/ did not start filtering")
	}
	for _, r := range "pap" {
		m, _ = m.update(key(string(r)))
	}
	visible := m.visible()
	if len(visible) != 1 || visible[0].note != "notes/paper.pdf" {
		t.Fatalf("visible = %v", notesOf(visible))
	}

	m, _ = m.update(key("enter"))
	if m.filterState != filterApplied {
		t.Fatalf("filterState = %v, want applied", m.filterState)
	}

	m, cmd := m.update(key("enter"))
	if cmd == nil {
		t.Fatal("enter returned no command")
	}
	msg, ok := cmd().(openDocumentMsg)
	if !ok || msg.path != filepath.Join("/docs", "notes/paper.pdf") {
		t.Errorf("msg = %#v", msg)
	}

	m, _ = m.update(key("esc"))
	if m.filterState != unfiltered || len(m.visible()) != 3 {
		t.Errorf("esc left %d files, state %v", len(m.visible()), m.filterState)
	}
}

func TestLibraryCursor(t *testing.T) {
	m := newTestLibrary("a.pdf", "b.pdf", "c.pdf")

	m, _ = m.update(key("j"))
	m, _ = m.update(key("j"))
	m, _ = m.update(key("j"))
	if f := m.selected(); f == nil || f.note != "c.pdf" {
		t.Fatalf("selected = %+v, want c.pdf", f)
	}
	m, _ = m.update(key("g"))
	if f := m.selected(); f == nil || f.note != "a.pdf" {
		t.Errorf("after g selected = %+v, want a.pdf", f)
	}
}

func TestStripAbsolutePath(t *testing.T) {
	tests := []struct {
		path, cwd, want string
	}{
		{"/home/u/docs/a.pdf", "/home/u", "docs/a.pdf"},
		{"/srv/a.pdf", "/home/u", "/srv/a.pdf"},
	}
	for _, tt := range tests {
		if got := stripAbsolutePath(tt.path, tt.cwd); got != tt.want {
			t.Errorf("stripAbsolutePath(%q, %q) = %q, want %q", tt.path, tt.cwd, got, tt.want)
		}
	}
}
