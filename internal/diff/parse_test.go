package diff

import (
	"testing"
)

func TestParseShortstat(t *testing.T) {
	stats := parseShortstat(" 5 files changed, 120 insertions(+), 45 deletions(-)\n")
	if stats.FilesChanged != 5 || stats.Additions != 120 || stats.Deletions != 45 {
		t.Errorf("parseShortstat() = %+v", stats)
	}

	stats = parseShortstat(" 1 file changed, 1 insertion(+)")
	if stats.FilesChanged != 1 || stats.Additions != 1 || stats.Deletions != 0 {
		t.Errorf("parseShortstat(singular) = %+v", stats)
	}

	stats = parseShortstat("")
	if stats.FilesChanged != 0 {
		t.Errorf("parseShortstat(empty) = %+v", stats)
	}
}

func TestParseNumstat(t *testing.T) {
	out := "10\t2\tinternal/api/server.go\n-\t-\tassets/logo.png\n3\t3\tdocs/{old => new}/guide.md\n"
	files := parseNumstat(out)
	if len(files) != 3 {
		t.Fatalf("parseNumstat() returned %d files, want 3", len(files))
	}
	if files[0].Path != "internal/api/server.go" || files[0].Additions != 10 || files[0].Deletions != 2 {
		t.Errorf("first file = %+v", files[0])
	}
	if !files[1].Binary {
		t.Errorf("binary file not detected: %+v", files[1])
	}
	if files[2].Path != "docs/new/guide.md" {
		t.Errorf("rename path = %q, want docs/new/guide.md", files[2].Path)
	}
}

func TestResolveRenamePath(t *testing.T) {
	cases := map[string]string{
		"old.txt => new.txt":            "new.txt",
		"dir/{old.txt => new.txt}":      "dir/new.txt",
		"{old => new}/file.txt":         "new/file.txt",
		"src/{pkg => internal}/util.go": "src/internal/util.go",
		"plain.txt":                     "plain.txt",
	}
	for in, want := range cases {
		if got := resolveRenamePath(in); got != want {
			t.Errorf("resolveRenamePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestApplyNameStatus(t *testing.T) {
	files := []FileDiff{
		{Path: "added.go", Status: "modified"},
		{Path: "gone.go", Status: "modified"},
		{Path: "renamed.go", Status: "modified"},
	}
	out := "A\tadded.go\nD\tgone.go\nR87\told.go\trenamed.go\n"
	applyNameStatus(files, out)

	if files[0].Status != "added" {
		t.Errorf("added.go status = %q", files[0].Status)
	}
	if files[1].Status != "deleted" {
		t.Errorf("gone.go status = %q", files[1].Status)
	}
	if files[2].Status != "renamed" || files[2].OldPath != "old.go" {
		t.Errorf("renamed.go = %+v", files[2])
	}
}

func TestParseUnified(t *testing.T) {
	out := `diff --git a/greet.go b/greet.go
index 1234567..89abcde 100644
--- a/greet.go
+++ b/greet.go
@@ -1,4 +1,5 @@
 package main

-func greet() string { return "hi" }
+func greet() string { return "hello" }
+func wave()  {}

`
	fd := parseUnified(out, "greet.go")
	if fd.Additions != 2 || fd.Deletions != 1 {
		t.Errorf("counts = +%d -%d, want +2 -1", fd.Additions, fd.Deletions)
	}
	if len(fd.Hunks) != 1 {
		t.Fatalf("hunks = %d, want 1", len(fd.Hunks))
	}
	h := fd.Hunks[0]
	if h.OldStart != 1 || h.OldLines != 4 || h.NewStart != 1 || h.NewLines != 5 {
		t.Errorf("hunk header = %+v", h)
	}

	var adds, dels, ctxLines int
	for _, line := range h.Lines {
		switch line.Type {
		case "addition":
			adds++
			if line.NewLine == 0 {
				t.Error("addition missing new line number")
			}
		case "deletion":
			dels++
			if line.OldLine == 0 {
				t.Error("deletion missing old line number")
			}
		case "context":
			ctxLines++
		}
	}
	if adds != 2 || dels != 1 {
		t.Errorf("line types: %d additions, %d deletions", adds, dels)
	}
	if ctxLines == 0 {
		t.Error("no context lines parsed")
	}
}

func TestParseUnifiedBinary(t *testing.T) {
	fd := parseUnified("Binary files a/logo.png and b/logo.png differ\n", "logo.png")
	if !fd.Binary {
		t.Error("binary marker not detected")
	}
	if len(fd.Hunks) != 0 {
		t.Errorf("binary diff has %d hunks", len(fd.Hunks))
	}
}

func TestCacheLRUEviction(t *testing.T) {
	c := NewCache(2)
	c.Set("base:a.go", &FileDiff{Path: "a.go"})
	c.Set("base:b.go", &FileDiff{Path: "b.go"})

	// Touch a.go so b.go becomes the eviction candidate.
	if got := c.Get("base:a.go"); got == nil {
		t.Fatal("a.go missing")
	}
	c.Set("base:c.go", &FileDiff{Path: "c.go"})

	if c.Get("base:b.go") != nil {
		t.Error("b.go should have been evicted")
	}
	if c.Get("base:a.go") == nil || c.Get("base:c.go") == nil {
		t.Error("a.go and c.go should survive")
	}
}

func TestCacheReturnsCopies(t *testing.T) {
	c := NewCache(4)
	c.Set("k", &FileDiff{Path: "x.go", Hunks: []Hunk{{Lines: []Line{{Type: "context", Content: "orig"}}}}})

	got := c.Get("k")
	got.Hunks[0].Lines[0].Content = "mutated"

	again := c.Get("k")
	if again.Hunks[0].Lines[0].Content != "orig" {
		t.Error("cache entry was mutated through a returned copy")
	}
}

func TestCacheClearAndInvalidate(t *testing.T) {
	c := NewCache(4)
	c.Set("abc:one.go", &FileDiff{Path: "one.go"})
	c.Set("abc:two.go", &FileDiff{Path: "two.go"})
	c.Set("def:three.go", &FileDiff{Path: "three.go"})

	c.Invalidate("abc:")
	if c.Len() != 1 {
		t.Errorf("after Invalidate len = %d, want 1", c.Len())
	}
	if c.Get("def:three.go") == nil {
		t.Error("unrelated entry dropped by Invalidate")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("after Clear len = %d, want 0", c.Len())
	}
}
