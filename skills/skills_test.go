package skills

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	dir := t.TempDir()

	db, err := sql.Open("sqlite", filepath.Join(dir, "skills.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	c := NewCatalog(db, filepath.Join(dir, "skills"))
	if err := c.InitTables(); err != nil {
		t.Fatalf("InitTables: %v", err)
	}
	return c
}

func writeSkillFile(t *testing.T, c *Catalog, name, content string) {
	t.Helper()
	if err := os.MkdirAll(c.skillDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(c.skillDir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestParseSkillFile_Frontmatter(t *testing.T) {
	data := []byte(`---
name: Deep Debugging
description: Root-cause analysis
category: engineering
---
Use a debugger before adding print statements.`)

	s, err := parseSkillFile("debugging.md", data)
	if err != nil {
		t.Fatalf("parseSkillFile: %v", err)
	}
	if s.ID != "debugging" {
		t.Errorf("ID = %q, want debugging", s.ID)
	}
	if s.Name != "Deep Debugging" || s.Description != "Root-cause analysis" || s.Category != "engineering" {
		t.Errorf("frontmatter = %+v", s)
	}
	if s.Content != "Use a debugger before adding print statements." {
		t.Errorf("Content = %q", s.Content)
	}
}

func TestParseSkillFile_NoFrontmatter(t *testing.T) {
	s, err := parseSkillFile("api-design.md", []byte("Keep handlers thin."))
	if err != nil {
		t.Fatalf("parseSkillFile: %v", err)
	}
	if s.Name != "Api Design" {
		t.Errorf("Name = %q, want title-cased fallback", s.Name)
	}
	if s.Content != "Keep handlers thin." {
		t.Errorf("Content = %q", s.Content)
	}
}

func TestLoadFromDirectory_MissingDirIsFine(t *testing.T) {
	c := newTestCatalog(t)
	if err := c.LoadFromDirectory(); err != nil {
		t.Fatalf("LoadFromDirectory on missing dir: %v", err)
	}
}

func TestLoadFromDirectory_UpsertAndGet(t *testing.T) {
	c := newTestCatalog(t)
	writeSkillFile(t, c, "debugging.md", `---
name: Debugging
description: first pass
---
body`)
	writeSkillFile(t, c, "notes.txt", "ignored, not markdown")

	if err := c.LoadFromDirectory(); err != nil {
		t.Fatalf("LoadFromDirectory: %v", err)
	}
	s, err := c.Get("Debugging") // lookup is case-insensitive
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s == nil || s.Description != "first pass" {
		t.Fatalf("Get = %+v", s)
	}

	// Reloading with changed content updates in place, no duplicate rows.
	writeSkillFile(t, c, "debugging.md", `---
name: Debugging
description: second pass
---
body`)
	if err := c.LoadFromDirectory(); err != nil {
		t.Fatalf("LoadFromDirectory reload: %v", err)
	}
	s, _ = c.Get("debugging")
	if s.Description != "second pass" {
		t.Errorf("Description = %q, want second pass", s.Description)
	}
	all, err := c.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("List = %d skills, want 1", len(all))
	}
}

func TestGet_UncatalogedReturnsNil(t *testing.T) {
	c := newTestCatalog(t)
	s, err := c.Get("nonexistent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s != nil {
		t.Errorf("Get = %+v, want nil for uncataloged tag", s)
	}
}

func TestList_OrderedByName(t *testing.T) {
	c := newTestCatalog(t)
	writeSkillFile(t, c, "zeta.md", "z")
	writeSkillFile(t, c, "alpha.md", "a")
	if err := c.LoadFromDirectory(); err != nil {
		t.Fatalf("LoadFromDirectory: %v", err)
	}
	all, err := c.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 || all[0].ID != "alpha" || all[1].ID != "zeta" {
		t.Errorf("List order = %+v", all)
	}
}
