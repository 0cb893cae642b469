// Package skills manages the skill catalog: human-readable descriptions of
// the skill tags agents advertise and tasks require. The catalog is
// advisory; delegation matches raw tags regardless of whether they are
// cataloged.
package skills

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Skill describes one skill tag.
type Skill struct {
	ID          string    `json:"id"` // the tag, e.g. "debugging"
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Content     string    `json:"content"` // markdown body
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"created_at"`
}

// skillFrontmatter is the YAML frontmatter structure for skill files.
type skillFrontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
}

const createSkillsTable = `
CREATE TABLE IF NOT EXISTS skills (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	content     TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Catalog manages skills stored in SQLite, loaded from markdown files.
type Catalog struct {
	db       *sql.DB
	skillDir string
}

// NewCatalog creates a Catalog with the given database and skill directory.
func NewCatalog(db *sql.DB, skillDir string) *Catalog {
	return &Catalog{db: db, skillDir: skillDir}
}

// InitTables creates the skills table.
func (c *Catalog) InitTables() error {
	if _, err := c.db.Exec(createSkillsTable); err != nil {
		return fmt.Errorf("skills: create table: %w", err)
	}
	return nil
}

// LoadFromDirectory reads .md files from the skill directory and upserts
// them into the catalog. A missing directory is fine.
func (c *Catalog) LoadFromDirectory() error {
	entries, err := os.ReadDir(c.skillDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("skills: read dir %q: %w", c.skillDir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		fpath := filepath.Join(c.skillDir, entry.Name())
		data, err := os.ReadFile(fpath)
		if err != nil {
			return fmt.Errorf("skills: read file %q: %w", fpath, err)
		}
		skill, err := parseSkillFile(entry.Name(), data)
		if err != nil {
			return fmt.Errorf("skills: parse %q: %w", fpath, err)
		}

		_, err = c.db.Exec(`
INSERT INTO skills (id, name, description, content, category)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    description = excluded.description,
    content = excluded.content,
    category = excluded.category`,
			skill.ID, skill.Name, skill.Description, skill.Content, skill.Category,
		)
		if err != nil {
			return fmt.Errorf("skills: upsert %q: %w", skill.ID, err)
		}
	}
	return nil
}

// Get retrieves a skill by tag. Returns (nil, nil) if not cataloged.
func (c *Catalog) Get(id string) (*Skill, error) {
	row := c.db.QueryRow(
		`SELECT id, name, description, content, category, created_at FROM skills WHERE id = ?`,
		strings.ToLower(id))
	s, err := scanSkill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// List returns all cataloged skills ordered by name.
func (c *Catalog) List() ([]Skill, error) {
	rows, err := c.db.Query(
		`SELECT id, name, description, content, category, created_at FROM skills ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("skills: list: %w", err)
	}
	defer rows.Close()

	var skills []Skill
	for rows.Next() {
		s, err := scanSkill(rows)
		if err != nil {
			return nil, err
		}
		skills = append(skills, *s)
	}
	return skills, rows.Err()
}

// parseSkillFile parses a markdown file with YAML frontmatter into a Skill.
// The filename (without .md) is the skill tag.
func parseSkillFile(filename string, data []byte) (*Skill, error) {
	id := strings.ToLower(strings.TrimSuffix(filename, ".md"))
	content := string(data)

	var fm skillFrontmatter
	body := content

	if strings.HasPrefix(strings.TrimSpace(content), "---") {
		parts := strings.SplitN(strings.TrimSpace(content), "---", 3)
		if len(parts) >= 3 {
			if err := yaml.Unmarshal([]byte(parts[1]), &fm); err != nil {
				return nil, fmt.Errorf("parse frontmatter: %w", err)
			}
			body = strings.TrimSpace(parts[2])
		}
	}

	name := fm.Name
	if name == "" {
		name = strings.ReplaceAll(id, "-", " ")
		name = cases.Title(language.English).String(name)
	}

	return &Skill{
		ID:          id,
		Name:        name,
		Description: fm.Description,
		Content:     body,
		Category:    fm.Category,
		CreatedAt:   time.Now(),
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSkill(s scanner) (*Skill, error) {
	var sk Skill
	var createdAt string
	if err := s.Scan(&sk.ID, &sk.Name, &sk.Description, &sk.Content, &sk.Category, &createdAt); err != nil {
		return nil, err
	}
	if t, err := time.Parse("2006-01-02 15:04:05", createdAt); err == nil {
		sk.CreatedAt = t
	}
	return &sk, nil
}
