package vault

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Note is one structured markdown record in the vault. Fields are stored as
// YAML frontmatter, Body as the markdown below it.
type Note struct {
	ID        string            `yaml:"id"`
	Folder    string            `yaml:"folder"`
	Title     string            `yaml:"title,omitempty"`
	Fields    map[string]string `yaml:"fields,omitempty"`
	Tags      []string          `yaml:"tags,omitempty"`
	CreatedAt time.Time         `yaml:"created_at"`
	UpdatedAt time.Time         `yaml:"updated_at"`
	Body      string            `yaml:"-"`
}

// Field returns the frontmatter value for key, or "" when absent.
func (n *Note) Field(key string) string {
	if n.Fields == nil {
		return ""
	}
	return n.Fields[key]
}

const frontmatterFence = "---"

// encode renders the note as frontmatter + body.
func (n *Note) encode() ([]byte, error) {
	meta, err := yaml.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshal frontmatter: %w", err)
	}

	var b strings.Builder
	b.WriteString(frontmatterFence)
	b.WriteString("\n")
	b.Write(meta)
	b.WriteString(frontmatterFence)
	b.WriteString("\n\n")
	b.WriteString(n.Body)
	if !strings.HasSuffix(n.Body, "\n") {
		b.WriteString("\n")
	}
	return []byte(b.String()), nil
}

// decodeNote parses a markdown document with YAML frontmatter.
func decodeNote(raw []byte) (*Note, error) {
	text := string(raw)
	if !strings.HasPrefix(text, frontmatterFence+"\n") {
		return nil, fmt.Errorf("note is missing frontmatter")
	}
	rest := text[len(frontmatterFence)+1:]
	end := strings.Index(rest, "\n"+frontmatterFence)
	if end < 0 {
		return nil, fmt.Errorf("unterminated frontmatter")
	}

	var note Note
	if err := yaml.Unmarshal([]byte(rest[:end]), &note); err != nil {
		return nil, fmt.Errorf("unmarshal frontmatter: %w", err)
	}

	body := rest[end+len(frontmatterFence)+1:]
	note.Body = strings.TrimPrefix(strings.TrimPrefix(body, "\n"), "\n")
	return &note, nil
}
