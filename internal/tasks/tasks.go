// Package tasks implements the Task Store: create/read/update
// /list cards on disk, front-matter-preserving updates, ID generation, and
// priority ordering.
package tasks

import (
	"crypto/rand"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuedeck/cue/internal/card"
	"github.com/cuedeck/cue/internal/errs"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// cardsDir returns <root>/.cuedeck/cards.
func cardsDir(root string) string { return filepath.Join(root, ".cuedeck", "cards") }

// GenerateID returns a 6-character lowercase alphanumeric ID from a
// cryptographically-seeded RNG. Collisions are tolerated but extremely
// unlikely.
func GenerateID() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	id := make([]byte, 6)
	for i, b := range buf {
		id[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(id), nil
}

// priorityRank orders critical > high > medium > low > other.
func priorityRank(p string) int {
	switch strings.ToLower(p) {
	case "critical":
		return 0
	case "high":
		return 1
	case "medium":
		return 2
	case "low":
		return 3
	default:
		return 4
	}
}

// ListTasks scans .cuedeck/cards/*.md at depth 1, parsing each and
// filtering by equality on status/assignee, ordered by priority.
func ListTasks(root string, status, assignee *string) ([]card.Document, error) {
	dir := cardsDir(root)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var docs []card.Document
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		doc, err := parseCard(path)
		if err != nil {
			continue // a bad card never aborts the listing
		}
		if status != nil && (doc.Frontmatter == nil || !strings.EqualFold(doc.Frontmatter.Status, *status)) {
			continue
		}
		if assignee != nil && (doc.Frontmatter == nil || !strings.EqualFold(doc.Frontmatter.Assignee, *assignee)) {
			continue
		}
		docs = append(docs, doc)
	}

	sort.SliceStable(docs, func(i, j int) bool {
		pi, pj := "medium", "medium"
		if docs[i].Frontmatter != nil {
			pi = docs[i].Frontmatter.Priority
		}
		if docs[j].Frontmatter != nil {
			pj = docs[j].Frontmatter.Priority
		}
		return priorityRank(pi) < priorityRank(pj)
	})
	return docs, nil
}

func parseCard(path string) (card.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return card.Document{}, err
	}
	fm, _ := fencedFrontmatter(raw)
	var meta *card.CardMetadata
	if fm != "" {
		var m card.CardMetadata
		if err := yaml.Unmarshal([]byte(fm), &m); err == nil {
			meta = m.WithDefaults()
		}
	}
	stem := strings.TrimSuffix(filepath.Base(path), ".md")
	_ = stem
	return card.Document{Path: path, Frontmatter: meta}, nil
}

// fencedFrontmatterRE matches the canonical "---\n...\n---" fenced block
// the Task Store uses for every read-modify-write cycle.
var fencedFrontmatterRE = regexp.MustCompile(`(?s)^---\r?\n(.*?)\r?\n---\r?\n?`)

func fencedFrontmatter(raw []byte) (fm string, rest []byte) {
	loc := fencedFrontmatterRE.FindSubmatchIndex(raw)
	if loc == nil {
		return "", raw
	}
	fm = string(raw[loc[2]:loc[3]])
	rest = raw[loc[1]:]
	return fm, rest
}

// CreateTask writes a new card with a fresh ID and default front-matter,
// returning the created path.
func CreateTask(root, title string) (string, error) {
	dir := cardsDir(root)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	id, err := GenerateID()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, id+".md")

	meta := card.CardMetadata{
		Title:    title,
		Status:   "todo",
		Assignee: "",
		Priority: "medium",
		Created:  time.Now().UTC().Format(time.RFC3339),
	}
	fm, err := yaml.Marshal(meta)
	if err != nil {
		return "", err
	}
	content := fmt.Sprintf("---\n%s---\n\n# %s\n", fm, title)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// UpdateTask reads id's card, merges scalar/bool/number updates into its
// front-matter mapping, and rewrites the file with the body preserved
// byte-for-byte.
func UpdateTask(root, id string, updates map[string]any) error {
	path := filepath.Join(cardsDir(root), id+".md")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &errs.FileNotFoundError{Path: path}
		}
		return err
	}

	fm, body := fencedFrontmatter(raw)
	var node yaml.Node
	if fm != "" {
		if err := yaml.Unmarshal([]byte(fm), &node); err != nil {
			return &errs.ParseError{Kind: "yaml", Input: path, Underlying: err}
		}
	} else {
		node = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}

	mapping := node.Content[0]
	for key, val := range updates {
		switch val.(type) {
		case []any, map[string]any:
			continue // only scalar updates are merged
		}
		setScalar(mapping, key, val)
	}

	var out strings.Builder
	enc := yaml.NewEncoder(&out)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	enc.Close()

	newContent := "---\n" + out.String() + "---\n" + string(body)
	return os.WriteFile(path, []byte(newContent), 0o644)
}

func setScalar(mapping *yaml.Node, key string, val any) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content[i+1].SetString(scalarString(val))
			mapping.Content[i+1].Tag = scalarTag(val)
			return
		}
	}
	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: key}
	valNode := &yaml.Node{Kind: yaml.ScalarNode, Value: scalarString(val), Tag: scalarTag(val)}
	mapping.Content = append(mapping.Content, keyNode, valNode)
}

func scalarString(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func scalarTag(val any) string {
	switch v := val.(type) {
	case bool:
		return "!!bool"
	case float64:
		// JSON-RPC numerics all arrive as float64; only integral values may
		// carry the int tag.
		if v != math.Trunc(v) {
			return "!!float"
		}
		return "!!int"
	case int:
		return "!!int"
	default:
		return "!!str"
	}
}

// placeholderRE matches {{name}} template placeholders.
var placeholderRE = regexp.MustCompile(`\{\{(\w+)\}\}`)

// CreateFromTemplate reads <root>/.cuedeck/templates/<name>.md, substitutes
// every {{placeholder}} from values, and writes the result as a new card
// with a fresh ID, returning the created path.
func CreateFromTemplate(root, templateName string, values map[string]string) (string, error) {
	tplPath := filepath.Join(root, ".cuedeck", "templates", templateName+".md")
	raw, err := os.ReadFile(tplPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &errs.FileNotFoundError{Path: tplPath}
		}
		return "", err
	}

	expanded := placeholderRE.ReplaceAllStringFunc(string(raw), func(m string) string {
		name := placeholderRE.FindStringSubmatch(m)[1]
		if v, ok := values[name]; ok {
			return v
		}
		return m
	})

	dir := cardsDir(root)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	id, err := GenerateID()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, id+".md")
	if err := os.WriteFile(path, []byte(expanded), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
