// Package parser reads a single Markdown card and produces an immutable
// card.Document: front-matter, anchors, wiki-links, hash, and a token
// estimate.
package parser

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cuedeck/cue/internal/card"
	"github.com/cuedeck/cue/internal/errs"
)

// Parser reads cards from disk. Warnings (e.g. invalid front-matter) are
// written to a dedicated logger, never to stdout — stdout is reserved for
// JSON-RPC frames once the engine is wired behind the MCP server.
type Parser struct {
	Warnf func(format string, args ...any)
}

// New returns a Parser that logs warnings to stderr via the standard logger.
func New() *Parser {
	return &Parser{Warnf: log.Printf}
}

// ParseFile reads path, normalizes it to wsRelPath, and returns a Document.
func (p *Parser) ParseFile(path, wsRelPath string) (card.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return card.Document{}, &errs.FileNotFoundError{Path: path}
		}
		return card.Document{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return p.Parse(raw, wsRelPath)
}

// Parse parses already-read bytes. normPath must already use "/" separators.
func (p *Parser) Parse(raw []byte, normPath string) (card.Document, error) {
	hash := sha256.Sum256(raw)

	fm, body := splitFrontmatter(raw)
	var meta *card.CardMetadata
	if fm != "" {
		var m card.CardMetadata
		if err := yaml.Unmarshal([]byte(fm), &m); err != nil {
			if p.Warnf != nil {
				p.Warnf("cuedeck: invalid front-matter in %s: %v", normPath, err)
			}
		} else {
			meta = m.WithDefaults()
		}
	}

	anchors := scanAnchors(raw)
	links := scanLinks(body)

	doc := card.Document{
		Path:        normPath,
		Frontmatter: meta,
		Hash:        hex.EncodeToString(hash[:]),
		Tokens:      uint64(len(raw)) / 4,
		Anchors:     anchors,
		Links:       links,
	}
	return doc, nil
}

// splitFrontmatter returns the raw YAML block (without fences) and the
// byte body that follows it. scanLinks runs over this body only, so links
// inside the front matter are not collected; anchors are scanned over the
// full raw input.
func splitFrontmatter(raw []byte) (fm string, body []byte) {
	s := string(raw)
	s = strings.TrimPrefix(s, "\ufeff")
	rest := s
	rest = strings.ReplaceAll(rest, "\r\n", "\n")
	if !strings.HasPrefix(rest, "---") {
		return "", raw
	}
	// First line must be exactly "---".
	firstNL := strings.IndexByte(rest, '\n')
	if firstNL == -1 || strings.TrimRight(rest[:firstNL], " \t") != "---" {
		return "", raw
	}
	closeIdx := strings.Index(rest[firstNL+1:], "\n---")
	if closeIdx == -1 {
		return "", raw
	}
	closeIdx += firstNL + 1
	block := rest[firstNL+1 : closeIdx]
	afterFence := rest[closeIdx+len("\n---"):]
	// Skip to end of the closing fence line.
	if nl := strings.IndexByte(afterFence, '\n'); nl != -1 {
		afterFence = afterFence[nl+1:]
	} else {
		afterFence = ""
	}
	return block, []byte(afterFence)
}

// scanAnchors finds every "N# heading" line (N=1..6) in raw.
func scanAnchors(raw []byte) []card.Anchor {
	var anchors []card.Anchor
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		level, header, ok := headingLevel(line)
		if !ok {
			continue
		}
		anchors = append(anchors, card.Anchor{
			Slug:      slugify(header),
			Header:    header,
			Level:     level,
			StartLine: lineNo,
			EndLine:   lineNo,
		})
	}
	return anchors
}

func headingLevel(line string) (level int, header string, ok bool) {
	n := 0
	for n < len(line) && line[n] == '#' {
		n++
	}
	if n == 0 || n > 6 {
		return 0, "", false
	}
	if n >= len(line) || (line[n] != ' ' && line[n] != '\t') {
		return 0, "", false
	}
	return n, strings.TrimSpace(line[n:]), true
}

func slugify(header string) string {
	lower := strings.ToLower(header)
	var b strings.Builder
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		case r == '-':
			b.WriteByte('-')
		}
	}
	return b.String()
}

// scanLinks extracts [[target]] wiki-links in insertion order.
func scanLinks(body []byte) []string {
	var links []string
	s := string(body)
	for {
		start := strings.Index(s, "[[")
		if start == -1 {
			break
		}
		end := strings.Index(s[start:], "]]")
		if end == -1 {
			break
		}
		target := strings.TrimSpace(s[start+2 : start+end])
		if target != "" {
			links = append(links, target)
		}
		s = s[start+end+2:]
	}
	return links
}

// NormalizePath converts a filesystem path to the workspace-relative,
// forward-slash form Document.Path requires.
func NormalizePath(relPath string) string {
	return strings.ReplaceAll(relPath, "\\", "/")
}
