package search

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuedeck/cue/internal/card"
	"github.com/cuedeck/cue/internal/embedding"
	"github.com/cuedeck/cue/internal/parser"
)

const defaultEmbeddingCapacity = 1000

// scanWorkspace walks root for markdown files outside the noise
// directories and parses each into a Document, retaining raw bodies for
// the content lookup.
func scanWorkspace(root string) ([]card.Document, ContentLookup, error) {
	p := parser.New()
	var docs []card.Document
	bodies := make(map[string]string)

	err := filepath.WalkDir(root, func(abs string, d fs.DirEntry, err error) error {
		if err != nil || d == nil {
			return nil
		}
		if d.IsDir() {
			if noiseDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(abs, ".md") {
			return nil
		}
		rel, relErr := filepath.Rel(root, abs)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		doc, parseErr := p.ParseFile(abs, rel)
		if parseErr != nil {
			return nil
		}
		raw, readErr := os.ReadFile(abs)
		if readErr != nil {
			return nil
		}
		docs = append(docs, doc)
		bodies[rel] = string(raw)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	lookup := func(d card.Document) string { return bodies[d.Path] }
	return docs, lookup, nil
}

func newWorkspaceSearcher(root string, weights Weights) (*Searcher, error) {
	docs, lookup, err := scanWorkspace(root)
	if err != nil {
		return nil, err
	}
	embed := embedding.New(root, defaultEmbeddingCapacity, &embedding.LocalEmbedder{})
	if err := embed.Load(); err != nil {
		return nil, err
	}
	return &Searcher{Docs: docs, Content: lookup, Embed: embed, Weights: weights}, nil
}

// SearchWorkspace returns the top-10 documents for query, in keyword mode
// or, when semantic is set, semantic mode. The caller-supplied flag is
// authoritative; no configured default is consulted.
func SearchWorkspace(ctx context.Context, root, query string, semantic bool) ([]card.Document, error) {
	mode := ModeKeyword
	if semantic {
		mode = ModeSemantic
	}
	page, err := SearchWorkspacePaginated(ctx, root, query, mode, nil, 10, "")
	if err != nil {
		return nil, err
	}
	return page.Docs, nil
}

// SearchWorkspaceWithMode ranks the workspace's documents for query under
// mode, applying filters (if any) after scoring.
func SearchWorkspaceWithMode(ctx context.Context, root, query string, mode Mode, filters *Filters) ([]card.Document, error) {
	scored, err := scoreWorkspace(ctx, root, query, mode, filters)
	if err != nil {
		return nil, err
	}
	docs := make([]card.Document, 0, len(scored))
	for _, s := range scored {
		docs = append(docs, s.Doc)
	}
	return docs, nil
}

// SearchWorkspacePaginated is SearchWorkspaceWithMode plus opaque cursor
// pagination; limit is clamped to 50.
func SearchWorkspacePaginated(ctx context.Context, root, query string, mode Mode, filters *Filters, limit int, cursor string) (Page, error) {
	scored, err := scoreWorkspace(ctx, root, query, mode, filters)
	if err != nil {
		return Page{}, err
	}
	return Paginate(scored, query, mode, limit, cursor)
}

func scoreWorkspace(ctx context.Context, root, query string, mode Mode, filters *Filters) ([]Scored, error) {
	s, err := newWorkspaceSearcher(root, Weights{Semantic: 0.7, Keyword: 0.3})
	if err != nil {
		return nil, err
	}

	var scored []Scored
	switch mode {
	case ModeSemantic:
		scored, err = s.Semantic(ctx, query)
	case ModeHybrid:
		scored, err = s.Hybrid(ctx, query)
	default:
		scored = s.Keyword(query)
	}
	if err != nil {
		return nil, err
	}

	if filters != nil {
		scored = ApplyFilters(scored, *filters)
	}
	return scored, nil
}
