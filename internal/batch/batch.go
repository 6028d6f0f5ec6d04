// Package batch implements the Batch Query Executor: one shared document
// scan evaluated against many queries in parallel, with
// golang.org/x/sync/errgroup bounding the fan-out.
package batch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cuedeck/cue/internal/card"
	"github.com/cuedeck/cue/internal/parser"
	"github.com/cuedeck/cue/internal/query"
)

// NamedQuery pairs a caller-supplied id with a raw query string and an
// optional per-query result limit (0 means unlimited).
type NamedQuery struct {
	ID    string
	Raw   string
	Limit int
}

// Result is one query's outcome, indexed by NamedQuery.ID. Count is the
// pre-limit match count, so Count >= len(Documents) always holds; Err
// carries a parse failure without failing the batch.
type Result struct {
	ID        string
	Documents []card.Document
	Count     int
	Err       error
}

// Response is the whole batch's outcome.
type Response struct {
	Results               []Result
	ExecutionTimeMs       int64
	TotalDocumentsScanned int
}

// maxConcurrency bounds how many queries evaluate at once, independent of
// how many queries are submitted.
const maxConcurrency = 8

// Run scans <root>/.cuedeck/cards once at depth 1, parses every markdown
// card, and evaluates all queries against that shared document set. The
// documents in each result follow directory iteration order; per-query
// parse errors land in that query's Result without aborting the batch.
func Run(ctx context.Context, root string, queries []NamedQuery) (Response, error) {
	start := time.Now()

	docs, err := scanCards(root)
	if err != nil {
		return Response{}, err
	}

	results := Execute(ctx, docs, queries)
	return Response{
		Results:               results,
		ExecutionTimeMs:       time.Since(start).Milliseconds(),
		TotalDocumentsScanned: len(docs),
	}, nil
}

// scanCards parses every *.md directly inside the cards directory. A
// missing directory is an empty workspace, not an error; unparsable files
// are skipped.
func scanCards(root string) ([]card.Document, error) {
	dir := filepath.Join(root, ".cuedeck", "cards")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p := parser.New()
	var docs []card.Document
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		rel := filepath.ToSlash(filepath.Join(".cuedeck", "cards", e.Name()))
		doc, parseErr := p.ParseFile(filepath.Join(dir, e.Name()), rel)
		if parseErr != nil {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Execute evaluates every query against the same docs slice concurrently.
// Each worker reads the shared, immutable docs and writes only its own
// result slot, so no synchronization is needed beyond the final join.
func Execute(ctx context.Context, docs []card.Document, queries []NamedQuery) []Result {
	results := make([]Result, len(queries))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)

	for i, nq := range queries {
		i, nq := i, nq
		g.Go(func() error {
			select {
			case <-ctx.Done():
				results[i] = Result{ID: nq.ID, Err: ctx.Err()}
				return nil
			default:
			}

			q, err := query.Parse(nq.Raw)
			if err != nil {
				results[i] = Result{ID: nq.ID, Err: err}
				return nil
			}

			var matches []card.Document
			for _, d := range docs {
				if query.Match(d, q) {
					matches = append(matches, d)
				}
			}
			count := len(matches)
			if nq.Limit > 0 && len(matches) > nq.Limit {
				matches = matches[:nq.Limit]
			}
			results[i] = Result{ID: nq.ID, Documents: matches, Count: count}
			return nil
		})
	}

	_ = g.Wait() // workers report failures through their result slot
	return results
}
