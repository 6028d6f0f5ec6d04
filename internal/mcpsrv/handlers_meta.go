package mcpsrv

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cuedeck/cue/internal/card"
	"github.com/cuedeck/cue/internal/errs"
	"github.com/cuedeck/cue/internal/search"
)

func (s *Server) handlePing(_ context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return createJSONResponse("pong")
}

type readContextParams struct {
	Query  string `json:"query"`
	Limit  int    `json:"limit"`
	Cursor string `json:"cursor"`
}

func (s *Server) handleReadContext(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.limiter.readContext.Allow("default", "read_context", time.Now()); err != nil {
		return createErrorResponse("read_context", err)
	}

	var params readContextParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("read_context", &errs.ValidationError{Field: "arguments", Reason: err.Error()})
	}
	if params.Query == "" {
		return createErrorResponse("read_context", &errs.ValidationError{Field: "query", Reason: "must not be empty"})
	}
	if params.Limit <= 0 {
		params.Limit = 10
	}

	docs := s.engine.Documents()
	cfg := s.engine.Config
	searcher := &search.Searcher{
		Docs:    docs,
		Content: s.contentOf,
		Embed:   s.embed,
		Weights: search.Weights{Semantic: cfg.Search.SemanticWeight, Keyword: cfg.Search.KeywordWeight},
	}

	mode, err := search.ModeFromString(cfg.Search.DefaultMode)
	if err != nil {
		return createErrorResponse("read_context", err)
	}

	var scored []search.Scored
	switch mode {
	case search.ModeKeyword:
		scored = searcher.Keyword(params.Query)
	case search.ModeSemantic:
		scored, err = searcher.Semantic(ctx, params.Query)
	default:
		scored, err = searcher.Hybrid(ctx, params.Query)
	}
	if err != nil {
		return createErrorResponse("read_context", err)
	}

	page, err := search.Paginate(scored, params.Query, mode, params.Limit, params.Cursor)
	if err != nil {
		return createErrorResponse("read_context", err)
	}

	results := make([]map[string]any, 0, len(page.Docs))
	for _, d := range page.Docs {
		headers := make([]string, 0, len(d.Anchors))
		for _, a := range d.Anchors {
			headers = append(headers, a.Header)
		}
		results = append(results, map[string]any{
			"path":    d.Path,
			"hash":    d.Hash,
			"tokens":  d.Tokens,
			"anchors": headers,
		})
	}

	resp := map[string]any{
		"results":     results,
		"total_count": page.TotalCount,
		"has_more":    page.NextCursor != "",
	}
	if page.NextCursor != "" {
		resp["next_cursor"] = page.NextCursor
	}
	return createJSONResponse(resp)
}

// contentOf is the search Searcher's ContentLookup, reading a document's
// raw bytes from disk for scoring.
func (s *Server) contentOf(d card.Document) string {
	data, err := os.ReadFile(filepath.Join(s.engine.WorkspaceRoot, d.Path))
	if err != nil {
		return ""
	}
	return string(data)
}

type readDocParams struct {
	Path   string `json:"path"`
	Anchor string `json:"anchor"`
}

func (s *Server) handleReadDoc(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.limiter.readDoc.Allow("default", "read_doc", time.Now()); err != nil {
		return createErrorResponse("read_doc", err)
	}

	var params readDocParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("read_doc", &errs.ValidationError{Field: "arguments", Reason: err.Error()})
	}
	if params.Path == "" {
		return createErrorResponse("read_doc", &errs.ValidationError{Field: "path", Reason: "must not be empty"})
	}

	doc, ok := s.engine.Cache().Get(params.Path)
	if !ok {
		return createErrorResponse("read_doc", &errs.FileNotFoundError{Path: params.Path})
	}

	headers := make([]string, 0, len(doc.Anchors))
	for _, a := range doc.Anchors {
		headers = append(headers, a.Header)
	}
	out := map[string]any{
		"path":    doc.Path,
		"hash":    doc.Hash,
		"tokens":  doc.Tokens,
		"anchors": headers,
	}

	if params.Anchor != "" {
		content, found, err := anchorContent(s.engine.WorkspaceRoot, doc, params.Anchor)
		if err != nil {
			return createErrorResponse("read_doc", err)
		}
		if !found {
			return createErrorResponse("read_doc", &errs.ValidationError{Field: "anchor", Reason: "no matching anchor"})
		}
		out["content"] = content
	} else {
		data, err := os.ReadFile(filepath.Join(s.engine.WorkspaceRoot, doc.Path))
		if err == nil {
			out["content"] = string(data)
		}
	}

	return createJSONResponse(out)
}

// anchorContent slices a document's file content down to the lines owned
// by the anchor matching name (by header or slug, case-insensitive),
// extended to just before the next anchor of equal-or-higher level.
func anchorContent(root string, doc card.Document, name string) (string, bool, error) {
	idx := -1
	for i, a := range doc.Anchors {
		if strings.EqualFold(a.Header, name) || strings.EqualFold(a.Slug, name) {
			idx = i
			break
		}
	}
	if idx == -1 {
		return "", false, nil
	}

	anchor := doc.Anchors[idx]
	var next *card.Anchor
	for j := idx + 1; j < len(doc.Anchors); j++ {
		if doc.Anchors[j].Level <= anchor.Level {
			next = &doc.Anchors[j]
			break
		}
	}
	ranged := anchor.WithRange(next)

	data, err := os.ReadFile(filepath.Join(root, doc.Path))
	if err != nil {
		return "", false, err
	}
	lines := strings.Split(string(data), "\n")
	start := ranged.StartLine - 1
	end := ranged.EndLine
	if next == nil {
		end = len(lines)
	}
	if start < 0 {
		start = 0
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start >= end {
		return "", true, nil
	}
	return strings.Join(lines[start:end], "\n"), true, nil
}
