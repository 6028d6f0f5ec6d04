package mcpsrv

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cuedeck/cue/internal/config"
	"github.com/cuedeck/cue/internal/errs"
)

type searchCodeParams struct {
	Pattern       string `json:"pattern"`
	FileGlob      string `json:"file_glob"`
	CaseSensitive bool   `json:"case_sensitive"`
	MaxResults    int    `json:"max_results"`
}

func (s *Server) handleSearchCode(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params searchCodeParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("search_code", &errs.ValidationError{Field: "arguments", Reason: err.Error()})
	}
	if params.Pattern == "" {
		return createErrorResponse("search_code", &errs.ValidationError{Field: "pattern", Reason: "must not be empty"})
	}
	if params.MaxResults <= 0 {
		params.MaxResults = 50
	}

	ignore := config.NewIgnoreMatcher(s.engine.Config.Parser.IgnorePatterns)
	matches, truncated, err := searchCode(s.engine.WorkspaceRoot, params.Pattern, params.FileGlob, params.CaseSensitive, params.MaxResults, ignore)
	if err != nil {
		return createErrorResponse("search_code", err)
	}

	out := make([]map[string]any, 0, len(matches))
	for _, m := range matches {
		out = append(out, map[string]any{
			"path":        m.Path,
			"line_number": m.LineNum,
			"preview":     m.Preview,
			"column":      m.Column,
		})
	}
	return createJSONResponse(map[string]any{
		"matches":     out,
		"total_count": len(out),
		"truncated":   truncated,
	})
}

type readFileLinesParams struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

func (s *Server) handleReadFileLines(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params readFileLinesParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("read_file_lines", &errs.ValidationError{Field: "arguments", Reason: err.Error()})
	}

	content, count, err := s.boundary.ReadLines(params.Path, params.StartLine, params.EndLine)
	if err != nil {
		return createErrorResponse("read_file_lines", err)
	}

	return createJSONResponse(map[string]any{
		"path":       params.Path,
		"start_line": params.StartLine,
		"end_line":   params.EndLine,
		"content":    content,
		"line_count": count,
	})
}

type replaceInFileParams struct {
	Path    string `json:"path"`
	Find    string `json:"find"`
	Replace string `json:"replace"`
	Regex   bool   `json:"regex"`
}

func (s *Server) handleReplaceInFile(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params replaceInFileParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("replace_in_file", &errs.ValidationError{Field: "arguments", Reason: err.Error()})
	}
	if params.Path == "" || params.Find == "" {
		return createErrorResponse("replace_in_file", &errs.ValidationError{Field: "path/find", Reason: "must not be empty"})
	}

	result, err := s.boundary.ReplaceInFile(params.Path, params.Find, params.Replace, params.Regex, time.Now())
	if err != nil {
		return createErrorResponse("replace_in_file", err)
	}

	resp := map[string]any{
		"path":          params.Path,
		"matches_found": result.MatchesFound,
	}
	if result.BackupPath != "" {
		resp["backup_path"] = result.BackupPath
	}
	return createJSONResponse(resp)
}
