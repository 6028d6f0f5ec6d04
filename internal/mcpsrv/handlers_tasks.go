package mcpsrv

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cuedeck/cue/internal/card"
	"github.com/cuedeck/cue/internal/errs"
	"github.com/cuedeck/cue/internal/query"
	"github.com/cuedeck/cue/internal/tasks"
)

// fencedFrontmatterRE matches the canonical fenced-YAML block, mirroring
// tasks.go and doctor.go's own copies of the same pattern.
var fencedFrontmatterRE = regexp.MustCompile(`(?s)^---\r?\n(.*?)\r?\n---\r?\n?`)

type listTasksParams struct {
	Status   string   `json:"status"`
	Assignee string   `json:"assignee"`
	Tags     []string `json:"tags"`
	Priority string   `json:"priority"`
	Created  string   `json:"created"`
}

func (s *Server) handleListTasks(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.limiter.listTasks.Allow("default", "list_tasks", time.Now()); err != nil {
		return createErrorResponse("list_tasks", err)
	}

	var params listTasksParams
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
			return createErrorResponse("list_tasks", &errs.ValidationError{Field: "arguments", Reason: err.Error()})
		}
	}

	var statusPtr, assigneePtr *string
	if params.Status != "" {
		statusPtr = &params.Status
	}
	if params.Assignee != "" {
		assigneePtr = &params.Assignee
	}

	docs, err := tasks.ListTasks(s.engine.WorkspaceRoot, statusPtr, assigneePtr)
	if err != nil {
		return createErrorResponse("list_tasks", err)
	}

	var raw strings.Builder
	if params.Priority != "" {
		fmt.Fprintf(&raw, "priority:%s ", params.Priority)
	}
	if params.Created != "" {
		fmt.Fprintf(&raw, "created:%s ", params.Created)
	}
	for _, t := range params.Tags {
		fmt.Fprintf(&raw, "+%s ", t)
	}
	if raw.Len() > 0 {
		q, parseErr := query.Parse(strings.TrimSpace(raw.String()))
		if parseErr != nil {
			return createErrorResponse("list_tasks", parseErr)
		}
		filtered := docs[:0]
		for _, d := range docs {
			if query.Match(d, q) {
				filtered = append(filtered, d)
			}
		}
		docs = filtered
	}

	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		out = append(out, docSummary(d))
	}
	return createJSONResponse(out)
}

func docSummary(d card.Document) map[string]any {
	m := map[string]any{"path": workspaceRelCard(d.Path)}
	if d.Frontmatter != nil {
		m["title"] = d.Frontmatter.Title
		m["status"] = d.Frontmatter.Status
		m["priority"] = d.Frontmatter.Priority
		m["assignee"] = d.Frontmatter.Assignee
		m["tags"] = d.Frontmatter.Tags
		m["created"] = d.Frontmatter.Created
		m["updated"] = d.Frontmatter.Updated
		m["depends_on"] = d.Frontmatter.DependsOn
	}
	return m
}

// workspaceRelCard normalizes a tasks-package Document.Path (which may be
// an absolute on-disk path, since that package parses cards directly) down
// to a workspace-relative "cards/<id>.md" form for JSON-RPC responses.
func workspaceRelCard(path string) string {
	idx := strings.LastIndex(filepath.ToSlash(path), ".cuedeck/cards/")
	if idx == -1 {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(path)[idx+len(".cuedeck/"):]
}

type createTaskParams struct {
	Title     string   `json:"title"`
	Priority  string   `json:"priority"`
	Assignee  string   `json:"assignee"`
	Tags      []string `json:"tags"`
	DependsOn []string `json:"depends_on"`
}

func (s *Server) handleCreateTask(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params createTaskParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("create_task", &errs.ValidationError{Field: "arguments", Reason: err.Error()})
	}
	if params.Title == "" {
		return createErrorResponse("create_task", &errs.ValidationError{Field: "title", Reason: "must not be empty"})
	}

	path, err := tasks.CreateTask(s.engine.WorkspaceRoot, params.Title)
	if err != nil {
		return createErrorResponse("create_task", err)
	}

	// create_task accepts array fields (tags, depends_on) that update_task's
	// scalar-only merge can't carry, so the extra fields here are applied by
	// rewriting the whole front-matter block directly rather than going
	// through tasks.UpdateTask.
	if params.Priority != "" || params.Assignee != "" || len(params.Tags) > 0 || len(params.DependsOn) > 0 {
		if err := applyCreateExtras(path, params); err != nil {
			return createErrorResponse("create_task", err)
		}
	}

	doc, err := readCardFile(path)
	if err != nil {
		return createErrorResponse("create_task", err)
	}
	return createJSONResponse(docSummary(doc))
}

func applyCreateExtras(path string, params createTaskParams) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	loc := fencedFrontmatterRE.FindSubmatchIndex(raw)
	if loc == nil {
		return nil
	}

	var meta card.CardMetadata
	if err := yaml.Unmarshal(raw[loc[2]:loc[3]], &meta); err != nil {
		return &errs.ParseError{Kind: "yaml", Input: path, Underlying: err}
	}
	if params.Priority != "" {
		meta.Priority = params.Priority
	}
	if params.Assignee != "" {
		meta.Assignee = params.Assignee
	}
	if len(params.Tags) > 0 {
		meta.Tags = params.Tags
	}
	if len(params.DependsOn) > 0 {
		meta.DependsOn = params.DependsOn
	}

	newFM, err := yaml.Marshal(meta)
	if err != nil {
		return err
	}
	body := raw[loc[1]:]
	newContent := append([]byte("---\n"), newFM...)
	newContent = append(newContent, []byte("---\n")...)
	newContent = append(newContent, body...)
	return os.WriteFile(path, newContent, 0o644)
}

type updateTaskParams struct {
	ID      string         `json:"id"`
	Updates map[string]any `json:"updates"`
}

func (s *Server) handleUpdateTask(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.limiter.updateTask.Allow("default", "update_task", time.Now()); err != nil {
		return createErrorResponse("update_task", err)
	}

	var params updateTaskParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("update_task", &errs.ValidationError{Field: "arguments", Reason: err.Error()})
	}
	if params.ID == "" {
		return createErrorResponse("update_task", &errs.ValidationError{Field: "id", Reason: "must not be empty"})
	}

	if err := tasks.UpdateTask(s.engine.WorkspaceRoot, params.ID, params.Updates); err != nil {
		return createErrorResponse("update_task", err)
	}

	path := filepath.Join(s.engine.WorkspaceRoot, ".cuedeck", "cards", params.ID+".md")
	doc, err := readCardFile(path)
	if err != nil {
		return createErrorResponse("update_task", err)
	}
	return createJSONResponse(docSummary(doc))
}

func readCardFile(path string) (card.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return card.Document{}, &errs.FileNotFoundError{Path: path}
		}
		return card.Document{}, err
	}

	loc := fencedFrontmatterRE.FindSubmatchIndex(raw)
	var meta *card.CardMetadata
	if loc != nil {
		var m card.CardMetadata
		if err := yaml.Unmarshal(raw[loc[2]:loc[3]], &m); err == nil {
			meta = m.WithDefaults()
		}
	}
	return card.Document{Path: path, Frontmatter: meta}, nil
}
