// Package mcpsrv implements the JSON-RPC tool surface: a stdio-transport
// MCP server exposing nine methods over the engine, the task store,
// search, and the agent file-editor boundary.
package mcpsrv

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cuedeck/cue/internal/agentfs"
	"github.com/cuedeck/cue/internal/embedding"
	"github.com/cuedeck/cue/internal/engine"
)

// Server wires the engine, task store, search, and agent file-editor
// boundary into the nine JSON-RPC methods, with per-method rate limiting
// on read_context/read_doc/list_tasks/update_task.
type Server struct {
	engine   *engine.Engine
	boundary *agentfs.Boundary
	embed    *embedding.Cache
	limiter  *limiterSet
	server   *mcp.Server
}

// New builds a Server bound to e, loading its own embedding cache for
// read_context's semantic/hybrid scoring.
func New(e *engine.Engine) (*Server, error) {
	embed := embedding.New(e.WorkspaceRoot, e.Config.Search.EmbeddingCacheMaxEntries, &embedding.LocalEmbedder{})
	if err := embed.Load(); err != nil {
		return nil, err
	}

	s := &Server{
		engine:   e,
		boundary: agentfs.New(e.WorkspaceRoot),
		embed:    embed,
		limiter:  newLimiterSet(),
	}
	s.server = mcp.NewServer(&mcp.Implementation{Name: "cuedeck-mcp-server", Version: "0.1.0"}, nil)
	s.registerTools()
	return s, nil
}

// Start runs the server over stdio; stdout carries one JSON-RPC message
// per line, and all logging must go to stderr.
func (s *Server) Start(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "ping",
		Description: "Health check. Always returns \"pong\".",
		InputSchema: &jsonschema.Schema{Type: "object", Properties: map[string]*jsonschema.Schema{}},
	}, s.handlePing)

	s.server.AddTool(&mcp.Tool{
		Name:        "read_context",
		Description: "Search the workspace (hybrid keyword+semantic by default) and return paginated document summaries.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query":  strSchema("Search query"),
				"limit":  intSchema("Maximum results per page (default 10, max 50)"),
				"cursor": strSchema("Opaque pagination cursor from a previous call"),
			},
			Required: []string{"query"},
		},
	}, s.handleReadContext)

	s.server.AddTool(&mcp.Tool{
		Name:        "read_doc",
		Description: "Read one document, optionally scoped to a single heading anchor.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path":   strSchema("Workspace-relative document path"),
				"anchor": strSchema("Heading text or slug to scope the returned content to"),
			},
			Required: []string{"path"},
		},
	}, s.handleReadDoc)

	s.server.AddTool(&mcp.Tool{
		Name:        "list_tasks",
		Description: "List task cards, optionally filtered by status, assignee, tags, priority, or created date.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"status":   strSchema("Exact status match"),
				"assignee": strSchema("Exact assignee match"),
				"tags":     strArraySchema("Tags of which at least one must be present"),
				"priority": strSchema("Priority comparison, e.g. \"high\" or \">medium\""),
				"created":  strSchema("Created-date comparison, e.g. \"7d\" or \">2026-01-01\""),
			},
		},
	}, s.handleListTasks)

	s.server.AddTool(&mcp.Tool{
		Name:        "create_task",
		Description: "Create a new task card with a generated ID.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"title":      strSchema("Task title"),
				"priority":   strSchema("critical, high, medium, or low"),
				"assignee":   strSchema("Assignee name"),
				"tags":       strArraySchema("Tags to attach"),
				"depends_on": strArraySchema("Task IDs this task depends on"),
			},
			Required: []string{"title"},
		},
	}, s.handleCreateTask)

	s.server.AddTool(&mcp.Tool{
		Name:        "update_task",
		Description: "Merge scalar updates into a task card's front-matter, preserving its body byte-for-byte.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"id":      strSchema("Task ID"),
				"updates": &jsonschema.Schema{Type: "object", Description: "Scalar field updates; arrays/objects are ignored"},
			},
			Required: []string{"id", "updates"},
		},
	}, s.handleUpdateTask)

	s.server.AddTool(&mcp.Tool{
		Name:        "search_code",
		Description: "Regex search over workspace files, honoring configured ignore patterns. Returns path + line number + truncated preview.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"pattern":        strSchema("Regex pattern"),
				"file_glob":      strSchema("Optional glob matched against the workspace-relative path, e.g. \"**/*.go\""),
				"case_sensitive": boolSchema("Case-sensitive matching (default false)"),
				"max_results":    intSchema("Maximum results (default 50, capped at 100)"),
			},
			Required: []string{"pattern"},
		},
	}, s.handleSearchCode)

	s.server.AddTool(&mcp.Tool{
		Name:        "read_file_lines",
		Description: "Read an inclusive 1-indexed line range from a workspace file.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path":       strSchema("Workspace-relative file path"),
				"start_line": intSchema("First line, 1-indexed"),
				"end_line":   intSchema("Last line, inclusive"),
			},
			Required: []string{"path", "start_line", "end_line"},
		},
	}, s.handleReadFileLines)

	s.server.AddTool(&mcp.Tool{
		Name:        "replace_in_file",
		Description: "Find and replace within a workspace file (literal or regex), backing up the original first.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path":    strSchema("Workspace-relative file path"),
				"find":    strSchema("Literal text or regex to find"),
				"replace": strSchema("Replacement text"),
				"regex":   boolSchema("Treat find as a regex (default false)"),
			},
			Required: []string{"path", "find", "replace"},
		},
	}, s.handleReplaceInFile)
}
