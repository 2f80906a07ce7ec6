// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes mediatag tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/mediatag/internal/library"
)

// Server wraps the MCP server with mediatag tools.
type Server struct {
	mcp *server.MCPServer
	svc *library.Service
}

// New creates a new MCP server with all mediatag tools registered.
func New(svc *library.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"mediatag",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_tags",
		mcp.WithDescription("Search the tag vocabulary of the library (case-insensitive substring). "+
			"An empty query lists every tag."),
		mcp.WithString("query", mcp.Description("Substring to look for")),
	), s.searchTags)

	s.mcp.AddTool(mcp.NewTool("search_records",
		mcp.WithDescription("Search cataloged media by path and tags."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchRecords)

	s.mcp.AddTool(mcp.NewTool("read_record",
		mcp.WithDescription("Read the tags and creation date of a media file."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path relative to the library root (e.g. trips/beach.jpg)")),
	), s.readRecord)

	s.mcp.AddTool(mcp.NewTool("list_records",
		mcp.WithDescription("List cataloged media files, optionally only those carrying a tag."),
		mcp.WithString("tag", mcp.Description("Only list records with this exact tag")),
	), s.listRecords)

	s.mcp.AddTool(mcp.NewTool("add_tag",
		mcp.WithDescription("Append tags to a media file and write them back. "+
			"Read the conventions first via get_conventions or the "+ConventionsURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path relative to the library root")),
		mcp.WithString("tags", mcp.Required(), mcp.Description("Comma-separated tags to add")),
	), s.addTag)

	s.mcp.AddTool(mcp.NewTool("remove_tag",
		mcp.WithDescription("Remove tags from a media file. Fails without writing if any tag is absent."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path relative to the library root")),
		mcp.WithString("tags", mcp.Required(), mcp.Description("Comma-separated tags to remove")),
	), s.removeTag)

	s.mcp.AddTool(mcp.NewTool("set_date",
		mcp.WithDescription("Set the creation date of a media file. Accepts RFC 3339, EXIF "+
			"(2021:05:01 08:00:00) and partial dates such as 2021-05 or 2021."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path relative to the library root")),
		mcp.WithString("date", mcp.Required(), mcp.Description("Date to write")),
	), s.setDate)

	s.mcp.AddTool(mcp.NewTool("get_conventions",
		mcp.WithDescription("Returns how mediatag stores tags and dates. "+
			"Call this before changing records."),
	), s.getConventions)

	// Resource: metadata conventions.
	s.mcp.AddResource(
		mcp.NewResource(ConventionsURI, "Metadata Conventions",
			mcp.WithResourceDescription("How tags and dates are stored and which date forms are accepted."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readConventionsResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

// splitTags splits a comma-separated tag list, dropping blanks.
func splitTags(raw string) []string {
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func (s *Server) searchTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := ""
	if q, err := req.RequireString("query"); err == nil {
		query = q
	}
	tags := s.svc.SearchTags(ctx, query)
	if len(tags) == 0 {
		return mcp.NewToolResultText("no tags found"), nil
	}
	return mcp.NewToolResultText(strings.Join(tags, "\n")), nil
}

func (s *Server) searchRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.SearchRecords(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results), nil
}

func (s *Server) readRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.GetRecord(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(d), nil
}

func (s *Server) listRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag := ""
	if t, err := req.RequireString("tag"); err == nil {
		tag = t
	}
	items, total, err := s.svc.ListRecords(ctx, 200, 0, tag)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	paths := make([]string, len(items))
	for i, it := range items {
		paths[i] = it.Path
	}
	if total > len(items) {
		paths = append(paths, fmt.Sprintf("... %d more", total-len(items)))
	}
	if len(paths) == 0 {
		return mcp.NewToolResultText("no records found"), nil
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) addTag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.changeTags(ctx, req, s.svc.AddTags)
}

func (s *Server) removeTag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.changeTags(ctx, req, s.svc.RemoveTags)
}

func (s *Server) changeTags(ctx context.Context, req mcp.CallToolRequest,
	apply func(context.Context, string, ...string) (*library.Detail, error),
) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("tags")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tags := splitTags(raw)
	if len(tags) == 0 {
		return mcp.NewToolResultError("no tags given"), nil
	}
	d, err := apply(ctx, path, tags...)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(d), nil
}

func (s *Server) setDate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	date, err := req.RequireString("date")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.SetDate(ctx, path, date)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(d), nil
}

func (s *Server) getConventions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(Conventions), nil
}

func (s *Server) readConventionsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ConventionsURI,
			MIMEType: "text/markdown",
			Text:     Conventions,
		},
	}, nil
}
