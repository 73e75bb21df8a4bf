// Package mcp exposes the read paths of the index engine, and a rebuild, as
// Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/eringen/pubindex/entry"
	"github.com/eringen/pubindex/index"
)

type GetPageRequest struct {
	Blog  string `json:"blog"`
	List  string `json:"list"`
	Sort  string `json:"sort"`
	Order string `json:"order"`
	Page  int    `json:"page"`
	Size  int    `json:"size"`
}

type GetPageResponse struct {
	Entries    []entry.Entry    `json:"entries"`
	Pagination index.Pagination `json:"pagination"`
}

type AdjacentRequest struct {
	Blog string `json:"blog"`
	ID   string `json:"id"`
}

type TaggedPageRequest struct {
	Blog   string `json:"blog"`
	Tag    string `json:"tag"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

type TaggedPageResponse struct {
	Tag     string        `json:"tag"`
	Label   string        `json:"label"`
	Total   int           `json:"total"`
	Entries []entry.Entry `json:"entries"`
}

type PopularRequest struct {
	Blog   string `json:"blog"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

type RebuildRequest struct {
	Blog string `json:"blog"`
}

// NewServer creates an MCP server whose tools read from eng.
func NewServer(eng *index.Engine, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"pubindex",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool("get_page",
		mcp.WithDescription("Get a page of a blog's chronological list, newest first by default"),
		mcp.WithString("blog", mcp.Required(), mcp.Description("Blog identifier")),
		mcp.WithString("list", mcp.Description("entries, pages, drafts, scheduled or deleted (default entries)")),
		mcp.WithString("sort", mcp.Enum("date", "id"), mcp.Description("Sort key (default date)")),
		mcp.WithString("order", mcp.Enum("asc", "desc"), mcp.Description("Sort direction (default desc)")),
		mcp.WithNumber("page", mcp.Description("1-based page number")),
		mcp.WithNumber("size", mcp.Description("Entries per page")),
	), mcp.NewTypedToolHandler(getPageHandler(eng)))

	s.AddTool(mcp.NewTool("adjacent_to",
		mcp.WithDescription("Find the older and newer neighbours of an entry"),
		mcp.WithString("blog", mcp.Required(), mcp.Description("Blog identifier")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Entry id")),
	), mcp.NewTypedToolHandler(adjacentHandler(eng)))

	s.AddTool(mcp.NewTool("tagged_page",
		mcp.WithDescription("List the entries carrying a tag, newest first"),
		mcp.WithString("blog", mcp.Required(), mcp.Description("Blog identifier")),
		mcp.WithString("tag", mcp.Required(), mcp.Description("Tag in any case or spelling")),
		mcp.WithNumber("limit", mcp.Description("Maximum entries to return")),
		mcp.WithNumber("offset", mcp.Description("Entries to skip")),
	), mcp.NewTypedToolHandler(taggedPageHandler(eng)))

	s.AddTool(mcp.NewTool("popular_tags",
		mcp.WithDescription("Rank a blog's tags by how many entries use them"),
		mcp.WithString("blog", mcp.Required(), mcp.Description("Blog identifier")),
		mcp.WithNumber("limit", mcp.Description("Maximum tags to return")),
		mcp.WithNumber("offset", mcp.Description("Tags to skip")),
	), mcp.NewTypedToolHandler(popularHandler(eng)))

	s.AddTool(mcp.NewTool("rebuild",
		mcp.WithDescription("Rebuild every derived index of a blog from its stored entries"),
		mcp.WithString("blog", mcp.Required(), mcp.Description("Blog identifier")),
	), mcp.NewTypedToolHandler(rebuildHandler(eng)))

	return s
}

// Serve runs the server over stdio until the input closes.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

func getPageHandler(eng *index.Engine) func(context.Context, mcp.CallToolRequest, GetPageRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, _ mcp.CallToolRequest, args GetPageRequest) (*mcp.CallToolResult, error) {
		if args.Blog == "" {
			return mcp.NewToolResultError("blog is required"), nil
		}
		entries, p, err := eng.GetPage(ctx, args.Blog, index.PageOptions{
			List:       args.List,
			SortBy:     args.Sort,
			Order:      args.Order,
			PageNumber: args.Page,
			PageSize:   args.Size,
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to get page: %v", err)), nil
		}
		return jsonResult(GetPageResponse{Entries: entries, Pagination: p})
	}
}

func adjacentHandler(eng *index.Engine) func(context.Context, mcp.CallToolRequest, AdjacentRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, _ mcp.CallToolRequest, args AdjacentRequest) (*mcp.CallToolResult, error) {
		if args.Blog == "" || args.ID == "" {
			return mcp.NewToolResultError("blog and id are required"), nil
		}
		adj, err := eng.AdjacentTo(ctx, args.Blog, args.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to find neighbours: %v", err)), nil
		}
		if !adj.Found {
			return mcp.NewToolResultError(fmt.Sprintf("entry %q not found", args.ID)), nil
		}
		return jsonResult(adj)
	}
}

func taggedPageHandler(eng *index.Engine) func(context.Context, mcp.CallToolRequest, TaggedPageRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, _ mcp.CallToolRequest, args TaggedPageRequest) (*mcp.CallToolResult, error) {
		if args.Blog == "" || args.Tag == "" {
			return mcp.NewToolResultError("blog and tag are required"), nil
		}
		ids, label, total, err := eng.TaggedPage(ctx, args.Blog, args.Tag, index.Window{Limit: args.Limit, Offset: args.Offset})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list tag: %v", err)), nil
		}
		entries, err := eng.GetEntries(ctx, args.Blog, ids)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load entries: %v", err)), nil
		}
		return jsonResult(TaggedPageResponse{Tag: args.Tag, Label: label, Total: total, Entries: entries})
	}
}

func popularHandler(eng *index.Engine) func(context.Context, mcp.CallToolRequest, PopularRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, _ mcp.CallToolRequest, args PopularRequest) (*mcp.CallToolResult, error) {
		if args.Blog == "" {
			return mcp.NewToolResultError("blog is required"), nil
		}
		tags, err := eng.Popular(ctx, args.Blog, index.Window{Limit: args.Limit, Offset: args.Offset})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to rank tags: %v", err)), nil
		}
		return jsonResult(tags)
	}
}

func rebuildHandler(eng *index.Engine) func(context.Context, mcp.CallToolRequest, RebuildRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, _ mcp.CallToolRequest, args RebuildRequest) (*mcp.CallToolResult, error) {
		if args.Blog == "" {
			return mcp.NewToolResultError("blog is required"), nil
		}
		if err := eng.Rebuild(ctx, args.Blog); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to rebuild: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("rebuilt %s", args.Blog)), nil
	}
}
