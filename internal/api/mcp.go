package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mensah/datashelf/internal/dataset"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Manager *dataset.Manager
}

// NewMCPServer creates an MCP server exposing the public catalog to agent
// tooling: list, inspect, and search published datasets. The management
// surface is deliberately not exposed here.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"datashelf",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("datashelf — catalog of published datasets with schemas, samples, and CSV downloads."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_datasets",
			mcp.WithDescription("List published datasets, optionally filtered by category."),
			mcp.WithString("category", mcp.Description("Category to filter by")),
		),
		mcpListDatasets(deps),
	)

	s.AddTool(
		mcp.NewTool("dataset_info",
			mcp.WithDescription("Fetch a published dataset's metadata, row count, and a sample of its records."),
			mcp.WithString("slug", mcp.Description("Public slug of the dataset"), mcp.Required()),
		),
		mcpDatasetInfo(deps),
	)

	s.AddTool(
		mcp.NewTool("search_datasets",
			mcp.WithDescription("Search published datasets by meaning; falls back to keyword matching when semantic search is unavailable."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
		),
		mcpSearchDatasets(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"datashelf://categories",
			"Dataset Categories",
			mcp.WithResourceDescription("Distinct categories across published datasets"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceCategories(deps),
	)

	return s
}

// listingResult is the catalog entry shape returned to MCP clients.
type listingResult struct {
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Category    string   `json:"category"`
	AccessType  string   `json:"access_type"`
	Uploader    string   `json:"uploader,omitempty"`
}

func listingResults(listings []dataset.Listing) []listingResult {
	out := make([]listingResult, 0, len(listings))
	for _, l := range listings {
		out = append(out, listingResult{
			Slug:        l.Collection.Slug,
			Title:       l.Collection.Metadata.Title,
			Description: l.Collection.Metadata.Description,
			Tags:        l.Collection.Metadata.Tags,
			Category:    l.Collection.Metadata.Category,
			AccessType:  l.Collection.Metadata.AccessType,
			Uploader:    l.Uploader.Username,
		})
	}
	return out
}

func mcpListDatasets(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		category := req.GetString("category", "")
		listings, err := deps.Manager.Published(ctx, category)
		if err != nil {
			return mcpError(fmt.Sprintf("listing datasets failed: %v", err)), nil
		}
		return mcpJSON(listingResults(listings))
	}
}

func mcpDatasetInfo(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		slug, err := req.RequireString("slug")
		if err != nil {
			return mcpError("slug is required"), nil
		}
		view, err := deps.Manager.DatasetView(ctx, slug)
		if err != nil {
			return mcpError(fmt.Sprintf("dataset %s: %v", slug, err)), nil
		}
		return mcpJSON(map[string]any{
			"slug":        view.Collection.Slug,
			"title":       view.Collection.Metadata.Title,
			"description": view.Collection.Metadata.FullDescription,
			"category":    view.Collection.Metadata.Category,
			"access_type": view.Collection.Metadata.AccessType,
			"total":       view.Total,
			"formats":     view.Formats,
			"asset_url":   view.Collection.AssetURL,
			"sample":      view.Sample,
			"uploader":    view.Uploader.Username,
			"updated_at":  view.Collection.UpdatedAt,
		})
	}
}

func mcpSearchDatasets(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		listings, err := deps.Manager.Search(ctx, query)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		return mcpJSON(listingResults(listings))
	}
}

func mcpResourceCategories(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		categories, err := deps.Manager.Categories(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing categories: %w", err)
		}
		b, err := json.Marshal(categories)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
