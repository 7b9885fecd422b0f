package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// routeQueryTool returns the tool definition for route_query
func routeQueryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "route_query",
		Description: "Decide how a question should be answered: faq, rag or chitchat",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "The user's question",
				},
			},
			Required: []string{"query"},
		},
	}
}

// searchTool returns the tool definition for search
func searchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search",
		Description: "Retrieve passages from the corpus for answer assembly",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"search_mode": map[string]interface{}{
					"type":        "string",
					"description": "Search strategy: hybrid (dense + lexical), dense (semantic only), or lexical (BM25 only)",
					"enum":        []string{"hybrid", "dense", "lexical"},
					"default":     "hybrid",
				},
				"project_id": map[string]interface{}{
					"type":        "string",
					"description": "Only return passages of this project",
				},
			},
			Required: []string{"query"},
		},
	}
}

// ingestCorpusTool returns the tool definition for ingest_corpus
func ingestCorpusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ingest_corpus",
		Description: "Chunk the markdown, HTML and text files of a directory into the chunk store",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the corpus directory",
				},
				"project_id": map[string]interface{}{
					"type":        "string",
					"description": "Assign every file to this project instead of inferring it from projects/<id>/",
				},
				"rebuild": map[string]interface{}{
					"type":        "boolean",
					"description": "Rebuild the lexical and dense indexes after ingesting",
					"default":     true,
				},
			},
			Required: []string{"path"},
		},
	}
}

// buildIndexTool returns the tool definition for build_index
func buildIndexTool() mcp.Tool {
	return mcp.Tool{
		Name:        "build_index",
		Description: "Rebuild the lexical index and the dense index from the chunk store",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project_id": map[string]interface{}{
					"type":        "string",
					"description": "Limit the dense index to one project",
				},
			},
		},
	}
}

// backfillLexicalTool returns the tool definition for backfill_lexical
func backfillLexicalTool() mcp.Tool {
	return mcp.Tool{
		Name:        "backfill_lexical",
		Description: "Fill an empty lexical index from the documents table; no-op when rows exist",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// setThresholdsTool returns the tool definition for set_thresholds
func setThresholdsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "set_thresholds",
		Description: "Change the routing thresholds of the running server",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"faq_min_score": map[string]interface{}{
					"type":        "number",
					"description": "Cosine similarity an FAQ match needs (0.0-1.0)",
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"rag_min_score": map[string]interface{}{
					"type":        "number",
					"description": "BM25 relevance the best lexical hit needs",
					"minimum":     0.0,
				},
			},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report chunk store, index and FAQ status",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
