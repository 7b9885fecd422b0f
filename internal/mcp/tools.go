package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/ragroute/internal/indexer"
	"github.com/dshills/ragroute/internal/searcher"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexingInProgress = -32002 // Another ingest or rebuild is already running
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
)

// handleRouteQuery handles the route_query tool invocation
func (s *Server) handleRouteQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	query, err := requireQuery(args)
	if err != nil {
		return nil, err
	}

	decision := s.engine.Router.Route(ctx, query)
	return mcp.NewToolResultText(formatJSON(decision)), nil
}

// handleSearch handles the search tool invocation
func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	query, err := requireQuery(args)
	if err != nil {
		return nil, err
	}

	limit := getIntDefault(args, "limit", searcher.DefaultLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	mode := searcher.SearchMode(getStringDefault(args, "search_mode", string(searcher.SearchModeHybrid)))
	switch mode {
	case searcher.SearchModeHybrid, searcher.SearchModeDense, searcher.SearchModeLexical:
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid search_mode", map[string]interface{}{
			"param":   "search_mode",
			"value":   mode,
			"allowed": []string{"hybrid", "dense", "lexical"},
		})
	}

	resp, err := s.engine.Searcher.Search(ctx, searcher.SearchRequest{
		Query:     query,
		Limit:     limit,
		Mode:      mode,
		ProjectID: getStringDefault(args, "project_id", ""),
		UseCache:  true,
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"results":         resp.Results,
		"total_results":   resp.TotalResults,
		"search_mode":     resp.SearchMode,
		"dense_results":   resp.DenseResults,
		"lexical_results": resp.LexicalResults,
		"cache_hit":       resp.CacheHit,
		"duration_ms":     resp.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIngestCorpus handles the ingest_corpus tool invocation
func (s *Server) handleIngestCorpus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if err := validatePath(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	stats, err := s.engine.Indexer.IngestDir(ctx, path, &indexer.Config{
		ProjectID: getStringDefault(args, "project_id", ""),
	})
	if err != nil {
		return nil, indexingError("ingest failed", err)
	}

	response := map[string]interface{}{
		"files_indexed":  stats.FilesIndexed,
		"files_empty":    stats.FilesEmpty,
		"files_failed":   stats.FilesFailed,
		"chunks_created": stats.ChunksCreated,
		"duration_ms":    stats.Duration.Milliseconds(),
	}
	if len(stats.ErrorMessages) > 0 {
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	if getBoolDefault(args, "rebuild", true) {
		res, err := s.engine.Indexer.Rebuild(ctx, "")
		if err != nil {
			return nil, indexingError("rebuild failed", err)
		}
		response["rebuild"] = res
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleBuildIndex handles the build_index tool invocation
func (s *Server) handleBuildIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	res, err := s.engine.Indexer.Rebuild(ctx, getStringDefault(args, "project_id", ""))
	if err != nil {
		return nil, indexingError("rebuild failed", err)
	}

	response := map[string]interface{}{
		"lexical_rows": res.LexicalRows,
		"dense":        res.Dense,
		"duration_ms":  res.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleBackfillLexical handles the backfill_lexical tool invocation
func (s *Server) handleBackfillLexical(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.engine.Storage.BackfillFromDocuments(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "backfill failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if !res.Skipped {
		s.engine.Searcher.InvalidateCache()
	}
	return mcp.NewToolResultText(formatJSON(res)), nil
}

// handleSetThresholds handles the set_thresholds tool invocation
func (s *Server) handleSetThresholds(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	t := s.engine.Router.Thresholds()
	t.FAQMinScore = getFloatDefault(args, "faq_min_score", t.FAQMinScore)
	t.RAGMinScore = getFloatDefault(args, "rag_min_score", t.RAGMinScore)

	if t.FAQMinScore < 0 || t.FAQMinScore > 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "faq_min_score must be between 0 and 1", map[string]interface{}{
			"param": "faq_min_score",
			"value": t.FAQMinScore,
		})
	}
	if t.RAGMinScore < 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "rag_min_score must not be negative", map[string]interface{}{
			"param": "rag_min_score",
			"value": t.RAGMinScore,
		})
	}

	s.engine.Router.SetThresholds(t)
	s.logger.Info("routing thresholds changed", "faq_min_score", t.FAQMinScore, "rag_min_score", t.RAGMinScore)
	return mcp.NewToolResultText(formatJSON(t)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.engine.Status(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(formatJSON(status)), nil
}

// Helper functions

// arguments returns the argument map, empty when the client sent none
func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

func requireQuery(args map[string]interface{}) (string, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return "", newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}
	return query, nil
}

func indexingError(message string, err error) error {
	if errors.Is(err, indexer.ErrIndexingInProgress) {
		return newMCPError(ErrorCodeIndexingInProgress, err.Error(), nil)
	}
	return newMCPError(ErrorCodeInternalError, message, map[string]interface{}{
		"error": err.Error(),
	})
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks that path is an absolute, readable directory
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a number parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	if val, ok := args[key].(float64); ok {
		return val
	}
	if val, ok := args[key].(int); ok {
		return float64(val)
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
