// Package mcp implements the Model Context Protocol (MCP) server for ragroute.
//
// The server exposes the engine to MCP clients over stdio:
//   - route_query: Decide between faq, rag and chitchat for a query
//   - search: Hybrid, dense or lexical chunk retrieval
//   - ingest_corpus: Chunk a document directory into the store
//   - build_index: Rebuild the lexical and dense indexes
//   - backfill_lexical: Seed an empty lexical index from stored documents
//   - set_thresholds: Change the routing thresholds at runtime
//   - get_status: Report store, index and FAQ state
//
// It is started by the serve command:
//
//	ragroute serve
//
// # Tool: route_query
//
//	Request:
//	{
//	  "name": "route_query",
//	  "arguments": {"query": "What's LedgerMind"}
//	}
//
//	Response:
//	{
//	  "route": "faq",
//	  "reason": "faq match score=0.913",
//	  "project_id": "ledgermind",
//	  "score": 0.913
//	}
//
// project_id is null when no project scope applies.
//
// # Errors
//
// Handlers return *MCPError values carrying JSON-RPC codes:
//
//	-32602  invalid parameters
//	-32603  internal error
//	-32002  an ingest or rebuild is already running
//	-32004  empty query
//
// Backend failures during routing are not errors; the router logs them and
// falls back to chitchat.
package mcp
