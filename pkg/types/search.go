package types

// SearchResult is one passage returned for answer assembly
type SearchResult struct {
	ChunkID        int64   `json:"chunk_id"`
	Rank           int     `json:"rank"`
	RelevanceScore float64 `json:"relevance_score"`
	Title          string  `json:"title"`
	SourcePath     string  `json:"source_path"`
	ProjectID      string  `json:"project_id,omitempty"`
	Content        string  `json:"content"`
}
