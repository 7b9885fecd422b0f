package types

import "encoding/json"

// Route is the answer strategy selected for a query
type Route string

const (
	RouteFAQ      Route = "faq"
	RouteRAG      Route = "rag"
	RouteChitchat Route = "chitchat"
)

// Valid reports whether r is one of the known routes
func (r Route) Valid() bool {
	switch r {
	case RouteFAQ, RouteRAG, RouteChitchat:
		return true
	default:
		return false
	}
}

// RouteDecision is the router output for a single query
type RouteDecision struct {
	Route     Route
	Reason    string
	ProjectID string // Empty means no project scope
	Score     float64
}

// MarshalJSON renders an empty ProjectID as null
func (d RouteDecision) MarshalJSON() ([]byte, error) {
	var project *string
	if d.ProjectID != "" {
		project = &d.ProjectID
	}
	return json.Marshal(struct {
		Route     Route   `json:"route"`
		Reason    string  `json:"reason"`
		ProjectID *string `json:"project_id"`
		Score     float64 `json:"score"`
	}{d.Route, d.Reason, project, d.Score})
}

// FAQEntry is one curated question/answer pair
type FAQEntry struct {
	Question  string `json:"q"`
	Answer    string `json:"a"`
	ProjectID string `json:"project_id,omitempty"`
}

// FAQMatch is the best FAQ entry for a query
type FAQMatch struct {
	Entry FAQEntry
	Index int // Position of the entry in the FAQ store
	Score float64
}
