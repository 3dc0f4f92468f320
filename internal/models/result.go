package models

// SearchResult represents a single ranked proposal.
type SearchResult struct {
	Proposal *ProposalRecord `json:"proposal"`
	// Score is the weighted sum of the per-space similarities.
	Score       float64            `json:"fused_score"`
	SpaceScores map[string]float64 `json:"space_scores"`
	Rank        int                `json:"rank"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results   []*SearchResult `json:"results"`
	Total     int             `json:"total"`
	QueryTime int64           `json:"query_time_ms"`
}
