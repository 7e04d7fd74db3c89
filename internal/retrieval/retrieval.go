package retrieval

import "context"

// Passage is one ranked excerpt of tenant knowledge.
type Passage struct {
	Text   string
	Source string
}

// Retriever finds the passages most relevant to a query, scoped to one
// tenant. An empty corpus yields an empty slice, not an error.
type Retriever interface {
	Retrieve(ctx context.Context, tenantID, query string) ([]Passage, error)
}
