package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/stategraph/graph/model"
)

// SearchTool exposes a Retriever to researcher models as "search_articles".
type SearchTool struct {
	retriever Retriever
	bodyChars int
}

// NewSearchTool wraps r. Article bodies longer than bodyChars runes are cut;
// values <= 0 keep full bodies.
func NewSearchTool(r Retriever, bodyChars int) *SearchTool {
	return &SearchTool{retriever: r, bodyChars: bodyChars}
}

// Name implements tool.Tool.
func (s *SearchTool) Name() string {
	return "search_articles"
}

// Spec implements tool.Tool.
func (s *SearchTool) Spec() model.ToolSpec {
	return model.ToolSpec{
		Name:        s.Name(),
		Description: "Search the article archive. Returns the most relevant articles with headline, body and source link.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Keywords describing what to look for",
				},
			},
			"required": []string{"query"},
		},
	}
}

// Call implements tool.Tool.
func (s *SearchTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	query, _ := input["query"].(string)
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}

	docs, err := s.retriever.Retrieve(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	articles := make([]map[string]interface{}, len(docs))
	for i, d := range docs {
		body := d.Body
		if s.bodyChars > 0 {
			if r := []rune(body); len(r) > s.bodyChars {
				body = string(r[:s.bodyChars])
			}
		}
		articles[i] = map[string]interface{}{
			"id":          d.ID,
			"headline":    d.Headline,
			"body":        body,
			"source_link": d.SourceLink,
		}
	}
	return map[string]interface{}{"query": query, "articles": articles}, nil
}
