package research

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Document is one archived article.
type Document struct {
	ID         string `json:"id" yaml:"id"`
	Headline   string `json:"headline" yaml:"headline"`
	Body       string `json:"body" yaml:"body"`
	SourceLink string `json:"source_link" yaml:"source_link"`
}

// Retriever returns the documents most relevant to query, most relevant first.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]Document, error)
}

// MemoryRetriever ranks an in-memory corpus by term frequency.
//
// Headline matches weigh twice as much as body matches. Documents without
// any matching term are never returned.
type MemoryRetriever struct {
	docs  []Document
	terms []map[string]int
	limit int
}

// NewMemoryRetriever indexes docs. limit caps the results per query; values
// <= 0 mean 5.
func NewMemoryRetriever(docs []Document, limit int) *MemoryRetriever {
	if limit <= 0 {
		limit = 5
	}
	r := &MemoryRetriever{
		docs:  append([]Document(nil), docs...),
		terms: make([]map[string]int, len(docs)),
		limit: limit,
	}
	for i, d := range r.docs {
		counts := make(map[string]int)
		for _, t := range tokenize(d.Headline) {
			counts[t] += 2
		}
		for _, t := range tokenize(d.Body) {
			counts[t]++
		}
		r.terms[i] = counts
	}
	return r
}

// Len returns the number of indexed documents.
func (r *MemoryRetriever) Len() int {
	return len(r.docs)
}

// Retrieve implements Retriever. Ties keep corpus order.
func (r *MemoryRetriever) Retrieve(ctx context.Context, query string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type hit struct {
		idx   int
		score int
	}
	queryTerms := tokenize(query)
	var hits []hit
	for i, counts := range r.terms {
		score := 0
		for _, t := range queryTerms {
			score += counts[t]
		}
		if score > 0 {
			hits = append(hits, hit{idx: i, score: score})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })

	if len(hits) > r.limit {
		hits = hits[:r.limit]
	}
	out := make([]Document, len(hits))
	for i, h := range hits {
		out[i] = r.docs[h.idx]
	}
	return out, nil
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 2 {
			out = append(out, f)
		}
	}
	return out
}

// LoadDocuments reads a YAML or JSON list of documents from path.
func LoadDocuments(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	var docs []Document
	if err := yaml.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parse corpus %s: %w", path, err)
	}
	for i, d := range docs {
		if d.ID == "" {
			return nil, fmt.Errorf("corpus %s: document %d has no id", path, i)
		}
	}
	return docs, nil
}
