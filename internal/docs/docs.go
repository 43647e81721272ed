// Package docs retrieves reference-document snippets relevant to an
// investigation query. Documents are markdown files under a configured
// directory, indexed by keyword at load time. Retrieval is best-effort
// context for final reports; an empty result set is normal.
package docs

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Snippet is one retrieved piece of reference material.
type Snippet struct {
	Filename string  `json:"filename"`
	Snippet  string  `json:"snippet"`
	Score    float64 `json:"score"`
}

// Retriever searches reference documents.
type Retriever interface {
	// Search returns up to limit snippets relevant to query, best
	// match first. A query matching nothing returns an empty slice.
	Search(ctx context.Context, query string, limit int) ([]Snippet, error)
}

// None is a Retriever over no documents. Used when no docs directory is
// configured.
type None struct{}

func (None) Search(ctx context.Context, query string, limit int) ([]Snippet, error) {
	return nil, nil
}

const maxSnippetLen = 500

type document struct {
	filename string
	content  string
	words    map[string]int
}

// fsRetriever indexes markdown files from a directory once at load.
type fsRetriever struct {
	documents []document
}

var wordRe = regexp.MustCompile(`\w+`)

// NewFSRetriever loads every .md file under dir. A missing directory is
// an error; an empty one is fine.
func NewFSRetriever(dir string) (Retriever, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("docs directory %q: %w", dir, err)
	}

	r := &fsRetriever{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		content := string(data)
		r.documents = append(r.documents, document{
			filename: d.Name(),
			content:  content,
			words:    indexWords(content),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// indexWords counts occurrences of each word longer than three
// characters. Short words are too common to discriminate.
func indexWords(content string) map[string]int {
	words := make(map[string]int)
	for _, w := range wordRe.FindAllString(strings.ToLower(content), -1) {
		if len(w) > 3 {
			words[w]++
		}
	}
	return words
}

func (r *fsRetriever) Search(ctx context.Context, query string, limit int) ([]Snippet, error) {
	if limit <= 0 {
		limit = 5
	}

	queryWords := make([]string, 0, 8)
	for _, w := range wordRe.FindAllString(strings.ToLower(query), -1) {
		if len(w) > 3 {
			queryWords = append(queryWords, w)
		}
	}
	if len(queryWords) == 0 {
		return nil, nil
	}

	type scored struct {
		doc   document
		score float64
	}
	var hits []scored
	for _, doc := range r.documents {
		score := 0.0
		for _, w := range queryWords {
			if doc.words[w] > 0 {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{doc: doc, score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	snippets := make([]Snippet, 0, len(hits))
	for _, h := range hits {
		snippets = append(snippets, Snippet{
			Filename: h.doc.filename,
			Snippet:  relevantSnippet(h.doc.content, queryWords),
			Score:    h.score,
		})
	}
	return snippets, nil
}

// relevantSnippet returns the highest-scoring sentences of content,
// in document order, truncated to maxSnippetLen.
func relevantSnippet(content string, queryWords []string) string {
	sentences := splitSentences(content)

	type scored struct {
		index    int
		sentence string
		score    int
	}
	ranked := make([]scored, 0, len(sentences))
	for i, s := range sentences {
		lower := strings.ToLower(s)
		score := 0
		for _, w := range queryWords {
			if strings.Contains(lower, w) {
				score++
			}
		}
		ranked = append(ranked, scored{index: i, sentence: s, score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > 3 {
		ranked = ranked[:3]
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].index < ranked[j].index })

	parts := make([]string, 0, len(ranked))
	for _, r := range ranked {
		if r.score > 0 {
			parts = append(parts, strings.TrimSpace(r.sentence))
		}
	}
	snippet := strings.Join(parts, " ")
	if snippet == "" && len(sentences) > 0 {
		snippet = strings.TrimSpace(sentences[0])
	}
	if len(snippet) > maxSnippetLen {
		snippet = snippet[:maxSnippetLen] + "..."
	}
	return snippet
}

func splitSentences(content string) []string {
	// Markdown rarely has clean sentence structure; split on sentence
	// enders and newlines and keep non-trivial fragments.
	raw := strings.FieldsFunc(content, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	sentences := make([]string, 0, len(raw))
	for _, s := range raw {
		if len(strings.TrimSpace(s)) > 10 {
			sentences = append(sentences, s)
		}
	}
	return sentences
}
