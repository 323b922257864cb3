package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/fieldscout/internal/models"
)

const (
	titleBoost         = 2.0
	retryFuzziness     = 1 // used when an exact search finds nothing
	maxSuggestDistance = 2
)

// textIndex is an in-memory Bleve index over entry titles and text.
type textIndex struct {
	index bleve.Index
	terms []string
}

func newTextIndex(entries []models.KnowledgeEntry) (*textIndex, error) {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer: lowercase and tokenize, no stemming, so disease names
	// match as written.
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	docMapping.AddFieldMappingsAt("text", textFieldMapping)
	docMapping.AddFieldMappingsAt("class", bleve.NewKeywordFieldMapping())
	im.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create knowledge index: %w", err)
	}
	batch := index.NewBatch()
	for _, e := range entries {
		doc := map[string]interface{}{"title": e.Title, "text": e.Text, "class": e.Class}
		if err := batch.Index(e.ID, doc); err != nil {
			index.Close()
			return nil, fmt.Errorf("failed to index %s: %w", e.ID, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		index.Close()
		return nil, fmt.Errorf("failed to build knowledge index: %w", err)
	}

	t := &textIndex{index: index}
	t.terms, err = t.collectTerms("title", "text")
	if err != nil {
		index.Close()
		return nil, err
	}
	return t, nil
}

func (t *textIndex) collectTerms(fields ...string) ([]string, error) {
	seen := make(map[string]struct{})
	var terms []string
	for _, field := range fields {
		dict, err := t.index.FieldDict(field)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s terms: %w", field, err)
		}
		for {
			entry, err := dict.Next()
			if err != nil || entry == nil {
				break
			}
			if _, ok := seen[entry.Term]; !ok {
				seen[entry.Term] = struct{}{}
				terms = append(terms, entry.Term)
			}
		}
		dict.Close()
	}
	sort.Strings(terms)
	return terms, nil
}

func (t *textIndex) query(q string, fuzziness int) blevequery.Query {
	title := bleve.NewMatchQuery(q)
	title.SetField("title")
	title.SetBoost(titleBoost)
	text := bleve.NewMatchQuery(q)
	text.SetField("text")
	if fuzziness > 0 {
		title.SetFuzziness(fuzziness)
		text.SetFuzziness(fuzziness)
	}
	return bleve.NewDisjunctionQuery(title, text)
}

func (t *textIndex) search(ctx context.Context, q string, limit, fuzziness int) ([]scoredID, error) {
	req := bleve.NewSearchRequest(t.query(q, fuzziness))
	req.Size = limit
	req.SortBy([]string{"-_score", "_id"})
	res, err := t.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("knowledge search failed: %w", err)
	}
	out := make([]scoredID, len(res.Hits))
	for i, hit := range res.Hits {
		out[i] = scoredID{id: hit.ID, score: hit.Score}
	}
	return out, nil
}

func (t *textIndex) close() error {
	return t.index.Close()
}

type scoredID struct {
	id    string
	score float64
}

// Search runs a full-text query over titles and text, title matches weighted
// higher. When nothing matches exactly the query is retried with typo
// tolerance. Results are ordered by score, then id.
func (b *Base) Search(ctx context.Context, query string, limit int) ([]models.KnowledgeHit, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 || b.Len() == 0 {
		return []models.KnowledgeHit{}, nil
	}
	hits, err := b.index.search(ctx, query, limit, 0)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		if hits, err = b.index.search(ctx, query, limit, retryFuzziness); err != nil {
			return nil, err
		}
	}
	out := make([]models.KnowledgeHit, 0, len(hits))
	for _, h := range hits {
		if e, ok := b.Get(h.id); ok {
			out = append(out, models.KnowledgeHit{Entry: e, Score: h.score})
		}
	}
	return out, nil
}

// Suggest rewrites each query term not present in the index to its closest
// indexed term. It returns "" when there is nothing to correct.
func (b *Base) Suggest(query string) string {
	if b.index == nil {
		return ""
	}
	words := strings.Fields(strings.ToLower(query))
	changed := false
	for i, w := range words {
		if best, ok := b.index.closest(w); ok {
			words[i] = best
			changed = true
		}
	}
	if !changed {
		return ""
	}
	return strings.Join(words, " ")
}

func (t *textIndex) closest(word string) (string, bool) {
	i := sort.SearchStrings(t.terms, word)
	if i < len(t.terms) && t.terms[i] == word {
		return "", false
	}
	best, bestDist := "", maxSuggestDistance+1
	for _, term := range t.terms {
		d := len(term) - len(word)
		if d < 0 {
			d = -d
		}
		if d >= bestDist {
			continue
		}
		if dist := levenshtein(word, term); dist < bestDist {
			best, bestDist = term, dist
		}
	}
	return best, best != ""
}

// levenshtein returns the edit distance between a and b over runes.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
