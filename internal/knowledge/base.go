// Package knowledge loads the agronomy knowledge base and answers lookups by
// class, by id, and by free text.
package knowledge

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hyperjump/fieldscout/internal/models"
)

// DefaultK is the number of entries retrieved per predicted class.
const DefaultK = 3

// maxLineBytes bounds a single JSONL record.
const maxLineBytes = 1 << 20

// Base is an immutable, indexed set of knowledge entries. All methods are safe
// for concurrent use after load.
type Base struct {
	entries []models.KnowledgeEntry
	byID    map[string]int
	byClass map[string][]int
	classes []string
	index   *textIndex
}

type record struct {
	ID    *string `json:"id"`
	Title *string `json:"title"`
	Class *string `json:"class"`
	Text  *string `json:"text"`
}

// LoadFile reads a JSONL knowledge base from path.
func LoadFile(path string) (*Base, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge base: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads one JSON object per line with id, title, class and text. Blank
// lines are skipped. Any malformed line, missing field or duplicate id fails
// the whole load.
func Load(r io.Reader) (*Base, error) {
	b := &Base{
		byID:    make(map[string]int),
		byClass: make(map[string][]int),
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("knowledge line %d: %w", lineNo, err)
		}
		entry, err := rec.entry()
		if err != nil {
			return nil, fmt.Errorf("knowledge line %d: %w", lineNo, err)
		}
		if _, dup := b.byID[entry.ID]; dup {
			return nil, fmt.Errorf("knowledge line %d: duplicate id %q", lineNo, entry.ID)
		}
		i := len(b.entries)
		b.entries = append(b.entries, entry)
		b.byID[entry.ID] = i
		if _, seen := b.byClass[entry.Class]; !seen {
			b.classes = append(b.classes, entry.Class)
		}
		b.byClass[entry.Class] = append(b.byClass[entry.Class], i)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read knowledge base: %w", err)
	}

	idx, err := newTextIndex(b.entries)
	if err != nil {
		return nil, err
	}
	b.index = idx
	return b, nil
}

func (r record) entry() (models.KnowledgeEntry, error) {
	var missing []string
	if r.ID == nil || strings.TrimSpace(*r.ID) == "" {
		missing = append(missing, "id")
	}
	if r.Title == nil {
		missing = append(missing, "title")
	}
	if r.Class == nil || strings.TrimSpace(*r.Class) == "" {
		missing = append(missing, "class")
	}
	if r.Text == nil {
		missing = append(missing, "text")
	}
	if len(missing) > 0 {
		return models.KnowledgeEntry{}, fmt.Errorf("missing field(s): %s", strings.Join(missing, ", "))
	}
	return models.KnowledgeEntry{
		ID:    strings.TrimSpace(*r.ID),
		Title: *r.Title,
		Class: strings.TrimSpace(*r.Class),
		Text:  *r.Text,
	}, nil
}

// ForClass returns up to k entries for class in file order. An unknown class
// or k <= 0 yields an empty slice.
func (b *Base) ForClass(class string, k int) []models.KnowledgeEntry {
	idx := b.byClass[class]
	if k <= 0 || len(idx) == 0 {
		return []models.KnowledgeEntry{}
	}
	if k > len(idx) {
		k = len(idx)
	}
	out := make([]models.KnowledgeEntry, k)
	for i := 0; i < k; i++ {
		out[i] = b.entries[idx[i]]
	}
	return out
}

// Get returns the entry with id.
func (b *Base) Get(id string) (models.KnowledgeEntry, bool) {
	i, ok := b.byID[id]
	if !ok {
		return models.KnowledgeEntry{}, false
	}
	return b.entries[i], true
}

// TitleOf returns the title for id, or "" when id is unknown.
func (b *Base) TitleOf(id string) string {
	e, _ := b.Get(id)
	return e.Title
}

// Classes returns the distinct classes in first-seen order.
func (b *Base) Classes() []string {
	return append([]string(nil), b.classes...)
}

// Len returns the number of entries.
func (b *Base) Len() int {
	return len(b.entries)
}

// Coverage reports how the knowledge base lines up with the model labels.
type Coverage struct {
	// UnknownClasses are knowledge classes no label matches.
	UnknownClasses []string `json:"unknown_classes"`
	// UncoveredLabels are labels with no knowledge entries.
	UncoveredLabels []string `json:"uncovered_labels"`
}

// OK reports whether every class and label is matched.
func (c Coverage) OK() bool {
	return len(c.UnknownClasses) == 0 && len(c.UncoveredLabels) == 0
}

// Validate compares the knowledge classes against labels.
func (b *Base) Validate(labels []string) Coverage {
	labelSet := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		labelSet[l] = struct{}{}
	}
	cov := Coverage{UnknownClasses: []string{}, UncoveredLabels: []string{}}
	for _, c := range b.classes {
		if _, ok := labelSet[c]; !ok {
			cov.UnknownClasses = append(cov.UnknownClasses, c)
		}
	}
	for _, l := range labels {
		if _, ok := b.byClass[l]; !ok {
			cov.UncoveredLabels = append(cov.UncoveredLabels, l)
		}
	}
	return cov
}

// Close releases the text index.
func (b *Base) Close() error {
	if b.index == nil {
		return nil
	}
	return b.index.close()
}
