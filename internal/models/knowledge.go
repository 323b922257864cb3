package models

// KnowledgeEntry is a static agronomy note associated with one disease class.
type KnowledgeEntry struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Class string `json:"class"`
	Text  string `json:"text"`
}

// KnowledgeHit is a full-text search hit over the knowledge base.
type KnowledgeHit struct {
	Entry KnowledgeEntry `json:"entry"`
	Score float64        `json:"score"`
}
