package model

// ChunkSource labels where a knowledge chunk came from. The label is stored
// with every chunk and surfaces in answer provenance.
type ChunkSource string

const (
	SourceCompanyInfo    ChunkSource = "company_info"
	SourceCompetitorInfo ChunkSource = "competitor_info"
	SourceDeepResearch   ChunkSource = "deep_research"
	SourceNews           ChunkSource = "news"
	SourceInsight        ChunkSource = "insight"
)

// KnowledgeChunk is one retrievable unit of company knowledge. Seq is the
// chunk's position within its source document, which keeps ordering stable
// across rebuilds of the same data.
type KnowledgeChunk struct {
	Text       string      `json:"text"`
	Source     ChunkSource `json:"source"`
	EntityName string      `json:"entity_name"`
	Seq        int         `json:"seq"`
}
