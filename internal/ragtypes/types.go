// Package ragtypes holds the data model shared by every stage of the
// ingestion and retrieval pipelines: documents in, chunks stored, and
// answers out.
package ragtypes

import "time"

// Document is the external input to the Ingestion Orchestrator. It is not
// persisted as a unit; it is dissolved into Chunks at ingest time.
type Document struct {
	ID         string
	TenantID   string
	Collection string
	Text       string
	Metadata   map[string]any
}

// Chunk is the unit of storage and retrieval.
type Chunk struct {
	ID          string
	DocumentID  string
	TenantID    string
	ChunkIndex  int
	Text        string
	CharCount   int
	TokenCount  int
	DenseVector []float32

	Keywords  string
	Topics    string
	Questions string
	Summary   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Collection is a named, typed container of chunks.
type Collection struct {
	Name          string
	Dimension     int
	NumPartitions int
	Description   string
}

// Intent classifies a user query into one of 15 closed labels.
type Intent struct {
	Label            string
	Confidence       float64
	Language         string
	RecommendedModel string
}

// Closed taxonomy of intent labels, per the classifier's contract.
const (
	IntentSimpleLookup           = "simple_lookup"
	IntentListEnumeration        = "list_enumeration"
	IntentYesNo                  = "yes_no"
	IntentDefinitionExplanation  = "definition_explanation"
	IntentFactualRetrieval       = "factual_retrieval"
	IntentComparison             = "comparison"
	IntentAggregation            = "aggregation"
	IntentTemporal               = "temporal"
	IntentRelationshipMapping    = "relationship_mapping"
	IntentContextualExplanation = "contextual_explanation"
	IntentNegativeLogic          = "negative_logic"
	IntentCrossReference         = "cross_reference"
	IntentSynthesis              = "synthesis"
	IntentDocumentNavigation     = "document_navigation"
	IntentExceptionHandling      = "exception_handling"
)

// IntentLabels is the closed set in a stable order, used for prompt
// construction and validation.
var IntentLabels = []string{
	IntentSimpleLookup, IntentListEnumeration, IntentYesNo,
	IntentDefinitionExplanation, IntentFactualRetrieval, IntentComparison,
	IntentAggregation, IntentTemporal, IntentRelationshipMapping,
	IntentContextualExplanation, IntentNegativeLogic, IntentCrossReference,
	IntentSynthesis, IntentDocumentNavigation, IntentExceptionHandling,
}

// ComplexIntents map to the "strong" model tier in the Answer Generator;
// everything else maps to "fast".
var ComplexIntents = map[string]bool{
	IntentCrossReference:      true,
	IntentSynthesis:           true,
	IntentAggregation:         true,
	IntentTemporal:            true,
	IntentRelationshipMapping: true,
	IntentNegativeLogic:       true,
}

// Citation points from an answer's [Source N] marker back to the chunk it
// was drawn from.
type Citation struct {
	SourceID     int
	ChunkID      string
	DocumentID   string
	TextPreview  string
}

// Answer is the final product of the Retrieval Orchestrator.
type Answer struct {
	Text      string
	Citations []Citation
}

// StageReport is the per-stage outcome record every orchestrator response
// carries, one per stage, regardless of overall success.
type StageReport struct {
	TimeMS   int64
	Success  bool
	Skipped  bool
	Metadata map[string]any
}

// Candidate is a chunk paired with its current ranking score as it moves
// through search → rerank → compress.
type Candidate struct {
	Chunk Chunk
	Score float64
}
