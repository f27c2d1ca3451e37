package models

// EnrichmentKind selects which external enrichment a call requests.
type EnrichmentKind string

const (
	KindSummarize       EnrichmentKind = "summarize"
	KindExtractEntities EnrichmentKind = "extract_entities"
)

// EntityType categorizes an extracted entity.
type EntityType string

// Entity types recognized by the entity extractor. The enrichment service is
// instructed to classify into exactly these buckets; anything else is folded
// into EntityTopic.
const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityPlace        EntityType = "place"
	EntityDate         EntityType = "date"
	EntityTopic        EntityType = "topic"
	EntityWork         EntityType = "work"
)

// KnownEntityTypes lists the valid entity buckets in a stable order.
var KnownEntityTypes = []EntityType{
	EntityPerson,
	EntityOrganization,
	EntityPlace,
	EntityDate,
	EntityTopic,
	EntityWork,
}

// EnrichmentResult is the output of the enrichment retry layer, keyed by
// content fingerprint. Summary and Entities are nil when the corresponding
// enrichment was disabled, failed terminally, or exhausted its retries.
type EnrichmentResult struct {
	Summary   *string                 `json:"summary,omitempty"`
	Entities  map[EntityType][]string `json:"entities,omitempty"`
	CostUnits float64                 `json:"cost_units"`
	FromCache bool                    `json:"from_cache"`
}
