package committee

import "orderdesk-hq/callisto/pkg/order"

// Evidence pack caps. BuildPack truncates to these; Validate rejects packs
// that exceed them.
const (
	MaxHeaderLen        = 100
	MaxSampleLen        = 200
	MaxSamplesPerColumn = 5
)

// ColumnEvidence describes one candidate column inside the evidence pack.
type ColumnEvidence struct {
	// ID is the stable column identifier ("col_0", "col_1", ...). It is the
	// only way providers may reference a column.
	ID string `json:"id"`

	// Header is the header text, truncated to MaxHeaderLen characters.
	Header string `json:"header"`

	// Samples holds up to MaxSamplesPerColumn non-empty values, each
	// truncated to MaxSampleLen characters.
	Samples []string `json:"samples"`

	// Aggregate statistics over the full column.
	NonEmptyCount int      `json:"non_empty_count"`
	UniqueCount   int      `json:"unique_count"`
	DataTypes     []string `json:"data_types"`
	Patterns      []string `json:"patterns,omitempty"`
}

// Pack is the bounded evidence pack handed to every provider.
type Pack struct {
	Columns  []ColumnEvidence `json:"columns"`
	Language string           `json:"language"`

	// Fields enumerates the canonical fields the providers must map.
	Fields []string `json:"fields"`

	// Constraints enumerates the rules providers are told to follow.
	Constraints []string `json:"constraints"`
}

// Mapping is one provider's verdict for one canonical field.
type Mapping struct {
	Field string `json:"field"`

	// SelectedColumnID must be one of the pack's column ids, or null for
	// "this field has no column".
	SelectedColumnID *string `json:"selected_column_id"`

	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// ProviderIssue is a problem a provider reports about the sheet itself.
type ProviderIssue struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Evidence string `json:"evidence"`
}

// ProviderResult is the strict output contract every provider must meet.
type ProviderResult struct {
	Mappings          []Mapping       `json:"mappings"`
	Issues            []ProviderIssue `json:"issues"`
	OverallConfidence float64         `json:"overall_confidence"`
	ProcessingTimeMS  int64           `json:"processing_time_ms"`
}

// Vote is one provider's validated contribution.
type Vote struct {
	Provider string
	Family   string
	Weight   float64
	Result   *ProviderResult

	// Err is set when the provider failed or its output was discarded.
	Err error
}

// ConsensusLabel classifies field-level agreement among valid votes.
type ConsensusLabel string

const (
	ConsensusUnanimous ConsensusLabel = "unanimous"
	ConsensusMajority  ConsensusLabel = "majority"
	ConsensusSplit     ConsensusLabel = "split"
	ConsensusNone      ConsensusLabel = "no_consensus"
)

// FieldConsensus is the aggregated outcome for one canonical field.
type FieldConsensus struct {
	Field              order.Field
	SelectedColumnID   string // empty when the winner is "no column"
	Score              float64
	Label              ConsensusLabel
	RequiresHumanInput bool
}

// Result is the committee's merged output.
type Result struct {
	Fields []FieldConsensus

	// ValidVotes and DiscardedVotes record what the aggregation saw.
	ValidVotes     []Vote
	DiscardedVotes []Vote

	// Seed reproduces the provider selection.
	Seed int64

	// RequiresHumanInput is set when quorum degraded to a single vote or
	// any field needs review.
	RequiresHumanInput bool
}
