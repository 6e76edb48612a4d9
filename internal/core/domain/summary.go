package domain

// Chunk is one bounded slice of newsletter text produced by segmentation.
// Index is zero-based; Total is the number of chunks in the sequence.
// Overlap is the byte length of the context prefix repeated from the end of
// the previous chunk; stripping it from every chunk after the first and
// concatenating the rest reconstructs the original text.
type Chunk struct {
	Text    string
	Index   int
	Total   int
	Overlap int
}

// SummaryKind discriminates chunk extraction outcomes.
type SummaryKind string

// Chunk summary outcome constants.
const (
	SummaryOK    SummaryKind = "ok"
	SummaryEmpty SummaryKind = "empty"
	SummaryError SummaryKind = "error"
)

// ChunkSummary is the outcome of extracting one chunk. Extraction failures
// stay inside the value as SummaryError; they never cross the chunk boundary
// as Go errors, so one bad chunk cannot abort the digest.
type ChunkSummary struct {
	Index  int
	Kind   SummaryKind
	Text   string // set when Kind == SummaryOK
	Reason string // set when Kind == SummaryError
}

// OKSummary builds a successful chunk summary.
func OKSummary(index int, text string) ChunkSummary {
	return ChunkSummary{Index: index, Kind: SummaryOK, Text: text}
}

// EmptySummary marks a chunk that produced no newsworthy content.
func EmptySummary(index int) ChunkSummary {
	return ChunkSummary{Index: index, Kind: SummaryEmpty}
}

// ErrorSummary marks a chunk whose extraction call failed.
func ErrorSummary(index int, reason string) ChunkSummary {
	return ChunkSummary{Index: index, Kind: SummaryError, Reason: reason}
}

// Valid reports whether the summary carries usable text.
func (s ChunkSummary) Valid() bool {
	return s.Kind == SummaryOK
}
