package models

import "strings"

// DefaultLimit is the number of results returned when no usable limit is given.
const DefaultLimit = 5

// Analysis is the literary analysis stored alongside each poem
type Analysis struct {
	Theme              string `json:"theme"`
	CoreIdea           string `json:"core_idea"`
	ApplicableScenario string `json:"applicable_scenario"`
	ModernSignificance string `json:"modern_significance"`
}

// Complete reports whether every analysis field is present.
func (a Analysis) Complete() bool {
	return a.Theme != "" && a.CoreIdea != "" && a.ApplicableScenario != "" && a.ModernSignificance != ""
}

// DocumentText is the text embedded for a poem on write. The labels match the
// prefixes used by theme and scenario queries.
func (a Analysis) DocumentText() string {
	var b strings.Builder
	b.WriteString("主题：" + a.Theme + "\n")
	b.WriteString("核心思想：" + a.CoreIdea + "\n")
	b.WriteString("适用场景：" + a.ApplicableScenario + "\n")
	b.WriteString("现代意义：" + a.ModernSignificance)
	return b.String()
}

// Poem represents a stored poem with its analysis
type Poem struct {
	ID       string   `json:"id" db:"id"`
	Title    string   `json:"title" db:"title"`
	Author   string   `json:"author" db:"author"`
	Content  string   `json:"content" db:"content"`
	Analysis Analysis `json:"analysis"`
}

// SearchResult represents a poem with similarity score
type SearchResult struct {
	Poem
	Score float64 `json:"score"`
}

// SearchOptions controls a similarity query
type SearchOptions struct {
	Limit    int     `json:"limit"`
	MinScore float64 `json:"minScore"`
}

// Normalize applies defaults: limit <= 0 becomes DefaultLimit and a negative
// score floor becomes 0. Positive limits pass through unchanged.
func (o SearchOptions) Normalize() SearchOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.MinScore < 0 {
		o.MinScore = 0
	}
	return o
}

// SearchResponse is the public and admin search envelope
type SearchResponse struct {
	Success bool           `json:"success"`
	Data    []SearchResult `json:"data"`
	Debug   *DebugInfo     `json:"debug,omitempty"`
}

// ErrorResponse is the public and admin error envelope
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// AdminSearchRequest is the request for admin search
type AdminSearchRequest struct {
	Query   string        `json:"query"`
	Options SearchOptions `json:"options"`
	Debug   bool          `json:"debug"`
}

// DebugInfo exposes the query vector and raw scores of an admin search
type DebugInfo struct {
	VectorDetails   bool      `json:"vector_details"`
	VectorDimension int       `json:"vector_dimension"`
	QueryVector     []float64 `json:"query_vector"`
	RawScores       []float64 `json:"raw_scores"`
}

// PoemWriteResponse acknowledges an admin write
type PoemWriteResponse struct {
	Success bool          `json:"success"`
	Data    PoemReference `json:"data"`
}

// PoemReference identifies a written poem
type PoemReference struct {
	ID string `json:"id"`
}

// MCPSearchRequest is the request for MCP search
type MCPSearchRequest struct {
	Query      string        `json:"query"`
	Parameters SearchOptions `json:"parameters"`
}

// MCPMetadata describes an MCP search response
type MCPMetadata struct {
	Total     int   `json:"total"`
	QueryTime int64 `json:"query_time"`
}

// MCPSearchResponse is the response envelope for MCP consumers
type MCPSearchResponse struct {
	ResponseType string         `json:"response_type"`
	Data         []SearchResult `json:"data"`
	Metadata     MCPMetadata    `json:"metadata"`
}

// MCPErrorResponse is the MCP error envelope
type MCPErrorResponse struct {
	ResponseType string `json:"response_type"`
	Error        string `json:"error"`
}

// SourcePoem is one line of an ingestion JSONL file
type SourcePoem struct {
	ID       any      `json:"id"`
	Title    string   `json:"title"`
	Author   string   `json:"author"`
	Content  string   `json:"content"`
	KindCN   string   `json:"kind_cn"`
	Analysis Analysis `json:"analysis"`
}
