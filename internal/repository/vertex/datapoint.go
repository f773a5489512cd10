package vertex

import (
	"encoding/json"
	"io"
)

// Datapoint is one line of a Vector Search index import file
type Datapoint struct {
	ID        string     `json:"id"`
	Embedding []float32  `json:"embedding"`
	Restricts []Restrict `json:"restricts,omitempty"`
}

// Restrict defines a token-based filter
type Restrict struct {
	Namespace string   `json:"namespace"`
	Allow     []string `json:"allow"`
}

// NewDatapoint builds a datapoint that can be filtered by author
func NewDatapoint(id, author string, embedding []float32) Datapoint {
	dp := Datapoint{ID: id, Embedding: embedding}
	if author != "" {
		dp.Restricts = []Restrict{{Namespace: "author", Allow: []string{author}}}
	}
	return dp
}

// DatapointWriter writes datapoints as JSONL
type DatapointWriter struct {
	enc *json.Encoder
}

// NewDatapointWriter creates a JSONL writer over w
func NewDatapointWriter(w io.Writer) *DatapointWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &DatapointWriter{enc: enc}
}

// Write appends one datapoint line
func (w *DatapointWriter) Write(id, author string, embedding []float32) error {
	return w.enc.Encode(NewDatapoint(id, author, embedding))
}
