package states

import (
	"encoding/json"
	"time"
)

// Trace captures provenance information for one settled mutation: which
// cell, which sequence number, and how the pipeline concluded.
type Trace struct {
	Cell  string      `json:"cell"`
	Seq   uint64      `json:"seq"`
	Verb  string      `json:"verb"`
	Steps []TraceStep `json:"steps"`
}

// TraceStep details one pipeline conclusion.
type TraceStep struct {
	Phase      string    `json:"phase"`
	At         time.Time `json:"at"`
	Err        string    `json:"err,omitempty"`
	Persisted  bool      `json:"persisted,omitempty"`
	RolledBack bool      `json:"rolled_back,omitempty"`
}

// ToJSON serialises the trace into JSON for logging or transport helpers.
func (t Trace) ToJSON() ([]byte, error) {
	type alias Trace
	return json.Marshal(alias(t))
}

// TraceFromJSON deserialises a JSON payload that was previously generated
// via ToJSON.
func TraceFromJSON(payload []byte) (Trace, error) {
	type alias Trace
	var trace alias
	if err := json.Unmarshal(payload, &trace); err != nil {
		return Trace{}, err
	}
	return Trace(trace), nil
}
