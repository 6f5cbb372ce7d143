package model

import (
	"encoding/json"
	"time"
)

// StageDescriptor describes one step of the five-step analysis sequence
type StageDescriptor struct {
	Index        int           `json:"index" yaml:"index"`
	Name         string        `json:"name" yaml:"name"`     // Stable identifier (e.g. "retrieval")
	Title        string        `json:"title" yaml:"title"`   // Display title
	Detail       string        `json:"detail" yaml:"detail"` // One-line description for progress views
	NominalDelay time.Duration `json:"-" yaml:"nominal_delay"`
}

// MarshalJSON reports the nominal delay in milliseconds
func (s StageDescriptor) MarshalJSON() ([]byte, error) {
	type plain StageDescriptor
	return json.Marshal(struct {
		plain
		NominalDelayMs int64 `json:"nominal_delay_ms"`
	}{plain(s), s.NominalDelay.Milliseconds()})
}
