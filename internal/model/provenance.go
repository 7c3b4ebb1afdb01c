package model

import "time"

// Entity is a PROV entity: a value, document, or derived figure
type Entity struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Attributes   map[string]any `json:"attributes,omitempty"`
	GeneratedBy  string         `json:"generated_by,omitempty"`
	DerivedFrom  []string       `json:"derived_from,omitempty"`
	AttributedTo string         `json:"attributed_to,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Activity is a PROV activity that used and generated entities
type Activity struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	StartedAt      time.Time      `json:"started_at"`
	EndedAt        time.Time      `json:"ended_at"`
	Used           []string       `json:"used,omitempty"`
	Generated      []string       `json:"generated,omitempty"`
	AssociatedWith string         `json:"associated_with,omitempty"`
	Attributes     map[string]any `json:"attributes,omitempty"`
}

// Agent is a PROV agent (person, software, organization)
type Agent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
}

// Common entity and activity types
const (
	EntityMeasurement   = "measurement"
	EntityDerivedValue  = "derived_value"
	EntityDocument      = "document"
	EntityInferredFact  = "inferred_fact"
	EntityResponse      = "response"
	ActivityAxiomApply  = "axiom_application"
	ActivityInference   = "inference"
	ActivityGeneration  = "generation"
	ActivityExtraction  = "extraction"
	AgentSoftware       = "software"
	DefaultSoftwareID   = "agent:bluebridge"
	DefaultSoftwareName = "bluebridge"
)
