// Copyright 2026 © The Avatar Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent holds the mutable record of the controlled agent: its
// identity, behavior mode and the references the lifecycle depends on.
package agent

import "strings"

// Mode is the agent's behavior mode.
type Mode string

const (
	ModePlaying  Mode = "PLAYING"
	ModeLearning Mode = "LEARNING"
)

// Recognized agent types. Anything else falls back to the configured
// default type.
const (
	TypePet      = "pet"
	TypeHumanoid = "humanoid"
)

// Record is the persisted agent state. It is owned by the controller and
// is not safe for concurrent use.
type Record struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	Type           string `yaml:"type"`
	Traits         string `yaml:"traits,omitempty"`
	OwnerID        string `yaml:"owner_id,omitempty"`
	Mode           Mode   `yaml:"mode"`
	LearningSchema string `yaml:"learning_schema,omitempty"`
	TriedSchema    string `yaml:"tried_schema,omitempty"`
	GrabbedObject  string `yaml:"grabbed_object,omitempty"`
	LastStopTime   uint64 `yaml:"last_stop_time,omitempty"`
}

// NewRecord builds a fresh record in PLAYING mode. An unrecognized
// agentType is replaced by defaultType.
func NewRecord(id, name, agentType, defaultType, traits, ownerID string) *Record {
	return &Record{
		ID:      id,
		Name:    name,
		Type:    ResolveType(agentType, defaultType),
		Traits:  traits,
		OwnerID: ownerID,
		Mode:    ModePlaying,
	}
}

// ResolveType returns agentType when it is a recognized type and
// defaultType otherwise.
func ResolveType(agentType, defaultType string) string {
	switch t := strings.ToLower(strings.TrimSpace(agentType)); t {
	case TypePet, TypeHumanoid:
		return t
	}
	return defaultType
}

// HasGrabbedObject reports whether the agent holds an object.
func (r *Record) HasGrabbedObject() bool {
	return r.GrabbedObject != ""
}

// SetGrabbedObject records the held object; an empty id drops it.
func (r *Record) SetGrabbedObject(id string) {
	r.GrabbedObject = id
}

// IsLearning reports whether the agent is in LEARNING mode.
func (r *Record) IsLearning() bool {
	return r.Mode == ModeLearning
}

// StartLearning switches to LEARNING mode for schema.
func (r *Record) StartLearning(schema string) {
	r.Mode = ModeLearning
	r.LearningSchema = schema
}

// StopLearning returns to PLAYING mode and reports the schema that was
// being learned. It is a no-op outside LEARNING mode.
func (r *Record) StopLearning(ts uint64) (string, bool) {
	if r.Mode != ModeLearning {
		return "", false
	}
	schema := r.LearningSchema
	r.Mode = ModePlaying
	r.LearningSchema = ""
	r.LastStopTime = ts
	return schema, true
}

// SetTriedSchema marks schema as the candidate currently being tried.
func (r *Record) SetTriedSchema(schema string) {
	r.TriedSchema = schema
}

// Clone returns a copy of r.
func (r *Record) Clone() *Record {
	c := *r
	return &c
}
