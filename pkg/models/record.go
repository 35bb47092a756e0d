// Package models provides the record types emitted by multisql.
//
// A TaggedRecord is a discriminated result item: either a row read from a
// unit's result set, or a unit failure captured as data. Both variants carry
// the id of the unit that produced them, so consumers can attribute output and
// failures to a statement without ever seeing a raw driver error.
package models

import (
	"time"
)

// RecordKind discriminates the active variant of a TaggedRecord.
type RecordKind string

const (
	// KindRow marks a successfully read row
	KindRow RecordKind = "row"
	// KindError marks a unit failure converted to data
	KindError RecordKind = "error"
)

// TaggedRecord is the unified output type. Exactly one variant is active:
//   - KindRow: Fields holds the column values (including the source field)
//   - KindError: Message and FailureClass describe the failure
type TaggedRecord struct {
	Kind     RecordKind `json:"kind"`
	SourceID string     `json:"source_id"`

	// Row variant
	Fields map[string]interface{} `json:"fields,omitempty"`

	// Error variant
	Message       string `json:"message,omitempty"`
	FailureClass  string `json:"failure_class,omitempty"`
	ReferenceName string `json:"reference_name,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// NewRow creates a row record for the given unit.
func NewRow(sourceID string, fields map[string]interface{}) *TaggedRecord {
	return &TaggedRecord{
		Kind:      KindRow,
		SourceID:  sourceID,
		Fields:    fields,
		Timestamp: time.Now(),
	}
}

// NewError creates an error record for the given unit.
func NewError(sourceID, referenceName, message, failureClass string) *TaggedRecord {
	return &TaggedRecord{
		Kind:          KindError,
		SourceID:      sourceID,
		Message:       message,
		FailureClass:  failureClass,
		ReferenceName: referenceName,
		Timestamp:     time.Now(),
	}
}

// IsRow reports whether the record is a row.
func (r *TaggedRecord) IsRow() bool {
	return r.Kind == KindRow
}

// IsError reports whether the record is a captured failure.
func (r *TaggedRecord) IsError() bool {
	return r.Kind == KindError
}

// Get returns a field value of a row record.
func (r *TaggedRecord) Get(field string) (interface{}, bool) {
	if r.Fields == nil {
		return nil, false
	}
	v, ok := r.Fields[field]
	return v, ok
}
