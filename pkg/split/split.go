// Package split turns a job's statement list into units of work.
//
// Each UnitDescriptor is an immutable value describing one independently
// executable unit: either a SQL statement to run, or a failure that already
// happened before the unit could run (for example the job's driver could not
// be loaded). Descriptors are produced in input order with ids
// "Statement #1", "Statement #2", ... so that re-running an identical
// configuration yields identical ids.
package split

import (
	"fmt"

	"github.com/ajitpratap0/multisql/pkg/errors"
)

// IDPrefix is the prefix of every unit id.
const IDPrefix = "Statement #"

// Failure describes a unit that failed before running.
type Failure struct {
	Message      string `json:"message"`
	FailureClass string `json:"failure_class"`
}

// UnitDescriptor describes one unit of work. Exactly one of Statement and
// PreFailure is set.
type UnitDescriptor struct {
	ID            string   `json:"id"`
	ReferenceName string   `json:"reference_name,omitempty"`
	Statement     string   `json:"statement,omitempty"`
	PreFailure    *Failure `json:"pre_failure,omitempty"`
}

// IsPreFailed reports whether the unit carries a failure instead of a statement.
func (u UnitDescriptor) IsPreFailed() bool {
	return u.PreFailure != nil
}

// Validate checks that exactly one variant is active.
func (u UnitDescriptor) Validate() error {
	if u.ID == "" {
		return errors.New(errors.ErrorTypeValidation, "unit id is required")
	}
	if u.PreFailure != nil && u.Statement != "" {
		return errors.Newf(errors.ErrorTypeValidation, "unit %s has both a statement and a failure", u.ID)
	}
	if u.PreFailure == nil && u.Statement == "" {
		return errors.Newf(errors.ErrorTypeValidation, "unit %s has neither a statement nor a failure", u.ID)
	}
	return nil
}

// UnitID returns the id of the n-th (1-indexed) statement.
func UnitID(n int) string {
	return fmt.Sprintf("%s%d", IDPrefix, n)
}

// Partition produces one descriptor per statement, in input order.
// An empty statement list yields an empty, non-nil result.
func Partition(statements []string, referenceName string) []UnitDescriptor {
	units := make([]UnitDescriptor, 0, len(statements))
	for i, stmt := range statements {
		units = append(units, UnitDescriptor{
			ID:            UnitID(i + 1),
			ReferenceName: referenceName,
			Statement:     stmt,
		})
	}
	return units
}

// NewPreFailed creates a pre-failed descriptor from err. The failure class is
// the error's type.
func NewPreFailed(id, referenceName string, err error) UnitDescriptor {
	return UnitDescriptor{
		ID:            id,
		ReferenceName: referenceName,
		PreFailure: &Failure{
			Message:      err.Error(),
			FailureClass: string(errors.TypeOf(err)),
		},
	}
}

// PreFail returns a copy of units where every descriptor carries err instead
// of its statement. Ids and order are preserved.
func PreFail(units []UnitDescriptor, err error) []UnitDescriptor {
	out := make([]UnitDescriptor, 0, len(units))
	for _, u := range units {
		out = append(out, NewPreFailed(u.ID, u.ReferenceName, err))
	}
	return out
}
