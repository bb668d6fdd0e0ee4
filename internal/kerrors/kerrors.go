// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package kerrors defines the error kinds visible to the scheduling core:
// soft errors that the loop logs and skips past, and invariant violations
// that abort the cycle.
package kerrors

import "fmt"

// Code identifies the reason a job could not be scheduled, or why the cycle
// had to abort.
type Code string

const (
	CodeUnsatisfiable         Code = "UNSATISFIABLE_REQUEST"
	CodeNoSlotInHorizon       Code = "NO_SLOT_IN_HORIZON"
	CodeQuotaRejected         Code = "QUOTA_REJECTED_BEYOND_HORIZON"
	CodeDependencyUnresolved  Code = "DEPENDENCY_UNRESOLVED"
	CodeIncompatibleJobTypes  Code = "INCOMPATIBLE_JOB_TYPES"
	CodeInvariantViolation    Code = "INVARIANT_VIOLATION"
)

// SchedulingError is the common shape of every error the core produces.
// Soft errors (everything but CodeInvariantViolation) never propagate past
// the scheduling loop; they are recorded on the job and logged.
type SchedulingError struct {
	Code  Code
	JobID string
	Msg   string
}

func (e *SchedulingError) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("%s: job %s: %s", e.Code, e.JobID, e.Msg)
}

// Soft reports whether the loop should log this error and continue with the
// next job, as opposed to aborting the whole cycle.
func (e *SchedulingError) Soft() bool {
	return e.Code != CodeInvariantViolation
}

func NewUnsatisfiable(jobID, msg string) *SchedulingError {
	return &SchedulingError{Code: CodeUnsatisfiable, JobID: jobID, Msg: msg}
}

func NewNoSlotInHorizon(jobID string) *SchedulingError {
	return &SchedulingError{Code: CodeNoSlotInHorizon, JobID: jobID, Msg: "no candidate slot within the scheduling horizon"}
}

func NewQuotaRejected(jobID string) *SchedulingError {
	return &SchedulingError{Code: CodeQuotaRejected, JobID: jobID, Msg: "quota admission never succeeds within the scheduling horizon"}
}

func NewDependencyUnresolved(jobID, dependsOn string) *SchedulingError {
	return &SchedulingError{Code: CodeDependencyUnresolved, JobID: jobID, Msg: fmt.Sprintf("depends on unresolved job %s", dependsOn)}
}

func NewIncompatibleJobTypes(jobID, msg string) *SchedulingError {
	return &SchedulingError{Code: CodeIncompatibleJobTypes, JobID: jobID, Msg: msg}
}

// NewInvariantViolation builds a fatal error: a broken core invariant such
// as a non-canonical ProcSet or a negative counter. The caller must abort
// the cycle.
func NewInvariantViolation(msg string) *SchedulingError {
	return &SchedulingError{Code: CodeInvariantViolation, Msg: msg}
}

// AsScheduling extracts a *SchedulingError from err, if any.
func AsScheduling(err error) (*SchedulingError, bool) {
	se, ok := err.(*SchedulingError)
	return se, ok
}
