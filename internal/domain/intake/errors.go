package intake

import "fmt"

// The processor classifies every per-item failure into one of these types.
// All of them sink the item except StoreError, which leaves the item
// pending so a later run can retry the read.

// MalformedDocumentError marks a document that fails structural or
// date-format validation. Not retryable without a corrected document.
type MalformedDocumentError struct {
	Reason string
	Err    error
}

func (e *MalformedDocumentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed document: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed document: %s", e.Reason)
}

func (e *MalformedDocumentError) Unwrap() error { return e.Err }

func malformed(reason string, err error) error {
	return &MalformedDocumentError{Reason: reason, Err: err}
}

// IdentityConflictError marks a token uniqueness violation raised by the
// registry during save.
type IdentityConflictError struct {
	Token string
	Err   error
}

func (e *IdentityConflictError) Error() string {
	return fmt.Sprintf("identity conflict on token %q: %v", e.Token, e.Err)
}

func (e *IdentityConflictError) Unwrap() error { return e.Err }

// PopulationError marks a failure while appending sub-entities or
// relationships, including unknown type tokens.
type PopulationError struct {
	Detail string
	Err    error
}

func (e *PopulationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("population failed: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("population failed: %s", e.Detail)
}

func (e *PopulationError) Unwrap() error { return e.Err }

func populationErr(detail string, err error) error {
	return &PopulationError{Detail: detail, Err: err}
}

// ExternalServiceError marks an encounter-subsystem ingestion failure. The
// subject may already have been created or updated by the time ingestion
// fails; the captured text is the handle for manual reconciliation.
type ExternalServiceError struct {
	Err error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("encounter ingestion failed: %v", e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// StoreError marks a queue-store I/O failure such as an unreadable blob.
// Items failing this way are left pending for a future run.
type StoreError struct {
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("queue store failure: %v", e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
