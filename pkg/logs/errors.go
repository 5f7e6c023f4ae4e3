package logs

import "fmt"

// IngestError reports a store write failure. Ingest is at-least-once: the
// producer decides whether to retry. The store itself never terminates on
// a write failure.
type IngestError struct {
	Source string
	Err    error
}

func (e *IngestError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("ingest failed for source %q: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("ingest failed: %v", e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// SearchExecutionError reports a store read failure during search
// execution. Alarm evaluation treats it as skip-this-cycle.
type SearchExecutionError struct {
	Query string
	Err   error
}

func (e *SearchExecutionError) Error() string {
	return fmt.Sprintf("search execution failed for %q: %v", e.Query, e.Err)
}

func (e *SearchExecutionError) Unwrap() error { return e.Err }
