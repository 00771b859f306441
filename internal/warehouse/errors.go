package warehouse

import (
	"fmt"
	"strings"
)

// MissingDataError reports an absent input batch or CSV file. The job treats
// this as a fatal precondition: nothing is truncated or inserted.
type MissingDataError struct {
	Batch string
	Path  string
}

func (e *MissingDataError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("missing input batch %q (file %s)", e.Batch, e.Path)
	}
	return fmt.Sprintf("missing input batch %q", e.Batch)
}

// SchemaError reports columns that were expected but absent, either in an
// input batch at the CSV boundary or in the assembled fact set. All missing
// columns are reported at once.
type SchemaError struct {
	Subject string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: %s: missing columns: %s", e.Subject, strings.Join(e.Missing, ", "))
}
