package warehouse

import "dwload/internal/frame"

// Batches are the five named input record sets the job consumes. The CSV
// reader produces them; Validate is the precondition gate the pipeline runs
// before touching the database.
type Batches struct {
	Customer *frame.Frame
	Product  *frame.Frame
	Payment  *frame.Frame
	Orders   *frame.Frame
	Date     *frame.Frame
}

// Validate returns a MissingDataError for the first absent batch, in the
// order the pipeline consumes them.
func (b *Batches) Validate() error {
	if b == nil {
		return &MissingDataError{Batch: "customer"}
	}
	checks := []struct {
		name  string
		frame *frame.Frame
	}{
		{"customer", b.Customer},
		{"product", b.Product},
		{"payment", b.Payment},
		{"orders", b.Orders},
		{"date", b.Date},
	}
	for _, c := range checks {
		if c.frame == nil {
			return &MissingDataError{Batch: c.name}
		}
	}
	return nil
}
