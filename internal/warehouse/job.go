// Package warehouse implements the load pipeline: truncate the star schema,
// append the dimension batches, re-fetch the database-generated surrogate
// keys, join them onto the fact batch, and append the fact table.
package warehouse

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dwload/internal/frame"
	"dwload/internal/metrics"
	"dwload/internal/storage"
)

// Target tables.
const (
	TableCustomer = "dim_customer"
	TableProduct  = "dim_product"
	TablePayment  = "dim_payment"
	TableDate     = "dim_date"
	TableFact     = "fact_orders"
)

// ResetTables is the set of tables emptied at the start of every run, in the
// order the job has always issued them. Order is not load-bearing: the
// truncate cascades, so dependents are cleared regardless.
var ResetTables = []string{TableCustomer, TableProduct, TablePayment, TableFact, TableDate}

// FactColumns is the fixed output column set of the assembled fact table, in
// insert order.
var FactColumns = []string{
	"order_id",
	"customer_key",
	"product_key",
	"payment_key",
	"date_key",
	"quantity",
	"price",
	"discount",
	"total_amount",
}

// KeyMappings holds the surrogate-key mapping fetched for each dimension
// after the dimension load committed. Each frame has two columns: the
// surrogate key and the natural key/attribute it joins on. Read-only once
// produced.
type KeyMappings struct {
	Customer *frame.Frame // customer_key, customer_id
	Product  *frame.Frame // product_key, product_id
	Payment  *frame.Frame // payment_key, payment_method
}

// Job runs the pipeline against a repository. Zero-value Log and Metrics are
// fine; they default to discarding.
type Job struct {
	Repo    storage.Repository
	Log     *slog.Logger
	Metrics metrics.Backend

	ran bool
}

func (j *Job) logger() *slog.Logger {
	if j.Log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return j.Log
}

func (j *Job) metrics() metrics.Backend {
	if j.Metrics == nil {
		return metrics.Nop{}
	}
	return j.Metrics
}

// Run executes the whole pipeline:
//
//	reset -> load_dimensions -> resolve_keys -> assemble_fact -> load_fact
//
// Each stage assumes the previous one completed and committed; any stage
// failure aborts the run with the stage's error unchanged. A Job runs once;
// the dimension loads are plain appends against just-truncated tables, so a
// second Run on the same Job is refused.
func (j *Job) Run(ctx context.Context, b *Batches) error {
	if j.Repo == nil {
		return fmt.Errorf("warehouse: Repo is required")
	}
	if j.ran {
		return fmt.Errorf("warehouse: job already ran; create a new Job per invocation")
	}
	j.ran = true

	if err := b.Validate(); err != nil {
		return err
	}

	var (
		km   *KeyMappings
		fact *frame.Frame
	)

	if err := j.stage("reset", func() error {
		return j.Reset(ctx)
	}); err != nil {
		return err
	}

	if err := j.stage("load_dimensions", func() error {
		return j.LoadDimensions(ctx, b)
	}); err != nil {
		return err
	}

	if err := j.stage("resolve_keys", func() (err error) {
		km, err = j.ResolveKeys(ctx)
		return err
	}); err != nil {
		return err
	}

	if err := j.stage("assemble_fact", func() (err error) {
		fact, err = j.AssembleFact(b.Orders, km)
		return err
	}); err != nil {
		return err
	}

	if err := j.stage("load_fact", func() error {
		_, err := j.LoadFact(ctx, fact)
		return err
	}); err != nil {
		return err
	}

	return nil
}

// stage wraps one pipeline step with progress logging and metrics.
func (j *Job) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	dur := time.Since(start).Truncate(time.Millisecond)

	status := "ok"
	if err != nil {
		status = "error"
	}
	labels := metrics.Labels{"stage": name, "status": status}
	j.metrics().IncCounter("dwload_stage_total", 1, labels)
	j.metrics().ObserveHistogram("dwload_stage_duration_seconds", time.Since(start).Seconds(), labels)

	if err != nil {
		j.logger().Error("stage failed", "stage", name, "duration", dur, "error", err)
		return err
	}
	j.logger().Info("stage complete", "stage", name, "duration", dur)
	return nil
}

// Reset truncates all target tables and restarts their identity sequences as
// one atomic unit.
func (j *Job) Reset(ctx context.Context) error {
	return j.Repo.TruncateTables(ctx, ResetTables)
}

// LoadDimensions appends each dimension batch to its table, preserving input
// row order. The database assigns surrogate keys as it goes; the pipeline
// never generates them and re-fetches them in the next stage.
func (j *Job) LoadDimensions(ctx context.Context, b *Batches) error {
	loads := []struct {
		batch string
		table string
		frame *frame.Frame
	}{
		{"customer", TableCustomer, b.Customer},
		{"product", TableProduct, b.Product},
		{"payment", TablePayment, b.Payment},
		{"date", TableDate, b.Date},
	}

	for _, l := range loads {
		if l.frame == nil {
			return &MissingDataError{Batch: l.batch}
		}
		n, err := j.Repo.AppendRows(ctx, l.table, l.frame)
		if err != nil {
			return err
		}
		j.logger().Info("dimension loaded", "table", l.table, "rows", n)
		j.metrics().IncCounter("dwload_rows_total", float64(n), metrics.Labels{"table": l.table})
	}
	return nil
}

// ResolveKeys fetches the mapping from natural key to database-generated
// surrogate key for each dimension. This is the synchronization point that
// turns "rows we just inserted" into "keys we can reference"; it assumes
// LoadDimensions has completed and committed.
func (j *Job) ResolveKeys(ctx context.Context) (*KeyMappings, error) {
	queries := []struct {
		table       string
		keyColumn   string
		matchColumn string
		dest        func(*KeyMappings, *frame.Frame)
	}{
		{TableCustomer, "customer_key", "customer_id", func(m *KeyMappings, f *frame.Frame) { m.Customer = f }},
		{TableProduct, "product_key", "product_id", func(m *KeyMappings, f *frame.Frame) { m.Product = f }},
		{TablePayment, "payment_key", "payment_method", func(m *KeyMappings, f *frame.Frame) { m.Payment = f }},
	}

	km := &KeyMappings{}
	for _, q := range queries {
		f, err := j.Repo.SelectKeyValue(ctx, q.table, q.keyColumn, q.matchColumn)
		if err != nil {
			return nil, err
		}
		j.logger().Info("surrogate keys resolved", "table", q.table, "rows", f.Len())
		q.dest(km, f)
	}
	return km, nil
}

// AssembleFact left-joins the surrogate-key mappings onto the raw orders
// batch (customer, then product, then payment) and selects the fixed output
// columns. Left-outer semantics are deliberate: rows with no dimension match
// keep a null surrogate key instead of being dropped, so referential gaps
// stay observable downstream. Unmatched counts are logged and metered per
// dimension but are not an error here; a SchemaError is returned only when
// an expected output column is missing entirely.
func (j *Job) AssembleFact(orders *frame.Frame, km *KeyMappings) (*frame.Frame, error) {
	if orders == nil {
		return nil, &MissingDataError{Batch: "orders"}
	}
	if km == nil || km.Customer == nil || km.Product == nil || km.Payment == nil {
		return nil, fmt.Errorf("warehouse: assemble fact: key mappings are incomplete")
	}

	merged, err := frame.LeftJoin(orders, km.Customer, "customer_id")
	if err != nil {
		return nil, fmt.Errorf("warehouse: join customer keys: %w", err)
	}
	merged, err = frame.LeftJoin(merged, km.Product, "product_id")
	if err != nil {
		return nil, fmt.Errorf("warehouse: join product keys: %w", err)
	}
	merged, err = frame.LeftJoin(merged, km.Payment, "payment_method")
	if err != nil {
		return nil, fmt.Errorf("warehouse: join payment keys: %w", err)
	}

	if missing := merged.Missing(FactColumns); len(missing) > 0 {
		return nil, &SchemaError{Subject: TableFact, Missing: missing}
	}

	for _, d := range []struct {
		dimension string
		column    string
	}{
		{"customer", "customer_key"},
		{"product", "product_key"},
		{"payment", "payment_key"},
	} {
		n, err := merged.NullCount(d.column)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			j.logger().Warn("fact rows with no dimension match keep null surrogate keys",
				"dimension", d.dimension, "unmatched", n)
			j.metrics().IncCounter("dwload_unmatched_keys_total", float64(n),
				metrics.Labels{"dimension": d.dimension})
		}
	}

	return merged.Select(FactColumns...)
}

// LoadFact appends the assembled fact records to the fact table, preserving
// row order.
func (j *Job) LoadFact(ctx context.Context, fact *frame.Frame) (int64, error) {
	n, err := j.Repo.AppendRows(ctx, TableFact, fact)
	if err != nil {
		return n, err
	}
	j.logger().Info("fact table loaded", "table", TableFact, "rows", n)
	j.metrics().IncCounter("dwload_rows_total", float64(n), metrics.Labels{"table": TableFact})
	return n, nil
}
