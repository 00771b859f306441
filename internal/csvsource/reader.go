// Package csvsource reads the job's five named CSV batches from a data
// directory into frames. Each batch is validated for its required columns at
// this boundary so schema problems surface before any database work starts.
package csvsource

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"dwload/internal/frame"
	"dwload/internal/warehouse"
)

// Options controls where and how the CSV files are read.
type Options struct {
	// DataDir is the directory holding the five CSV files.
	DataDir string

	// Encoding selects the byte encoding of the files: "" or "utf-8",
	// "latin-1" (ISO 8859-1), or "windows-1252". Some upstream exports are
	// not UTF-8.
	Encoding string
}

// batchFiles maps batch name to the expected file name in DataDir.
var batchFiles = map[string]string{
	"customer": "dim_customer.csv",
	"product":  "dim_products.csv",
	"payment":  "dim_payment.csv",
	"orders":   "fact_orders.csv",
	"date":     "dim_date.csv",
}

// requiredColumns lists the columns each batch must carry. Dimension batches
// need at least their natural key; the orders batch needs everything the fact
// assembly selects or joins on.
var requiredColumns = map[string][]string{
	"customer": {"customer_id"},
	"product":  {"product_id"},
	"payment":  {"payment_method"},
	"date":     {"date_key"},
	"orders": {
		"order_id", "customer_id", "product_id", "payment_method",
		"date_key", "quantity", "price", "discount", "total_amount",
	},
}

// Load reads all five batches. A missing file is a MissingDataError; a batch
// missing required columns is a SchemaError. No partial result is returned.
func Load(opts Options) (*warehouse.Batches, error) {
	dec, err := decoderFor(opts.Encoding)
	if err != nil {
		return nil, err
	}

	read := func(batch string) (*frame.Frame, error) {
		return readFrame(opts.DataDir, batch, dec)
	}

	b := &warehouse.Batches{}
	if b.Customer, err = read("customer"); err != nil {
		return nil, err
	}
	if b.Product, err = read("product"); err != nil {
		return nil, err
	}
	if b.Payment, err = read("payment"); err != nil {
		return nil, err
	}
	if b.Orders, err = read("orders"); err != nil {
		return nil, err
	}
	if b.Date, err = read("date"); err != nil {
		return nil, err
	}
	return b, nil
}

func decoderFor(name string) (*charmap.Charmap, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "latin-1", "latin1", "iso-8859-1":
		return charmap.ISO8859_1, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	default:
		return nil, fmt.Errorf("csvsource: unsupported encoding %q", name)
	}
}

func readFrame(dir, batch string, dec *charmap.Charmap) (*frame.Frame, error) {
	path := filepath.Join(dir, batchFiles[batch])

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &warehouse.MissingDataError{Batch: batch, Path: path}
		}
		return nil, fmt.Errorf("csvsource: open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if dec != nil {
		r = transform.NewReader(f, dec.NewDecoder())
	}

	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &warehouse.SchemaError{
			Subject: batchFiles[batch],
			Missing: requiredColumns[batch],
		}
	}
	if err != nil {
		return nil, fmt.Errorf("csvsource: read header %s: %w", path, err)
	}

	columns := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		columns[i] = h
	}

	out := frame.New(columns...)

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvsource: %s line %d: %w", path, line, err)
		}
		row := make([]any, len(columns))
		for i := range columns {
			row[i] = inferValue(rec[i])
		}
		if err := out.Append(row); err != nil {
			return nil, fmt.Errorf("csvsource: %s line %d: %w", path, line, err)
		}
	}

	if missing := out.Missing(requiredColumns[batch]); len(missing) > 0 {
		return nil, &warehouse.SchemaError{Subject: batchFiles[batch], Missing: missing}
	}
	return out, nil
}

// inferValue converts a CSV cell into the narrowest useful Go value: nil for
// empty cells, int64 or float64 for numerics, otherwise the trimmed string.
// The database drivers bind these directly, so "3" must arrive as an integer
// when the target column is one.
func inferValue(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
