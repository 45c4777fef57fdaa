// Package dataset loads the vehicle inventory and answers VIN lookups.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/pep299/autoinsight/internal/config"
	"github.com/pep299/autoinsight/internal/vehicle"
)

const gcsScheme = "gs://"

// Common dataset errors
var (
	ErrNotFound      = errors.New("VIN not found in dataset")
	ErrMissingVIN    = errors.New("dataset has no VIN column")
	ErrInvalidGCSURI = errors.New("invalid gs:// path")
)

// Dataset is an immutable, VIN-indexed set of records. It is safe for
// concurrent reads.
type Dataset struct {
	records []vehicle.Record
	index   map[string]int
	columns []string
}

// Open loads the dataset named by cfg, applying its Cloud Storage
// credentials.
func Open(ctx context.Context, cfg *config.Config) (*Dataset, error) {
	return Load(ctx, cfg.DatasetPath, ClientOptions(cfg.GCSCredentialsFile)...)
}

// ClientOptions returns the Cloud Storage options for a service-account
// key file. An empty path means application default credentials.
func ClientOptions(credentialsFile string) []option.ClientOption {
	if credentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(credentialsFile)}
}

// Load reads a CSV dataset from a local path or a gs://bucket/object URI.
// opts are only used for Cloud Storage.
func Load(ctx context.Context, path string, opts ...option.ClientOption) (*Dataset, error) {
	if strings.HasPrefix(path, gcsScheme) {
		return loadGCS(ctx, path, opts...)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

func loadGCS(ctx context.Context, uri string, opts ...option.ClientOption) (*Dataset, error) {
	bucket, object, err := splitGCSPath(uri)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	defer client.Close()

	reader, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("dataset object %s: %w", uri, err)
		}
		return nil, fmt.Errorf("opening object reader: %w", err)
	}
	defer reader.Close()

	return Parse(reader)
}

func splitGCSPath(uri string) (string, string, error) {
	bucket, object, ok := strings.Cut(strings.TrimPrefix(uri, gcsScheme), "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidGCSURI, uri)
	}
	return bucket, object, nil
}

// Parse reads CSV with a header row. Numeric cells become float64, empty
// cells nil. When a VIN repeats, the first row wins.
func Parse(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrMissingVIN
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	columns := make([]string, len(header))
	vinCol := -1
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		columns[i] = name
		if name == vehicle.FieldVIN {
			vinCol = i
		}
	}
	if vinCol < 0 {
		return nil, ErrMissingVIN
	}

	ds := &Dataset{
		index:   make(map[string]int),
		columns: columns,
	}
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", line, err)
		}

		rec := make(vehicle.Record, len(columns))
		for i, name := range columns {
			var cell string
			if i < len(row) {
				cell = row[i]
			}
			if i == vinCol {
				rec[name] = strings.TrimSpace(cell)
				continue
			}
			rec[name] = parseCell(cell)
		}

		vin := rec.VIN()
		if vin == "" {
			continue
		}
		if _, dup := ds.index[vin]; dup {
			continue
		}
		ds.index[vin] = len(ds.records)
		ds.records = append(ds.records, rec)
	}

	return ds, nil
}

func parseCell(cell string) any {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	return cell
}

// Lookup finds a record by VIN, ignoring case and surrounding whitespace.
func (d *Dataset) Lookup(vin string) (vehicle.Record, error) {
	i, ok := d.index[vehicle.NormalizeVIN(vin)]
	if !ok {
		return nil, ErrNotFound
	}
	return d.records[i], nil
}

// VINs returns the normalized VINs in file order.
func (d *Dataset) VINs() []string {
	vins := make([]string, len(d.records))
	for i, rec := range d.records {
		vins[i] = rec.VIN()
	}
	return vins
}

// Columns returns the header names in file order.
func (d *Dataset) Columns() []string {
	return append([]string(nil), d.columns...)
}

// Len returns the number of distinct VINs.
func (d *Dataset) Len() int {
	return len(d.records)
}
