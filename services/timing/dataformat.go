package timing

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/xuri/excelize/v2"
)

// ExportFormat is the file format of an exported report.
type ExportFormat string

const (
	FormatXLSX    ExportFormat = "xlsx"
	FormatCSV     ExportFormat = "csv"
	FormatJSON    ExportFormat = "json"
	FormatJSONL   ExportFormat = "jsonl"
	FormatParquet ExportFormat = "parquet"
)

// ExportFormats lists the supported formats.
func ExportFormats() []ExportFormat {
	return []ExportFormat{FormatXLSX, FormatCSV, FormatJSON, FormatJSONL, FormatParquet}
}

// ParseExportFormat parses a format name such as "xlsx" or "csv".
func ParseExportFormat(s string) (ExportFormat, error) {
	f := ExportFormat(strings.ToLower(strings.TrimPrefix(s, ".")))
	for _, known := range ExportFormats() {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// FormatFromPath infers the export format from the destination's extension.
func FormatFromPath(path string) (ExportFormat, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return "", fmt.Errorf("%w: %q has no extension", ErrUnsupportedFormat, path)
	}
	return ParseExportFormat(ext)
}

// TableWriter encodes a report table.
type TableWriter interface {
	Write(w io.Writer, t Table) error
}

// NewTableWriter creates a writer for the given format.
func NewTableWriter(format ExportFormat) (TableWriter, error) {
	switch format {
	case FormatXLSX:
		return &XLSXWriter{}, nil
	case FormatCSV:
		return &CSVWriter{}, nil
	case FormatJSON:
		return &JSONWriter{}, nil
	case FormatJSONL:
		return &JSONLWriter{}, nil
	case FormatParquet:
		return &ParquetWriter{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// Export encodes t in the format implied by dest and writes it there.
// dest is a local path or an s3:// URL.
func Export(ctx context.Context, t Table, dest string, opts S3Options) error {
	format, err := FormatFromPath(dest)
	if err != nil {
		return err
	}
	tw, err := NewTableWriter(format)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := tw.Write(&buf, t); err != nil {
		return err
	}

	sink, err := OpenSink(dest, opts)
	if err != nil {
		return err
	}
	return sink.Write(ctx, &buf)
}

// XLSXWriter writes a single-sheet workbook named after the table.
type XLSXWriter struct{}

// Write writes the table as an XLSX workbook.
func (x *XLSXWriter) Write(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := t.Name
	if sheet == "" {
		sheet = "Sheet1"
	}
	if sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			return fmt.Errorf("failed to name sheet: %w", err)
		}
	}

	for col, h := range t.Headers {
		if err := setCell(f, sheet, col, 0, h); err != nil {
			return err
		}
	}

	for i, row := range t.Rows {
		for col, cell := range row {
			var v any = cell
			if t.IsNumeric(col) {
				if n, err := strconv.ParseFloat(cell, 64); err == nil {
					v = n
				}
			}
			if err := setCell(f, sheet, col, i+1, v); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func setCell(f *excelize.File, sheet string, col, row int, v any) error {
	cell, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, cell, v); err != nil {
		return fmt.Errorf("failed to set %s: %w", cell, err)
	}
	return nil
}

// CSVWriter writes the table as CSV with a header row.
type CSVWriter struct{}

// Write writes the table as CSV.
func (c *CSVWriter) Write(w io.Writer, t Table) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(t.Headers); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for i, row := range t.Rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// JSONWriter writes the table as a JSON array of header-keyed objects.
type JSONWriter struct{}

// Write writes the table as a JSON array.
func (j *JSONWriter) Write(w io.Writer, t Table) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(t.Records())
}

// JSONLWriter writes one header-keyed object per line.
type JSONLWriter struct{}

// Write writes the table as JSON Lines.
func (j *JSONLWriter) Write(w io.Writer, t Table) error {
	encoder := json.NewEncoder(w)
	for i, rec := range t.Records() {
		if err := encoder.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode row %d: %w", i, err)
		}
	}
	return nil
}

// ParquetWriter writes the table as Parquet with one string column per
// header, in header order.
type ParquetWriter struct{}

// Write writes the table as Parquet.
func (p *ParquetWriter) Write(w io.Writer, t Table) error {
	rowType := parquetRowType(t.Headers)
	schema := parquet.SchemaOf(reflect.New(rowType).Elem().Interface())

	var buf bytes.Buffer
	writer := parquet.NewWriter(&buf, schema)
	for _, row := range t.Rows {
		rec := reflect.New(rowType).Elem()
		for j := range t.Headers {
			if j < len(row) {
				rec.Field(j).SetString(row[j])
			}
		}
		if err := writer.Write(rec.Interface()); err != nil {
			return fmt.Errorf("failed to write parquet row: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}

	_, err := io.Copy(w, &buf)
	return err
}

// parquetRowType builds a struct type whose fields map to the headers in
// order. A parquet.Group would sort the columns by name.
func parquetRowType(headers []string) reflect.Type {
	fields := make([]reflect.StructField, len(headers))
	for i, h := range headers {
		fields[i] = reflect.StructField{
			Name: "C" + strconv.Itoa(i),
			Type: reflect.TypeOf(""),
			Tag:  reflect.StructTag(`parquet:"` + strings.ReplaceAll(h, ",", " ") + `"`),
		}
	}
	return reflect.StructOf(fields)
}
