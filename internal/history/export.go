package history

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/BikramMondal5/MediVerify/internal/identity"
	"github.com/BikramMondal5/MediVerify/internal/models"
	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"
)

// Export formats
const (
	FormatJSON    = "json"
	FormatYAML    = "yaml"
	FormatParquet = "parquet"
	FormatCSV     = "csv"
)

// Report is the exported form of one identity's history
type Report struct {
	Token      string       `json:"token" yaml:"token"`
	ExportedAt string       `json:"exported_at" yaml:"exported_at"`
	Summary    Summary      `json:"summary" yaml:"summary"`
	Entries    []ReportItem `json:"entries" yaml:"entries"`
}

// ReportItem is one row of an export. Images are omitted unless requested;
// data URIs are large and rarely useful in a report.
type ReportItem struct {
	Position  int    `json:"position" yaml:"position" parquet:"position"`
	Result    string `json:"result" yaml:"result" parquet:"result"`
	Authentic bool   `json:"authentic" yaml:"authentic" parquet:"authentic"`
	Timestamp string `json:"timestamp,omitempty" yaml:"timestamp,omitempty" parquet:"timestamp,optional"`
	Image     string `json:"image,omitempty" yaml:"image,omitempty" parquet:"image,optional"`
}

// NewReport builds an export from a listing.
func NewReport(token identity.Token, entries []models.HistoryEntry, includeImages bool, now time.Time) Report {
	report := Report{
		Token:      string(token),
		ExportedAt: now.UTC().Format(time.RFC3339),
		Summary:    Aggregate(entries),
		Entries:    make([]ReportItem, 0, len(entries)),
	}
	for i, e := range entries {
		item := ReportItem{
			Position:  i + 1,
			Result:    e.Result,
			Authentic: e.IsAuthentic(),
			Timestamp: e.Timestamp,
		}
		if includeImages {
			item.Image = e.Image
		}
		report.Entries = append(report.Entries, item)
	}
	return report
}

// Write encodes the report in the given format.
func (r Report) Write(w io.Writer, format string) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return nil
	case FormatYAML:
		data, err := yaml.Marshal(&r)
		if err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("failed to write YAML: %w", err)
		}
		return nil
	case FormatParquet:
		writer := parquet.NewGenericWriter[ReportItem](w)
		if _, err := writer.Write(r.Entries); err != nil {
			return fmt.Errorf("failed to write parquet rows: %w", err)
		}
		if err := writer.Close(); err != nil {
			return fmt.Errorf("failed to close parquet writer: %w", err)
		}
		return nil
	case FormatCSV:
		return r.writeCSV(w)
	default:
		return fmt.Errorf("unsupported export format: %s (supported: json, yaml, parquet, csv)", format)
	}
}

func (r Report) writeCSV(w io.Writer) error {
	writer := csv.NewWriter(w)

	header := []string{"Position", "Result", "Authentic", "Timestamp"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, item := range r.Entries {
		row := []string{
			strconv.Itoa(item.Position),
			item.Result,
			strconv.FormatBool(item.Authentic),
			item.Timestamp,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
