// Package googlesheets appends submitted QC counts to a spreadsheet so the
// office can follow shortfalls without database access.
package googlesheets

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"qcwarehouse/pkg/models"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const DefaultRange = "Submissions!A1"

type valueAppender interface {
	Append(ctx context.Context, spreadsheetID, writeRange string, rows [][]interface{}) error
}

type sheetsAppender struct {
	service *sheets.Service
}

func (a *sheetsAppender) Append(ctx context.Context, spreadsheetID, writeRange string, rows [][]interface{}) error {
	_, err := a.service.Spreadsheets.Values.
		Append(spreadsheetID, writeRange, &sheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

// Exporter writes one row per submission line.
type Exporter struct {
	appender      valueAppender
	spreadsheetID string
	writeRange    string
}

// NewExporter authenticates with a service account key.
func NewExporter(ctx context.Context, credentialsJSON []byte, spreadsheetID, writeRange string) (*Exporter, error) {
	credentials, err := google.CredentialsFromJSON(ctx, credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to load google credentials: %w", err)
	}

	client := oauth2.NewClient(ctx, credentials.TokenSource)
	service, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create google sheets client: %w", err)
	}

	return newExporterWith(&sheetsAppender{service: service}, spreadsheetID, writeRange), nil
}

func newExporterWith(appender valueAppender, spreadsheetID, writeRange string) *Exporter {
	if writeRange == "" {
		writeRange = DefaultRange
	}
	return &Exporter{
		appender:      appender,
		spreadsheetID: spreadsheetID,
		writeRange:    writeRange,
	}
}

func (e *Exporter) PublishSubmission(ctx context.Context, payload models.SubmissionPayload) error {
	if len(payload.Items) == 0 {
		return nil
	}
	if err := e.appender.Append(ctx, e.spreadsheetID, e.writeRange, Rows(payload)); err != nil {
		return fmt.Errorf("unable to append qc %d to spreadsheet: %w", payload.QCID, err)
	}
	return nil
}

func (e *Exporter) Close() error { return nil }

// Rows renders the payload as spreadsheet rows: submitted at, qc reference,
// part number, regular, replacement, delayed, market, submitted by.
func Rows(payload models.SubmissionPayload) [][]interface{} {
	submittedBy := ""
	if payload.SubmittedBy != nil {
		submittedBy = strconv.Itoa(*payload.SubmittedBy)
	}
	submittedAt := payload.SubmittedAt.UTC().Format(time.RFC3339)

	rows := make([][]interface{}, 0, len(payload.Items))
	for _, item := range payload.Items {
		rows = append(rows, []interface{}{
			submittedAt,
			payload.Reference,
			item.PartNumber,
			item.RegularQuantity,
			item.ReplacementQuantity,
			item.DelayedQuantity,
			item.MarketQuantity,
			submittedBy,
		})
	}
	return rows
}
