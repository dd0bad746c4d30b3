package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Growity-ai-lab/joseph-mews-dashboard/config"
	"github.com/Growity-ai-lab/joseph-mews-dashboard/model"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsSource reads worksheets through the Google Sheets API v4
type SheetsSource struct {
	svc *sheets.Service
}

// NewSheetsSource authenticates with the configured service account.
// The credentials file wins over an inline bundle.
func NewSheetsSource(ctx context.Context, cfg *config.GoogleConfig) (*SheetsSource, error) {
	opts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsReadonlyScope)}

	switch {
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	case cfg.ServiceAccount != nil:
		data, err := cfg.ServiceAccount.JSON()
		if err != nil {
			return nil, fmt.Errorf("failed to encode service account: %w", err)
		}
		opts = append(opts, option.WithCredentialsJSON(data))
	default:
		return nil, fmt.Errorf("%w: no Google service account configured", ErrConnection)
	}

	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	return NewSheetsSourceWithOptions(ctx, opts...)
}

// NewSheetsSourceWithOptions builds a source from raw client options
func NewSheetsSourceWithOptions(ctx context.Context, opts ...option.ClientOption) (*SheetsSource, error) {
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, connectionError("create sheets client", err)
	}
	return &SheetsSource{svc: svc}, nil
}

// FetchRows looks the worksheet up by title, then reads all of its values.
// The first row is the header row.
func (s *SheetsSource) FetchRows(ctx context.Context, spreadsheet, worksheet string) ([]model.Row, error) {
	id, err := ParseSpreadsheetID(spreadsheet)
	if err != nil {
		return nil, err
	}

	meta, err := s.svc.Spreadsheets.Get(id).
		Fields("sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return nil, apiError("open spreadsheet "+id, err)
	}

	found := false
	for _, sh := range meta.Sheets {
		if sh.Properties != nil && sh.Properties.Title == worksheet {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: worksheet %q in spreadsheet %s", ErrNotFound, worksheet, id)
	}

	resp, err := s.svc.Spreadsheets.Values.Get(id, quoteSheetName(worksheet)).
		MajorDimension("ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return nil, apiError("read worksheet "+worksheet, err)
	}

	grid := make([][]string, len(resp.Values))
	for i, line := range resp.Values {
		cells := make([]string, len(line))
		for j, v := range line {
			if v != nil {
				cells[j] = fmt.Sprint(v)
			}
		}
		grid[i] = cells
	}
	return rowsFromGrid(grid), nil
}

// ParseSpreadsheetID accepts a full spreadsheet URL or a bare ID
func ParseSpreadsheetID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", invalidArgument("spreadsheet URL or ID is required")
	}

	const marker = "/spreadsheets/d/"
	if i := strings.Index(s, marker); i >= 0 {
		id := s[i+len(marker):]
		if j := strings.IndexAny(id, "/?#"); j >= 0 {
			id = id[:j]
		}
		if id == "" {
			return "", invalidArgument("no spreadsheet ID in %q", s)
		}
		return id, nil
	}

	if strings.ContainsAny(s, "/?# ") {
		return "", invalidArgument("not a spreadsheet URL or ID: %q", s)
	}
	return s, nil
}

// SpreadsheetKey maps a spreadsheet URL or ID to the bare ID, so both
// forms share one snapshot and cache entry. Unparseable input is returned
// trimmed and fails later in FetchRows.
func SpreadsheetKey(ref string) string {
	if id, err := ParseSpreadsheetID(ref); err == nil {
		return id
	}
	return strings.TrimSpace(ref)
}

// quoteSheetName makes a title usable as an A1 range
func quoteSheetName(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func apiError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return fmt.Errorf("%w: %s: %d %s", ErrConnection, op, gerr.Code, gerr.Message)
	}
	return connectionError(op, err)
}
