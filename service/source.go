package service

import (
	"context"
	"strings"

	"github.com/Growity-ai-lab/joseph-mews-dashboard/model"
)

// RowSource fetches every record of one worksheet. Implementations fail
// with ErrConnection when the spreadsheet cannot be reached and ErrNotFound
// when the worksheet does not exist. They never modify the spreadsheet.
type RowSource interface {
	FetchRows(ctx context.Context, spreadsheet, worksheet string) ([]model.Row, error)
}

// Forgetter is implemented by sources that keep their own cache
type Forgetter interface {
	Forget(ctx context.Context, spreadsheet, worksheet string) error
}

// rowsFromGrid uses the first row as headers and turns every following row
// into a record. Short rows are padded with blanks and columns without a
// header are dropped.
func rowsFromGrid(grid [][]string) []model.Row {
	if len(grid) == 0 {
		return []model.Row{}
	}

	headers := make([]string, len(grid[0]))
	for i, h := range grid[0] {
		headers[i] = strings.TrimSpace(h)
	}

	rows := make([]model.Row, 0, len(grid)-1)
	for _, line := range grid[1:] {
		row := make(model.Row, len(headers))
		for i, h := range headers {
			if h == "" {
				continue
			}
			if _, dup := row[h]; dup {
				continue
			}
			if i < len(line) {
				row[h] = line[i]
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows
}
