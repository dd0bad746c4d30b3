package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/Growity-ai-lab/joseph-mews-dashboard/model"
	"github.com/xuri/excelize/v2"
)

// WorkbookOpener resolves a spreadsheet reference to an .xlsx stream
type WorkbookOpener interface {
	OpenWorkbook(ctx context.Context, ref string) (io.ReadCloser, error)
}

// FileOpener opens workbooks from the local filesystem
type FileOpener struct{}

func (FileOpener) OpenWorkbook(_ context.Context, ref string) (io.ReadCloser, error) {
	f, err := os.Open(ref)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: workbook %s does not exist", ErrConnection, ref)
		}
		return nil, connectionError("open workbook", err)
	}
	return f, nil
}

// WorkbookSource reads worksheets from exported .xlsx workbooks
type WorkbookSource struct {
	opener WorkbookOpener
}

func NewWorkbookSource(opener WorkbookOpener) *WorkbookSource {
	return &WorkbookSource{opener: opener}
}

// FetchRows reads the worksheet with raw cell values, so date cells come
// back as serial numbers rather than in the workbook's display format.
func (s *WorkbookSource) FetchRows(ctx context.Context, spreadsheet, worksheet string) ([]model.Row, error) {
	if spreadsheet == "" {
		return nil, invalidArgument("workbook reference is required")
	}

	rc, err := s.opener.OpenWorkbook(ctx, spreadsheet)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	f, err := excelize.OpenReader(rc)
	if err != nil {
		return nil, connectionError("read workbook "+spreadsheet, err)
	}
	defer f.Close()

	idx, err := f.GetSheetIndex(worksheet)
	if err != nil || idx < 0 {
		return nil, fmt.Errorf("%w: worksheet %q in workbook %s", ErrNotFound, worksheet, spreadsheet)
	}

	grid, err := f.GetRows(worksheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, connectionError("read worksheet "+worksheet, err)
	}
	return rowsFromGrid(grid), nil
}
