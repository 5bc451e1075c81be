package importer

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	dErrors "shelterops/pkg/domain-errors"
)

// MaxRows bounds a single workbook import.
const MaxRows = 5000

const (
	colReference = "reception centre ref"
	colLastName  = "last name"
	colMiddle    = "middle name"
	colFirstName = "first name"
	colSex       = "sex"
	colBirth     = "date of birth"
	colCheckIn   = "check-in date"
)

var dateLayouts = []string{
	"02/01/2006 15:04",
	"02/01/2006",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseWorkbook reads registration rows from the first sheet of an xlsx
// document. Headers are matched case-insensitively in any order; dates may be
// dd/mm/yyyy, ISO yyyy-mm-dd or Excel serial numbers.
func ParseWorkbook(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "file is not a readable xlsx workbook")
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	records, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "failed to read sheet "+sheet)
	}
	if len(records) < 2 {
		return nil, dErrors.New(dErrors.CodeValidation, "workbook has no data rows below the header")
	}

	cols := headerIndex(records[0])
	if cols[colLastName] < 0 && cols[colFirstName] < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "workbook header needs a Last Name or First Name column")
	}

	var rows []Row
	for i := 1; i < len(records); i++ {
		rec := records[i]
		cell := func(name string) string {
			idx := cols[name]
			if idx < 0 || idx >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[idx])
		}
		row := Row{
			Line:       i + 1,
			Reference:  cell(colReference),
			LastName:   cell(colLastName),
			MiddleName: cell(colMiddle),
			FirstName:  cell(colFirstName),
			Sex:        cell(colSex),
		}
		birth, checkIn := cell(colBirth), cell(colCheckIn)
		if row.Reference == "" && row.LastName == "" && row.FirstName == "" && birth == "" && checkIn == "" {
			continue
		}
		if row.DateOfBirth, err = parseDate(birth); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("row %d: invalid date of birth %q", row.Line, birth))
		}
		if row.CheckIn, err = parseDate(checkIn); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("row %d: invalid check-in date %q", row.Line, checkIn))
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "workbook has no data rows below the header")
	}
	if len(rows) > MaxRows {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("workbook has more than %d rows", MaxRows))
	}
	return rows, nil
}

func headerIndex(header []string) map[string]int {
	idx := map[string]int{
		colReference: -1,
		colLastName:  -1,
		colMiddle:    -1,
		colFirstName: -1,
		colSex:       -1,
		colBirth:     -1,
		colCheckIn:   -1,
	}
	for i, h := range header {
		key := strings.Join(strings.Fields(strings.ToLower(h)), " ")
		if key == "check in date" {
			key = colCheckIn
		}
		if _, ok := idx[key]; ok && idx[key] < 0 {
			idx[key] = i
		}
	}
	return idx
}

// parseDate returns nil for an empty value. Numeric values are Excel serial
// dates.
func parseDate(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if serial, err := strconv.ParseFloat(v, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return nil, err
		}
		t = t.UTC().Round(time.Second)
		return &t, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised date %q", v)
}
