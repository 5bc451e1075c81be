package retention

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

// Workbook contract shared with the import parser and downstream reporting.
const (
	SheetClients = "Clients"
	SheetStaff   = "Staff"
	SheetLog     = "Log"

	WorkbookContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	headerFill = "#CCCCFF"
	stripeFill = "#EEEEF8"
	dateFormat = "dd/mm/yyyy"
	timeFormat = "dd/mm/yyyy hh:mm"
)

var (
	ClientHeaders = []string{"Reception Centre Ref", "Last Name", "Middle Name", "First Name", "Sex", "Date of Birth"}
	StaffHeaders  = []string{"Organisation", "Last Name", "First Name"}
	LogHeaders    = []string{"Date", "User", "Event", "Comments", "Person", "Status"}
)

type ClientRow struct {
	Ref         string
	LastName    string
	MiddleName  string
	FirstName   string
	Sex         string
	DateOfBirth *time.Time
}

type StaffRow struct {
	Organisation string
	LastName     string
	FirstName    string
}

type LogRow struct {
	At      time.Time
	User    string
	Event   string
	Comment string
	Person  string
	Status  string
}

type cellKind int

const (
	cellText cellKind = iota
	cellDate
	cellDateTime
)

type sheetSpec struct {
	name    string
	headers []string
	kinds   []cellKind
	widths  []float64
	rows    [][]any
}

// styleSet indexes body styles by [stripe][cellKind].
type styleSet struct {
	header int
	body   [2][3]int
}

// BuildWorkbook renders the three export sheets as an xlsx document.
func BuildWorkbook(clients []ClientRow, staff []StaffRow, log []LogRow) ([]byte, error) {
	clientSheet := sheetSpec{
		name:    SheetClients,
		headers: ClientHeaders,
		kinds:   []cellKind{cellText, cellText, cellText, cellText, cellText, cellDate},
		widths:  []float64{22, 20, 20, 20, 10, 15},
	}
	for _, c := range clients {
		var dob any
		if c.DateOfBirth != nil {
			dob = *c.DateOfBirth
		}
		clientSheet.rows = append(clientSheet.rows, []any{c.Ref, c.LastName, c.MiddleName, c.FirstName, c.Sex, dob})
	}

	staffSheet := sheetSpec{
		name:    SheetStaff,
		headers: StaffHeaders,
		kinds:   []cellKind{cellText, cellText, cellText},
		widths:  []float64{28, 20, 20},
	}
	for _, s := range staff {
		staffSheet.rows = append(staffSheet.rows, []any{s.Organisation, s.LastName, s.FirstName})
	}

	logSheet := sheetSpec{
		name:    SheetLog,
		headers: LogHeaders,
		kinds:   []cellKind{cellDateTime, cellText, cellText, cellText, cellText, cellText},
		widths:  []float64{18, 20, 16, 40, 24, 18},
	}
	for _, l := range log {
		logSheet.rows = append(logSheet.rows, []any{l.At, l.User, l.Event, l.Comment, l.Person, l.Status})
	}

	return writeWorkbook([]sheetSpec{clientSheet, staffSheet, logSheet})
}

func writeWorkbook(sheets []sheetSpec) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	styles, err := newStyleSet(f)
	if err != nil {
		return nil, err
	}
	for i, spec := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), spec.name); err != nil {
				return nil, fmt.Errorf("rename sheet %s: %w", spec.name, err)
			}
		} else if _, err := f.NewSheet(spec.name); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", spec.name, err)
		}
		if err := writeSheet(f, spec, styles); err != nil {
			return nil, err
		}
	}
	f.SetActiveSheet(0)

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, spec sheetSpec, styles styleSet) error {
	for col, header := range spec.headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(spec.name, cell, header); err != nil {
			return fmt.Errorf("set header %s!%s: %w", spec.name, cell, err)
		}
		if err := f.SetCellStyle(spec.name, cell, cell, styles.header); err != nil {
			return fmt.Errorf("style header %s!%s: %w", spec.name, cell, err)
		}
		if col < len(spec.widths) {
			name, err := excelize.ColumnNumberToName(col + 1)
			if err != nil {
				return err
			}
			if err := f.SetColWidth(spec.name, name, name, spec.widths[col]); err != nil {
				return fmt.Errorf("set width %s!%s: %w", spec.name, name, err)
			}
		}
	}

	for i, row := range spec.rows {
		r := i + 2
		stripe := i % 2
		for col, value := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, r)
			if err != nil {
				return err
			}
			if value != nil {
				if err := f.SetCellValue(spec.name, cell, value); err != nil {
					return fmt.Errorf("set cell %s!%s: %w", spec.name, cell, err)
				}
			}
			kind := cellText
			if col < len(spec.kinds) {
				kind = spec.kinds[col]
			}
			if err := f.SetCellStyle(spec.name, cell, cell, styles.body[stripe][kind]); err != nil {
				return fmt.Errorf("style cell %s!%s: %w", spec.name, cell, err)
			}
		}
	}

	return f.SetPanes(spec.name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func newStyleSet(f *excelize.File) (styleSet, error) {
	var set styleSet
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{headerFill}, Pattern: 1},
	})
	if err != nil {
		return set, fmt.Errorf("create header style: %w", err)
	}
	set.header = header

	formats := [3]string{"", dateFormat, timeFormat}
	for stripe := 0; stripe < 2; stripe++ {
		for kind, format := range formats {
			style := &excelize.Style{}
			if stripe == 1 {
				style.Fill = excelize.Fill{Type: "pattern", Color: []string{stripeFill}, Pattern: 1}
			}
			if format != "" {
				numFmt := format
				style.CustomNumFmt = &numFmt
			}
			id, err := f.NewStyle(style)
			if err != nil {
				return set, fmt.Errorf("create body style: %w", err)
			}
			set.body[stripe][kind] = id
		}
	}
	return set, nil
}
