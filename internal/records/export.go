package records

import (
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"math/bits"
	"os"
	"strconv"
	"strings"
)

// CSVHeader is the column order of a history export.
var CSVHeader = []string{"Address", "Value(Hex)", "Value(Dec)", "Value(Bin)", "Datetime"}

// Row is one exported line. Address rows carry only Address; value rows leave it empty.
type Row struct {
	Address  string
	Hex      string
	Dec      string
	Bin      string
	Datetime string
}

// IsAddress reports whether r opens an address block.
func (r Row) IsAddress() bool { return r.Address != "" }

func (r Row) fields() []string {
	return []string{r.Address, r.Hex, r.Dec, r.Bin, r.Datetime}
}

// Rows flattens entries into one address row followed by its value rows.
func Rows(entries []Entry) []Row {
	var rows []Row
	for _, entry := range entries {
		rows = append(rows, Row{Address: fmt.Sprintf("%#x", entry.Address)})
		for _, v := range entry.Values {
			row := Row{Hex: v.Hex, Datetime: v.At.Format(TimeLayout)}
			if value, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(v.Hex), "0x"), 16, 64); err == nil {
				row.Dec = strconv.FormatUint(value, 10)
				row.Bin = binaryDigits(value)
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// binaryDigits zero-pads to the smallest access width that holds value.
func binaryDigits(value uint64) string {
	width := 64
	switch n := bits.Len64(value); {
	case n <= 8:
		width = 8
	case n <= 16:
		width = 16
	case n <= 32:
		width = 32
	}
	return fmt.Sprintf("%0*b", width, value)
}

// Paths derives the CSV and HTML export paths from the operator's file name.
func Paths(name string) (csvPath, htmlPath string) {
	csvPath = name
	if !strings.Contains(csvPath, ".csv") {
		csvPath += ".csv"
	}
	return csvPath, strings.Replace(csvPath, ".csv", ".html", 1)
}

// WriteCSV writes the history as CSV.
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, row := range Rows(entries) {
		if err := cw.Write(row.fields()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var htmlTemplate = template.Must(template.New("history").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
table { border-collapse: collapse; font-size: 14px; }
th { color: black; padding: 10px 8px; background: #A1C9D7; text-transform: uppercase; font-size: 15px; }
td { padding: 4px 8px; }
caption { caption-side: top; text-align: center; font-size: 30px; color: black; font-style: italic; }
tr.address { background-color: #C0C0C0; }
tr.value { background-color: #F9E9D0; }
</style>
</head>
<body>
<table>
<caption>Register Values Lifecycle</caption>
<thead><tr>{{range .Header}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{- range .Rows}}
<tr class="{{if .IsAddress}}address{{else}}value{{end}}"><td>{{.Address}}</td><td>{{.Hex}}</td><td>{{.Dec}}</td><td>{{.Bin}}</td><td>{{.Datetime}}</td></tr>
{{- end}}
</tbody>
</table>
</body>
</html>
`))

// WriteHTML writes the styled HTML rendering of the history.
func WriteHTML(w io.Writer, entries []Entry) error {
	return htmlTemplate.Execute(w, struct {
		Header []string
		Rows   []Row
	}{Header: CSVHeader, Rows: Rows(entries)})
}

// Export writes both renderings next to each other and returns their paths.
func Export(name string, entries []Entry) (csvPath, htmlPath string, err error) {
	csvPath, htmlPath = Paths(name)
	if err := writeFile(csvPath, entries, WriteCSV); err != nil {
		return "", "", err
	}
	if err := writeFile(htmlPath, entries, WriteHTML); err != nil {
		return csvPath, "", err
	}
	return csvPath, htmlPath, nil
}

func writeFile(path string, entries []Entry, write func(io.Writer, []Entry) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("close %s: %w", path, closeErr)
		}
	}()
	if err := write(f, entries); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
