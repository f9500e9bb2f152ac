package importer

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Table is a tabular export with its header row split off.
type Table struct {
	Header []string
	Rows   [][]string
}

// Records returns one map per row keyed by the folded header name. Rows whose
// cells are all blank are dropped.
func (t *Table) Records() []map[string]string {
	keys := make([]string, len(t.Header))
	for i, h := range t.Header {
		keys[i] = FoldHeader(h)
	}
	out := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]string, len(keys))
		blank := true
		for i, key := range keys {
			if key == "" || i >= len(row) {
				continue
			}
			v := strings.TrimSpace(row[i])
			if v != "" {
				blank = false
			}
			rec[key] = v
		}
		if !blank {
			out = append(out, rec)
		}
	}
	return out
}

// FoldHeader lowercases h, strips accents and collapses whitespace, so that
// "Valor Líquido" and "valor  liquido" name the same column.
func FoldHeader(h string) string {
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(stripMarks, h)
	if err != nil {
		folded = h
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// ReadFile reads a .csv or .xlsx export. sheet selects an XLSX sheet by name;
// empty means the first sheet.
func ReadFile(path, sheet string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadXLSX(path, sheet)
	case ".csv", ".txt":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "importer: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return ReadCSV(f)
	default:
		return nil, eris.Errorf("importer: unsupported file type %q", filepath.Ext(path))
	}
}

// ReadCSV parses a CSV export. A UTF-8 byte order mark is dropped and the
// delimiter is "," or ";", whichever the header line uses more.
func ReadCSV(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(transform.NewReader(r, xunicode.BOMOverride(xunicode.UTF8.NewDecoder())))
	if err != nil {
		return nil, eris.Wrap(err, "importer: read csv")
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "importer: parse csv")
	}
	return split(records)
}

func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte{';'}) > bytes.Count(line, []byte{','}) {
		return ';'
	}
	return ','
}

// ReadXLSX reads one sheet of an XLSX export.
func ReadXLSX(path, sheet string) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: open xlsx %s", path)
	}

	var sh *xlsx.Sheet
	if sheet != "" {
		var ok bool
		if sh, ok = f.Sheet[sheet]; !ok {
			return nil, eris.Errorf("importer: sheet %q not found", sheet)
		}
	} else {
		if len(f.Sheets) == 0 {
			return nil, eris.New("importer: workbook has no sheets")
		}
		sh = f.Sheets[0]
	}

	records := make([][]string, 0, len(sh.Rows))
	for _, row := range sh.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		records = append(records, cells)
	}
	return split(records)
}

func split(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, eris.New("importer: file has no header row")
	}
	return &Table{Header: records[0], Rows: records[1:]}, nil
}
