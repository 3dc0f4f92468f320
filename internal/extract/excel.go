package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractExcel renders every visible sheet as tab-separated rows under a
// "sheet:" heading, so price tables keep their labels beside their amounts.
func extractExcel(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var out strings.Builder
	for _, sheet := range f.GetSheetList() {
		if visible, err := f.GetSheetVisible(sheet); err == nil && !visible {
			continue
		}
		if err := writeSheet(&out, f, sheet); err != nil {
			return "", err
		}
	}
	return strings.TrimSpace(out.String()), nil
}

func writeSheet(out *strings.Builder, f *excelize.File, sheet string) error {
	rows, err := f.Rows(sheet)
	if err != nil {
		return fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	defer rows.Close()

	fmt.Fprintf(out, "%s:\n", sheet)
	for rows.Next() {
		cells, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		line := strings.TrimRight(strings.Join(cells, "\t"), "\t ")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	out.WriteByte('\n')
	return rows.Error()
}
