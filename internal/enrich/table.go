package enrich

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

var tableHeader = []string{"Gene_set", "Term", "P-value", "Adjusted P-value", "Z-score", "Combined Score", "Genes"}

func tableRow(p Pathway) []interface{} {
	return []interface{}{p.GeneSet, p.Term, p.P, p.AdjustedP, p.ZScore, p.CombinedScore, strings.Join(p.Genes, ";")}
}

// WriteCSV writes a pathway table to w.
func WriteCSV(w io.Writer, pathways []Pathway) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tableHeader); err != nil {
		return err
	}
	for _, p := range pathways {
		row := make([]string, 0, len(tableHeader))
		for _, v := range tableRow(p) {
			switch t := v.(type) {
			case string:
				row = append(row, t)
			case float64:
				row = append(row, strconv.FormatFloat(t, 'g', -1, 64))
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes a pathway table to an xlsx workbook at path.
func WriteXLSX(path string, pathways []Pathway) error {
	f := excelize.NewFile()
	defer f.Close()
	const sheet = "Sheet1"
	for j, h := range tableHeader {
		cell, err := excelize.CoordinatesToCellName(j+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	for i, p := range pathways {
		for j, v := range tableRow(p) {
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	return f.SaveAs(path)
}
