package interfaces

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"subway-cloud/internal/lines/application"
)

// Export formats.
const (
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
)

// BuildLinePDF renders the station sequence and sections of a line.
func BuildLinePDF(line *application.LineView) ([]byte, error) {
	if line == nil {
		return nil, errors.New("line export: nil line")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, tr(fmt.Sprintf("Line %s", line.Name)))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("ID: %s", line.ID))
	pdf.Ln(5)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Color: %s", line.Color)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total Distance: %d", line.Distance))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Updated: %s", line.UpdatedAt.Format(time.RFC3339)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(15, 6, "#", "1", 0, "C", false, 0, "")
	pdf.CellFormat(70, 6, "Station", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "To Next", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for i, station := range line.Stations {
		next := ""
		if i < len(line.Sections) {
			next = fmt.Sprintf("%d", line.Sections[i].Distance)
		}
		pdf.CellFormat(15, 6, fmt.Sprintf("%d", i+1), "1", 0, "C", false, 0, "")
		pdf.CellFormat(70, 6, tr(station.Name), "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, next, "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildLineXLSX renders a workbook with a summary sheet, the ordered stations
// and the stored sections.
func BuildLineXLSX(line *application.LineView) ([]byte, error) {
	if line == nil {
		return nil, errors.New("line export: nil line")
	}
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	stationsSheet := "stations"
	sectionsSheet := "sections"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(stationsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(sectionsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Line")
	_ = f.SetCellValue(summarySheet, "A3", "ID")
	_ = f.SetCellValue(summarySheet, "B3", line.ID)
	_ = f.SetCellValue(summarySheet, "A4", "Name")
	_ = f.SetCellValue(summarySheet, "B4", line.Name)
	_ = f.SetCellValue(summarySheet, "A5", "Color")
	_ = f.SetCellValue(summarySheet, "B5", line.Color)
	_ = f.SetCellValue(summarySheet, "A6", "Total Distance")
	_ = f.SetCellValue(summarySheet, "B6", line.Distance)
	_ = f.SetCellValue(summarySheet, "A7", "Stations")
	_ = f.SetCellValue(summarySheet, "B7", len(line.Stations))
	_ = f.SetCellValue(summarySheet, "A8", "Updated")
	_ = f.SetCellValue(summarySheet, "B8", line.UpdatedAt.Format(time.RFC3339))

	_ = f.SetCellValue(stationsSheet, "A1", "Order")
	_ = f.SetCellValue(stationsSheet, "B1", "Station ID")
	_ = f.SetCellValue(stationsSheet, "C1", "Name")
	for i, station := range line.Stations {
		row := i + 2
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("A%d", row), i+1)
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("B%d", row), station.ID)
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("C%d", row), station.Name)
	}

	_ = f.SetCellValue(sectionsSheet, "A1", "Section ID")
	_ = f.SetCellValue(sectionsSheet, "B1", "Up Station")
	_ = f.SetCellValue(sectionsSheet, "C1", "Down Station")
	_ = f.SetCellValue(sectionsSheet, "D1", "Distance")
	for i, section := range line.Sections {
		row := i + 2
		_ = f.SetCellValue(sectionsSheet, fmt.Sprintf("A%d", row), section.ID)
		_ = f.SetCellValue(sectionsSheet, fmt.Sprintf("B%d", row), section.UpStationID)
		_ = f.SetCellValue(sectionsSheet, fmt.Sprintf("C%d", row), section.DownStationID)
		_ = f.SetCellValue(sectionsSheet, fmt.Sprintf("D%d", row), section.Distance)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
