package interfaces

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"subway-cloud/internal/lines/application"
)

func sampleView() *application.LineView {
	return &application.LineView{
		ID:       "line-1",
		Name:     "Line 2",
		Color:    "bg-green-600",
		Distance: 15,
		Stations: []application.StationView{
			{ID: "S1", Name: "Gangnam"},
			{ID: "S2", Name: "Yeoksam"},
			{ID: "S3", Name: "Seolleung"},
		},
		Sections: []application.SectionView{
			{ID: "sec-1", UpStationID: "S1", DownStationID: "S2", Distance: 10},
			{ID: "sec-2", UpStationID: "S2", DownStationID: "S3", Distance: 5},
		},
		UpdatedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

func TestBuildLineXLSX(t *testing.T) {
	data, err := BuildLineXLSX(sampleView())
	if err != nil {
		t.Fatalf("build xlsx: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("stations")
	if err != nil {
		t.Fatalf("stations rows: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header plus three stations, got %d rows", len(rows))
	}
	if rows[3][2] != "Seolleung" {
		t.Fatalf("expected last station Seolleung, got %v", rows[3])
	}
	total, err := f.GetCellValue("summary", "B6")
	if err != nil {
		t.Fatalf("summary cell: %v", err)
	}
	if total != "15" {
		t.Fatalf("expected total distance 15, got %s", total)
	}
}

func TestBuildLinePDF(t *testing.T) {
	data, err := BuildLinePDF(sampleView())
	if err != nil {
		t.Fatalf("build pdf: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("expected pdf header")
	}
}

func TestBuildExport_NilLine(t *testing.T) {
	if _, err := BuildLinePDF(nil); err == nil {
		t.Fatalf("expected error for nil line")
	}
	if _, err := BuildLineXLSX(nil); err == nil {
		t.Fatalf("expected error for nil line")
	}
}
