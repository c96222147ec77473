// Package export writes itineraries to spreadsheets.
package export

import (
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/trip-planner/internal/model"
)

// Sheet names, in workbook order.
const (
	SheetItinerary = "Itinerary"
	SheetLodging   = "Lodging"
	SheetTransport = "Transport"
	SheetBudget    = "Budget"
)

// WriteXLSX saves doc as a workbook at path.
func WriteXLSX(path string, doc *model.Itinerary) error {
	f, err := Workbook(doc)
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "xlsx: save")
	}
	return nil
}

// Workbook builds the workbook for doc.
func Workbook(doc *model.Itinerary) (*xlsx.File, error) {
	if doc == nil {
		return nil, eris.New("xlsx: nil itinerary")
	}
	f := xlsx.NewFile()

	sheet, err := addSheet(f, SheetItinerary, "Day", "Theme", "Time", "Activity", "Description", "Cost", "Image")
	if err != nil {
		return nil, err
	}
	for _, d := range doc.Days {
		for _, a := range d.Activities {
			row := sheet.AddRow()
			row.AddCell().SetInt(d.Day)
			addStrings(row, d.Theme, a.Time, a.Name, a.Description)
			row.AddCell().SetFloat(a.CostEstimate)
			row.AddCell().SetString(a.ImageURL)
		}
	}

	sheet, err = addSheet(f, SheetLodging, "Name", "Area", "Price per night", "Rating", "Booking link", "Image")
	if err != nil {
		return nil, err
	}
	for _, l := range doc.Lodging {
		row := sheet.AddRow()
		addStrings(row, l.Name, l.Area)
		row.AddCell().SetFloat(l.PricePerNight)
		row.AddCell().SetFloat(l.Rating)
		addStrings(row, l.BookingLink, l.ImageURL)
	}

	sheet, err = addSheet(f, SheetTransport, "Mode", "Provider", "Details", "Cost")
	if err != nil {
		return nil, err
	}
	for _, t := range doc.Transport {
		row := sheet.AddRow()
		addStrings(row, t.Mode, t.Provider, t.Details)
		row.AddCell().SetFloat(t.Cost)
	}

	sheet, err = addSheet(f, SheetBudget, "Category", "Amount", "Currency")
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(doc.Budget.Breakdown))
	for k := range doc.Budget.Breakdown {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		row := sheet.AddRow()
		row.AddCell().SetString(k)
		row.AddCell().SetFloat(doc.Budget.Breakdown[k])
		row.AddCell().SetString(doc.Budget.Currency)
	}
	row := sheet.AddRow()
	row.AddCell().SetString("total")
	row.AddCell().SetFloat(doc.Budget.Total)
	row.AddCell().SetString(doc.Budget.Currency)
	row = sheet.AddRow()
	addStrings(row, "within_budget", strconv.FormatBool(doc.Budget.WithinBudget))

	return f, nil
}

func addSheet(f *xlsx.File, name string, header ...string) (*xlsx.Sheet, error) {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: add sheet %s", name)
	}
	addStrings(sheet.AddRow(), header...)
	return sheet, nil
}

func addStrings(row *xlsx.Row, values ...string) {
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
