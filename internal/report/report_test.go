package report

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/netcontrolapp/netcontrol/internal/model"
)

func sampleOps() []model.NetOperation {
	start := time.Date(2024, 1, 1, 19, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	return []model.NetOperation{
		{ID: 1, OperatorCallsign: "W1AW", NetName: "Monday Net", Status: model.StatusCompleted, StartTime: start, EndTime: &end},
		{ID: 2, OperatorCallsign: "W1AW", NetName: "Tuesday Net", Status: model.StatusActive, StartTime: start.AddDate(0, 0, 1),
			CheckIns: []model.CheckIn{
				{ID: "a", Callsign: "K2ABC", Name: "Ann", Timestamp: start},
				{ID: "b", Callsign: "N3XYZ", Name: "Bob", StayingForComments: true, Notes: "mobile", Timestamp: start},
			}},
		{ID: 3, OperatorCallsign: "W1AW", NetName: "Wednesday Net", Status: model.StatusScheduled, StartTime: start.AddDate(0, 0, 2),
			CheckIns: []model.CheckIn{
				{ID: "c", Callsign: "K2ABC", Timestamp: start},
				{ID: "d", Callsign: "N3XYZ", Timestamp: start},
				{ID: "e", Callsign: "W4EEE", Timestamp: start},
				{ID: "f", Callsign: "W5FFF", Timestamp: start},
			}},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleOps())
	assert.Equal(t, Summary{Total: 3, Active: 1, Completed: 1, Scheduled: 1, CheckIns: 6, AverageCheckIns: 2.0}, s)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.Total)
	assert.Zero(t, s.AverageCheckIns)
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("all", "", "")
	require.NoError(t, err)
	assert.Nil(t, f.OperatorID)
	from, to := f.Window()
	assert.Nil(t, from)
	assert.Nil(t, to)
	assert.Equal(t, "All Dates", f.DateRange())

	f, err = ParseFilter("42", "2024-01-01", "2024-01-03")
	require.NoError(t, err)
	require.NotNil(t, f.OperatorID)
	assert.Equal(t, uint64(42), *f.OperatorID)
	from, to = f.Window()
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *from)
	assert.Equal(t, time.Date(2024, 1, 3, 23, 59, 59, 999_000_000, time.UTC), *to)
	assert.Equal(t, "2024-01-01 to 2024-01-03", f.DateRange())
}

func TestParseFilter_RFC3339KeepsDate(t *testing.T) {
	f, err := ParseFilter("", "2024-03-05T22:10:00Z", "")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), *f.StartDate)
}

func TestFilterWindow_SingleDay(t *testing.T) {
	f, err := ParseFilter("", "2024-01-01", "2024-01-01")
	require.NoError(t, err)
	from, to := f.Window()

	var hits []uint64
	for _, op := range sampleOps() {
		if !op.StartTime.Before(*from) && !op.StartTime.After(*to) {
			hits = append(hits, op.ID)
		}
	}
	assert.Equal(t, []uint64{1}, hits)
}

func TestFilterWindow_OneSided(t *testing.T) {
	f, err := ParseFilter("", "2024-01-02", "")
	require.NoError(t, err)
	from, to := f.Window()
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), *from)
	assert.Equal(t, time.Date(2024, 1, 2, 23, 59, 59, 999_000_000, time.UTC), *to)

	f, err = ParseFilter("", "", "2024-01-02")
	require.NoError(t, err)
	from, to = f.Window()
	assert.Nil(t, from)
	assert.Equal(t, time.Date(2024, 1, 2, 23, 59, 59, 999_000_000, time.UTC), *to)
	assert.Equal(t, "Through 2024-01-02", f.DateRange())
}

func TestParseFilter_Invalid(t *testing.T) {
	cases := []struct {
		name                 string
		operator, start, end string
		field                string
	}{
		{"operator text", "bob", "", "", "operatorId"},
		{"operator zero", "0", "", "", "operatorId"},
		{"bad start", "", "01/02/2024", "", "startDate"},
		{"bad end", "", "", "2024-13-01", "endDate"},
		{"reversed", "", "2024-02-01", "2024-01-01", "endDate"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseFilter(tc.operator, tc.start, tc.end)
			var fe *FilterError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tc.field, fe.Field)
		})
	}
}

func pngLogo(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func renderUncompressed(t *testing.T, doc Document) string {
	t.Helper()
	compressPDF = false
	t.Cleanup(func() { compressPDF = true })
	var buf bytes.Buffer
	require.NoError(t, RenderPDF(&buf, doc))
	return buf.String()
}

func TestRenderPDF_Aggregate(t *testing.T) {
	f, err := ParseFilter("", "2024-01-01", "2024-01-03")
	require.NoError(t, err)
	at := time.Date(2024, 1, 4, 8, 0, 0, 0, time.UTC)
	doc := NewAggregate(f, "W1AW", sampleOps(), &Image{Data: pngLogo(t), Type: "png"}, at)

	out := renderUncompressed(t, doc)
	assert.True(t, len(out) > 4 && out[:4] == "%PDF")
	assert.Contains(t, out, "Net Operations Report")
	assert.Contains(t, out, "Generated: 2024-01-04 08:00 UTC")
	assert.Contains(t, out, "2024-01-01 to 2024-01-03")
	assert.Contains(t, out, "Total Operations:")
	assert.Contains(t, out, "2.0")
	assert.Contains(t, out, "N3XYZ")
	assert.Contains(t, out, "Page 1 of 1")
	assert.Contains(t, out, "/Subtype /Image")
}

func TestRenderPDF_SingleOmitsFiltersAndSummary(t *testing.T) {
	doc := NewSingle(sampleOps()[1], nil, time.Now())
	out := renderUncompressed(t, doc)
	assert.Contains(t, out, "Net Operation Report")
	assert.Contains(t, out, "Tuesday Net")
	assert.NotContains(t, out, "Total Operations:")
	assert.NotContains(t, out, "Date Range:")
}

func TestRenderPDF_Paginates(t *testing.T) {
	op := sampleOps()[1]
	op.CheckIns = nil
	for i := 0; i < 80; i++ {
		op.CheckIns = append(op.CheckIns, model.CheckIn{Callsign: "K2ABC", Timestamp: op.StartTime})
	}
	out := renderUncompressed(t, NewSingle(op, nil, time.Now()))
	assert.Contains(t, out, "Page 2 of ")
	assert.NotContains(t, out, "Page 1 of 1)")
}

func TestRenderPDF_SkipsUnusableLogo(t *testing.T) {
	for _, logo := range []*Image{
		{Data: []byte("<svg/>"), Type: "svg"},
		{Data: []byte("RIFF....WEBP"), Type: "webp"},
		{Data: []byte("not a png"), Type: "png"},
	} {
		var buf bytes.Buffer
		require.NoError(t, RenderPDF(&buf, NewSingle(sampleOps()[0], logo, time.Now())), logo.Type)
		assert.Equal(t, "%PDF", buf.String()[:4])
	}
}

func TestRenderXLSX(t *testing.T) {
	doc := NewAggregate(Filter{}, "", sampleOps(), nil, time.Date(2024, 1, 4, 8, 0, 0, 0, time.UTC))
	var buf bytes.Buffer
	require.NoError(t, RenderXLSX(&buf, doc))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Summary", "Operations", "Check-ins"}, f.GetSheetList())

	v, err := f.GetCellValue("Summary", "B3")
	require.NoError(t, err)
	assert.Equal(t, "All Operators", v)
	v, err = f.GetCellValue("Summary", "B10")
	require.NoError(t, err)
	assert.Equal(t, "2.0", v)

	rows, err := f.GetRows("Operations")
	require.NoError(t, err)
	assert.Len(t, rows, 4)
	assert.Equal(t, "Tuesday Net", rows[2][1])

	rows, err = f.GetRows("Check-ins")
	require.NoError(t, err)
	assert.Len(t, rows, 7)
	assert.Equal(t, "N3XYZ", rows[2][3])
	assert.Equal(t, "Yes", rows[2][8])
}
