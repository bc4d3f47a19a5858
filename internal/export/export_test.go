package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type line struct {
	Description string `json:"description"`
}

type vendorBill struct {
	ID       string          `json:"id"`
	Vendor   string          `json:"vendor"`
	Ref      string          `json:"ref"`
	Amount   decimal.Decimal `json:"amount"`
	Rating   int             `json:"rating"`
	Approved bool            `json:"approved"`
	Lines    []line          `json:"lines"`
}

var billColumns = []Column{
	{Key: "id", Label: "ID"},
	{Key: "vendor", Label: "Vendor"},
	{Key: "ref", Label: "Reference"},
	{Key: "amount", Label: "Amount", Numeric: true},
	{Key: "rating", Label: "Rating", Numeric: true},
	{Key: "approved", Label: "Approved"},
	{Key: "lines", Label: "Lines"},
}

func sampleBills() []*vendorBill {
	return []*vendorBill{
		{ID: "b1", Vendor: `Dell, "Direct"`, Ref: "00123", Amount: decimal.RequireFromString("5400.50"), Rating: 4, Approved: true, Lines: []line{{Description: "XPS"}}},
		{ID: "b2", Vendor: "Staples", Ref: "A-9", Amount: decimal.NewFromInt(75), Lines: []line{}},
	}
}

func TestCSVRoundTrip(t *testing.T) {
	rows, err := Rows(sampleBills())
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	require.NoError(t, WriteCSV(buf, billColumns, rows))

	records, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, []string{"ID", "Vendor", "Reference", "Amount", "Rating", "Approved", "Lines"}, records[0])
	require.Equal(t, `Dell, "Direct"`, records[1][1])
	require.Equal(t, `[{"description":"XPS"}]`, records[1][6])

	imported, err := ReadCSV(bytes.NewReader(buf.Bytes()), billColumns)
	require.NoError(t, err)
	require.Len(t, imported, 2)

	bills, err := DecodeRows(imported, func() *vendorBill { return &vendorBill{} })
	require.NoError(t, err)
	require.Equal(t, `Dell, "Direct"`, bills[0].Vendor)
	require.Equal(t, "00123", bills[0].Ref)
	require.True(t, decimal.RequireFromString("5400.5").Equal(bills[0].Amount))
	require.Equal(t, 4, bills[0].Rating)
	require.True(t, bills[0].Approved)
	require.Equal(t, []line{{Description: "XPS"}}, bills[0].Lines)
	require.Equal(t, 0, bills[1].Rating)
}

func TestReadCSVHandlesShortRowsAndEmptyInput(t *testing.T) {
	rows, err := ReadCSV(bytes.NewReader(nil), billColumns)
	require.NoError(t, err)
	require.Empty(t, rows)

	rows, err = ReadCSV(bytes.NewBufferString("ID,Vendor\nb9,Acme\n"), billColumns)
	require.NoError(t, err)
	require.Equal(t, []map[string]string{{"id": "b9", "vendor": "Acme"}}, rows)

	_, err = ReadCSV(bytes.NewBufferString("ID\n\"unterminated\n"), billColumns)
	require.ErrorContains(t, err, "export: line 2")
}

func TestDecodeRowsRejectsBadNumbers(t *testing.T) {
	_, err := DecodeRows([]map[string]string{{"rating": "five"}}, func() *vendorBill { return &vendorBill{} })
	require.ErrorContains(t, err, "export: row 1")
}

func TestWriteXLSX(t *testing.T) {
	rows, err := Rows(sampleBills())
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	require.NoError(t, WriteXLSX(buf, "Bills", billColumns, rows))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	got, err := f.GetRows("Bills")
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "Vendor", got[0][1])
	require.Equal(t, "5400.5", got[1][3])
	require.Equal(t, "Staples", got[2][1])
}
