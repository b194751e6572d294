package fetcher

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) []byte {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestReadXLSXRows_Basic(t *testing.T) {
	data := createTestXLSX(t, map[string][][]string{
		"Planilha1": {
			{"Nome", "Telefone", "Cidade"},
			{"Padaria Sol", "11 98888-0000", "São Paulo - SP"},
			{"Bar do Zé", "", "Campinas"},
		},
	})

	rows, err := ReadXLSXRows(data, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Padaria Sol", rows[0]["Nome"])
	assert.Equal(t, "São Paulo - SP", rows[0]["Cidade"])
	assert.Equal(t, "", rows[1]["Telefone"])
}

func TestReadXLSXRows_SheetByName(t *testing.T) {
	data := createTestXLSX(t, map[string][][]string{
		"Dados": {{"nome"}, {"A"}},
	})

	rows, err := ReadXLSXRows(data, XLSXOptions{SheetName: "Dados"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "A", rows[0]["nome"])

	_, err = ReadXLSXRows(data, XLSXOptions{SheetName: "Missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no sheet named "Missing"`)
}

func TestReadXLSXRows_IndexOutOfRange(t *testing.T) {
	data := createTestXLSX(t, map[string][][]string{"S": {{"a"}}})
	_, err := ReadXLSXRows(data, XLSXOptions{SheetIndex: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sheet 3 requested, workbook has 1")
}

func TestReadXLSXRows_InvalidData(t *testing.T) {
	_, err := ReadXLSXRows([]byte("not a workbook"), XLSXOptions{})
	require.Error(t, err)
}

func TestReadXLSXRows_SkipsBlankRows(t *testing.T) {
	data := createTestXLSX(t, map[string][][]string{
		"S": {{"", ""}, {"nome", "telefone"}, {" ", ""}, {"Loja A", "1133334444"}},
	})
	rows, err := ReadXLSXRows(data, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Loja A", rows[0]["nome"])
}
