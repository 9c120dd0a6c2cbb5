package smbios

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkit/dtbloader/chid"
)

func structure(typ byte, formatted []byte, strs ...string) []byte {
	b := []byte{typ, byte(headerLen + len(formatted)), 0x01, 0x00}
	b = append(b, formatted...)
	if len(strs) == 0 {
		return append(b, 0, 0)
	}
	for _, s := range strs {
		b = append(b, s...)
		b = append(b, 0)
	}
	return append(b, 0)
}

func sampleTable() []byte {
	sys := make([]byte, 0x1b-headerLen)
	sys[sysManufacturer-headerLen] = 1
	sys[sysProductName-headerLen] = 2
	sys[sysSKUNumber-headerLen] = 3
	sys[sysFamily-headerLen] = 4

	board := []byte{1, 2, 0, 0}

	var table []byte
	table = append(table, structure(0, []byte{1, 2, 0, 0}, "LENOVO", "9UCN33WW")...)
	table = append(table, structure(typeSystemInformation, sys,
		"LENOVO", "81JL", "LENOVO_MT_81JL_BU_idea_FM_Yoga C630-13Q50", "Yoga C630-13Q50")...)
	table = append(table, structure(typeBaseboardInformation, board, "LENOVO", "LNVNB161216")...)
	table = append(table, structure(typeEndOfTable, nil)...)
	// 结束标记之后的数据应被忽略
	table = append(table, 0xff, 0xff)
	return table
}

func TestParseTable(t *testing.T) {
	r, err := ParseTable(sampleTable())
	require.NoError(t, err)
	assert.Equal(t, chid.Record{
		Manufacturer:          "LENOVO",
		Family:                "Yoga C630-13Q50",
		ProductName:           "81JL",
		ProductSku:            "LENOVO_MT_81JL_BU_idea_FM_Yoga C630-13Q50",
		BaseboardManufacturer: "LENOVO",
		BaseboardProduct:      "LNVNB161216",
	}, r)
}

func TestParseTableShortType1(t *testing.T) {
	// SMBIOS 2.0 的 Type 1 没有 SKU 和 Family
	table := structure(typeSystemInformation, []byte{1, 2, 0, 0}, "Vendor", "Product")
	table = append(table, structure(typeEndOfTable, nil)...)

	r, err := ParseTable(table)
	require.NoError(t, err)
	assert.Equal(t, "Vendor", r.Manufacturer)
	assert.Equal(t, "Product", r.ProductName)
	assert.Empty(t, r.ProductSku)
	assert.Empty(t, r.Family)
}

func TestStructuresMalformed(t *testing.T) {
	_, err := Structures([]byte{1, 2, 0, 0})
	assert.ErrorIs(t, err, ErrMalformedTable)

	_, err = Structures([]byte{1, 4, 0, 0, 'a', 0})
	assert.ErrorIs(t, err, ErrMalformedTable)
}

func TestParseTableWithoutIdentity(t *testing.T) {
	_, err := ParseTable(structure(typeEndOfTable, nil))
	assert.ErrorIs(t, err, ErrNotAvailable)
}

func TestStructureStringOutOfRange(t *testing.T) {
	s := Structure{Formatted: []byte{1, 4, 0, 0, 3}, Strings: []string{"a"}}
	assert.Empty(t, s.String(4))
	assert.Empty(t, s.String(40))
}

func TestTableSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "DMI")
	require.NoError(t, os.WriteFile(path, sampleTable(), 0o600))

	r, err := TableSource{Path: path}.Identity()
	require.NoError(t, err)
	assert.Equal(t, "81JL", r.ProductName)

	_, err = TableSource{Path: filepath.Join(t.TempDir(), "missing")}.Identity()
	assert.ErrorIs(t, err, ErrNotAvailable)
}

func TestSysfsSource(t *testing.T) {
	dir := t.TempDir()
	write := func(name, value string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(value), 0o444))
	}
	write("sys_vendor", "LENOVO\n")
	write("product_name", "81JL\n")
	write("board_name", " LNVNB161216 \n")

	r, err := SysfsSource{Dir: dir}.Identity()
	require.NoError(t, err)
	assert.Equal(t, "LENOVO", r.Manufacturer)
	assert.Equal(t, "81JL", r.ProductName)
	// 空格留给 chid.Normalize
	assert.Equal(t, " LNVNB161216 ", r.BaseboardProduct)
	assert.Empty(t, r.ProductSku)
}

func TestSysfsSourceMissing(t *testing.T) {
	_, err := SysfsSource{Dir: filepath.Join(t.TempDir(), "nope")}.Identity()
	assert.ErrorIs(t, err, ErrNotAvailable)

	_, err = SysfsSource{Dir: t.TempDir()}.Identity()
	assert.ErrorIs(t, err, ErrNotAvailable)
}

func TestChain(t *testing.T) {
	failing := SourceFunc(func() (chid.Record, error) { return chid.Record{}, ErrNotAvailable })
	src := Chain(nil, failing, Static{Manufacturer: "ACME"})

	r, err := src.Identity()
	require.NoError(t, err)
	assert.Equal(t, "ACME", r.Manufacturer)

	_, err = Chain(failing).Identity()
	assert.ErrorIs(t, err, ErrNotAvailable)
}

func TestOnceCachesSuccessOnly(t *testing.T) {
	calls := 0
	ready := false
	src := Once(SourceFunc(func() (chid.Record, error) {
		calls++
		if !ready {
			return chid.Record{}, errors.New("not yet")
		}
		return chid.Record{Manufacturer: "ACME"}, nil
	}))

	_, err := src.Identity()
	require.Error(t, err)

	ready = true
	r, err := src.Identity()
	require.NoError(t, err)
	assert.Equal(t, "ACME", r.Manufacturer)

	_, _ = src.Identity()
	assert.Equal(t, 2, calls)
}
