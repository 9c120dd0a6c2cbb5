package dtbloader

import (
	"encoding/binary"
	"testing"
	"testing/fstest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/darkit/dtbloader/chid"
	"github.com/darkit/dtbloader/fdt"
)

// yoga Lenovo Yoga C630 的 SMBIOS 身份
var yoga = chid.Record{
	Manufacturer:          "LENOVO",
	Family:                "Yoga C630-13Q50",
	ProductName:           "81JL",
	ProductSku:            "LENOVO_MT_81JL_BU_idea_FM_Yoga C630-13Q50",
	BaseboardManufacturer: "LENOVO",
	BaseboardProduct:      "LNVNB161216",
}

const (
	yogaCHID3 = "1313193b-ce2d-53a4-ade1-75532350768d"
	yogaCHID9 = "30b031c0-9de7-5d31-a61c-dee772871b7d"
)

func cellsOf(vs ...uint32) []byte {
	var b []byte
	for _, v := range vs {
		b = binary.BigEndian.AppendUint32(b, v)
	}
	return b
}

// baseTree 带 dsi0 标签的最小 SoC 设备树
func baseTree(model string) *fdt.Tree {
	return &fdt.Tree{Root: &fdt.Node{
		Properties: []fdt.Property{{Name: "model", Value: fdt.StringValue(model)}},
		Children: []*fdt.Node{
			{Name: "chosen"},
			{Name: "soc", Children: []*fdt.Node{
				{Name: "dsi@ae94000", Properties: []fdt.Property{
					{Name: "status", Value: fdt.StringValue("disabled")},
					{Name: "phandle", Value: cellsOf(1)},
				}},
			}},
			{Name: "__symbols__", Properties: []fdt.Property{
				{Name: "dsi0", Value: fdt.StringValue("/soc/dsi@ae94000")},
			}},
		},
	}}
}

func baseBlob(model string) []byte {
	return baseTree(model).Flatten()
}

// panelBlob 一个启用 dsi0 并添加面板节点的 overlay
func panelBlob(compatible string) []byte {
	return (&fdt.Tree{Root: &fdt.Node{Children: []*fdt.Node{
		{Name: "fragment@0", Properties: []fdt.Property{{Name: "target", Value: cellsOf(0xffffffff)}}, Children: []*fdt.Node{
			{Name: "__overlay__", Properties: []fdt.Property{{Name: "status", Value: fdt.StringValue("okay")}}, Children: []*fdt.Node{
				{Name: "panel@0", Properties: []fdt.Property{{Name: "compatible", Value: fdt.StringValue(compatible)}}},
			}},
		}},
		{Name: "__fixups__", Properties: []fdt.Property{{Name: "dsi0", Value: fdt.StringValue("/fragment@0:target:0")}}},
	}}}).Flatten()
}

func variant(t *testing.T, id chid.VariantID) chid.Variant {
	t.Helper()
	v, ok := chid.Lookup(id)
	require.True(t, ok)
	return v
}

func mustUUID(s string) uuid.UUID {
	return uuid.MustParse(s)
}

func volume(files map[string][]byte) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, data := range files {
		fsys[name] = &fstest.MapFile{Data: data}
	}
	return fsys
}

// countingAlloc 记录分配次数，第 failAt 次（从 1 开始）分配失败；failAt 为 0 时从不失败
func countingAlloc(failAt int) (Allocator, *int) {
	calls := 0
	inner := LimitedAllocator(DefaultMaxArtifactSize)
	return func(size int) ([]byte, error) {
		calls++
		if calls == failAt {
			return nil, errAllocation
		}
		return inner(size)
	}, &calls
}

func loadedArtifact(t *testing.T, path string, blob []byte) *Artifact {
	t.Helper()
	a, err := loadArtifact(volume(map[string][]byte{path: blob}), path, LimitedAllocator(DefaultMaxArtifactSize))
	require.NoError(t, err)
	return a
}

func modelOf(t *testing.T, blob []byte) string {
	t.Helper()
	tree, err := fdt.Parse(blob)
	require.NoError(t, err)
	p, ok := tree.Root.Property("model")
	require.True(t, ok)
	s, _ := p.AsString()
	return s
}
