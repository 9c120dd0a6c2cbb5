package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/darkit/dtbloader"
	"github.com/darkit/dtbloader/chid"
	"github.com/darkit/dtbloader/efivar"
	"github.com/darkit/dtbloader/fdt"
	"github.com/darkit/dtbloader/smbios"
)

var yoga = chid.Record{
	Manufacturer:          "LENOVO",
	Family:                "Yoga C630-13Q50",
	ProductName:           "81JL",
	ProductSku:            "LENOVO_MT_81JL_BU_idea_FM_Yoga C630-13Q50",
	BaseboardManufacturer: "LENOVO",
	BaseboardProduct:      "LNVNB161216",
}

const yogaCHID9 = "30b031c0-9de7-5d31-a61c-dee772871b7d"

func stubIdentity(t *testing.T, src smbios.Source) {
	t.Helper()
	orig := identitySource
	identitySource = func() smbios.Source { return src }
	t.Cleanup(func() { identitySource = orig })
}

func stubVars(t *testing.T, store efivar.Store) {
	t.Helper()
	orig := varStore
	varStore = func(string) efivar.Store { return store }
	t.Cleanup(func() { varStore = orig })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func testBlob(model string) []byte {
	return (&fdt.Tree{Root: &fdt.Node{
		Properties: []fdt.Property{{Name: "model", Value: fdt.StringValue(model)}},
		Children: []*fdt.Node{
			{Name: "chosen"},
			{Name: "soc", Children: []*fdt.Node{
				{Name: "dsi@ae94000", Properties: []fdt.Property{
					{Name: "status", Value: fdt.StringValue("disabled")},
					{Name: "phandle", Value: fdt.U32Value(1)},
				}},
			}},
			{Name: "__symbols__", Properties: []fdt.Property{{Name: "dsi0", Value: fdt.StringValue("/soc/dsi@ae94000")}}},
		},
	}}).Flatten()
}

func testOverlay() []byte {
	return (&fdt.Tree{Root: &fdt.Node{Children: []*fdt.Node{
		{Name: "fragment@0", Properties: []fdt.Property{{Name: "target", Value: fdt.U32Value(0xffffffff)}}, Children: []*fdt.Node{
			{Name: "__overlay__", Properties: []fdt.Property{{Name: "status", Value: fdt.StringValue("okay")}}},
		}},
		{Name: "__fixups__", Properties: []fdt.Property{{Name: "dsi0", Value: fdt.StringValue("/fragment@0:target:0")}}},
	}}}).Flatten()
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestHwidsText(t *testing.T) {
	stubIdentity(t, smbios.Static(yoga))

	out, err := execute(t, "hwids")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, len(chid.Catalog()))
	assert.Contains(t, out, "{1313193b-ce2d-53a4-ade1-75532350768d}")
	for _, line := range lines {
		if strings.Contains(line, "HardwareID-14") {
			assert.True(t, strings.HasPrefix(line, " "), "HardwareID-14 is not in the default priority")
		}
		if strings.Contains(line, "HardwareID-9") {
			assert.True(t, strings.HasPrefix(line, "*"))
			assert.Contains(t, line, yogaCHID9)
		}
	}
}

func TestHwidsYAMLFromIdentityFile(t *testing.T) {
	data, err := yaml.Marshal(yoga)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "identity.yaml")
	writeFile(t, path, data)
	stubIdentity(t, smbios.SourceFunc(func() (chid.Record, error) {
		return chid.Record{}, smbios.ErrNotAvailable
	}))

	out, err := execute(t, "hwids", "--identity", path, "-o", "yaml")
	require.NoError(t, err)

	var report hwidReport
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))
	assert.Equal(t, yoga, report.Identity)
	require.Len(t, report.IDs, len(chid.Catalog()))
	assert.Equal(t, "HardwareID-3", report.IDs[0].Label)
	assert.Equal(t, 1, report.IDs[0].Priority)

	_, err = execute(t, "hwids", "--identity", path, "-o", "xml")
	assert.Error(t, err)
}

func TestResolveCommand(t *testing.T) {
	stubIdentity(t, smbios.Static(yoga))
	vol := t.TempDir()
	writeFile(t, filepath.Join(vol, "dtb", yogaCHID9+".dtb"), testBlob("yoga"))

	out, err := execute(t, "resolve", "--volume", vol)
	require.NoError(t, err)
	assert.Contains(t, out, "variant: HardwareID-9")
	assert.Contains(t, out, "chid:    "+yogaCHID9)

	_, err = execute(t, "resolve", "--volume", t.TempDir())
	assert.True(t, dtbloader.IsNotFound(err))
}

func TestBootCommand(t *testing.T) {
	stubIdentity(t, smbios.Static(yoga))
	stubVars(t, efivar.NewMemory())
	vol := t.TempDir()
	writeFile(t, filepath.Join(vol, "dtb", yogaCHID9+".dtb"), testBlob("yoga"))
	writeFile(t, filepath.Join(vol, "dtb", "qcom-panels", "panel-2a0c.dtb"), testOverlay())
	outFile := filepath.Join(t.TempDir(), "active.dtb")
	invFile := filepath.Join(t.TempDir(), "inventory.yaml")

	out, err := execute(t, "boot", "--volume", vol, "--out", outFile, "--simulate-exit",
		"--panel-id", "0x2a0c", "--inventory", invFile)
	require.NoError(t, err)
	assert.Contains(t, out, "overlay: applied")
	assert.Contains(t, out, "exit:    unchanged")

	blob, err := os.ReadFile(outFile)
	require.NoError(t, err)
	require.NoError(t, fdt.Validate(blob))
	assert.Equal(t, uint32(len(blob)), fdt.TotalSize(blob))

	_, err = os.Stat(invFile)
	assert.NoError(t, err)
}

func TestBootDeferred(t *testing.T) {
	stubIdentity(t, smbios.SourceFunc(func() (chid.Record, error) {
		return chid.Record{}, smbios.ErrNotAvailable
	}))
	stubVars(t, efivar.NewMemory())

	out, err := execute(t, "boot", "--volume", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "state:   deferred")
}

func TestInstallCommand(t *testing.T) {
	stubIdentity(t, smbios.Static(yoga))
	vol := t.TempDir()
	src := filepath.Join(t.TempDir(), "yoga.dtb")
	writeFile(t, src, testBlob("yoga"))

	out, err := execute(t, "install", src, "--volume", vol, "--variant", "HardwareID-9")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(vol, "dtb", yogaCHID9+".dtb"))

	out, err = execute(t, "resolve", "--volume", vol)
	require.NoError(t, err)
	assert.Contains(t, out, "variant: HardwareID-9")

	_, err = execute(t, "install", src, "--volume", vol, "--variant", "HardwareID-12")
	assert.ErrorIs(t, err, chid.ErrUnknownVariant)
}
