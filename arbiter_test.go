package dtbloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkit/dtbloader/fdt"
	"github.com/darkit/dtbloader/firmware"
)

// platformTables 带有 ACPI 注册的配置表
func platformTables(t *testing.T) *firmware.MemoryTables {
	t.Helper()
	tables := firmware.NewMemoryTables()
	require.NoError(t, tables.Install(firmware.AcpiTableGUID, []byte("RSD PTR ")))
	require.NoError(t, tables.Install(firmware.Acpi20TableGUID, []byte("RSD PTR 2")))
	return tables
}

func activated(t *testing.T, tables firmware.Tables) (*Arbiter, *Artifact) {
	t.Helper()
	a := loadedArtifact(t, "dtb/x.dtb", baseBlob("arbiter"))
	require.NoError(t, NewGrowth(nil, nil).Grow(a, DefaultHeadroom))
	arb := NewArbiter(tables, nil)
	_, err := arb.Activate(a)
	require.NoError(t, err)
	return arb, a
}

// setBootargs 模拟内核 EFI stub 在退出引导服务前写入 /chosen
func setBootargs(t *testing.T, slot []byte, args string) {
	t.Helper()
	tree, err := fdt.Parse(slot)
	require.NoError(t, err)
	chosen, ok := tree.Lookup("/chosen")
	require.True(t, ok)
	chosen.SetProperty("bootargs", fdt.StringValue(args))
	require.NoError(t, tree.FlattenInto(slot))
}

func acpiPresent(tables firmware.Tables) (bool, bool) {
	_, v1 := tables.Lookup(firmware.AcpiTableGUID)
	_, v2 := tables.Lookup(firmware.Acpi20TableGUID)
	return v1, v2
}

func TestActivateRecordsChecksum(t *testing.T) {
	tables := platformTables(t)
	arb, a := activated(t, tables)

	assert.Equal(t, ArbiterActivated, arb.State())
	rec, ok := arb.Record()
	require.True(t, ok)
	assert.Equal(t, fdt.Checksum(a.Bytes()), rec.Checksum)
	assert.Equal(t, a.TotalSize(), rec.TotalSize)

	slot, ok := tables.Lookup(firmware.FdtTableGUID)
	require.True(t, ok)
	assert.Same(t, &a.Bytes()[0], &slot[0])

	_, err := arb.Activate(a)
	assert.Error(t, err, "second activation")
}

func TestTransitionUnchangedKeepsACPI(t *testing.T) {
	tables := platformTables(t)
	arb, _ := activated(t, tables)

	assert.Equal(t, DecisionUnchanged, arb.OnRuntimeTransition())
	v1, v2 := acpiPresent(tables)
	assert.True(t, v1)
	assert.True(t, v2)
	assert.Equal(t, 1, tables.Installs(firmware.AcpiTableGUID))
	assert.Equal(t, ArbiterResolved, arb.State())
}

func TestTransitionModifiedRetractsACPIOnce(t *testing.T) {
	tables := platformTables(t)
	arb, _ := activated(t, tables)
	bus := firmware.NewBus()
	require.NoError(t, arb.Arm(bus))
	assert.Equal(t, 1, bus.Subscribers(firmware.SignalExitBootServices))

	slot, _ := tables.Lookup(firmware.FdtTableGUID)
	setBootargs(t, slot, "console=tty0 root=/dev/nvme0n1p2")

	bus.Fire(firmware.SignalExitBootServices)
	bus.Fire(firmware.SignalExitBootServices)
	assert.Equal(t, DecisionRetracted, arb.OnRuntimeTransition())

	assert.Equal(t, DecisionRetracted, arb.Decision())
	v1, v2 := acpiPresent(tables)
	assert.False(t, v1)
	assert.False(t, v2)
	assert.Equal(t, 2, tables.Installs(firmware.AcpiTableGUID), "installed once, retracted once")
	assert.Equal(t, 2, tables.Installs(firmware.Acpi20TableGUID))
	assert.Equal(t, 0, bus.Subscribers(firmware.SignalExitBootServices))
}

func TestTransitionSlotAbsent(t *testing.T) {
	tables := platformTables(t)
	arb, _ := activated(t, tables)
	require.NoError(t, tables.Install(firmware.FdtTableGUID, nil))

	assert.Equal(t, DecisionNoArtifact, arb.OnRuntimeTransition())
	v1, v2 := acpiPresent(tables)
	assert.True(t, v1)
	assert.True(t, v2)
}

func TestTransitionReplacedSlot(t *testing.T) {
	tables := platformTables(t)
	arb, _ := activated(t, tables)
	require.NoError(t, tables.Install(firmware.FdtTableGUID, baseBlob("someone else")))

	assert.Equal(t, DecisionRetracted, arb.OnRuntimeTransition())
}

func TestArbiterRequiresActivation(t *testing.T) {
	arb := NewArbiter(firmware.NewMemoryTables(), nil)
	assert.Equal(t, ArbiterUnregistered, arb.State())
	_, ok := arb.Record()
	assert.False(t, ok)

	assert.Error(t, arb.Arm(firmware.NewBus()))
	assert.Equal(t, DecisionPending, arb.OnRuntimeTransition())
	assert.Equal(t, ArbiterUnregistered, arb.State())
}
