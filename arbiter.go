package dtbloader

import (
	"go.uber.org/zap"

	"github.com/darkit/dtbloader/fdt"
	"github.com/darkit/dtbloader/firmware"
)

// ArbiterState 仲裁器状态
type ArbiterState int

const (
	ArbiterUnregistered ArbiterState = iota
	ArbiterActivated
	ArbiterResolved
)

func (s ArbiterState) String() string {
	switch s {
	case ArbiterUnregistered:
		return "unregistered"
	case ArbiterActivated:
		return "activated"
	case ArbiterResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Decision 运行时切换时的裁决
type Decision int

const (
	// DecisionPending 尚未裁决
	DecisionPending Decision = iota
	// DecisionNoArtifact 配置槽为空，不做任何处理
	DecisionNoArtifact
	// DecisionUnchanged 校验和未变，ACPI 在用，保留
	DecisionUnchanged
	// DecisionRetracted 设备树被消费并修改过，ACPI 注册已撤销
	DecisionRetracted
)

func (d Decision) String() string {
	switch d {
	case DecisionPending:
		return "pending"
	case DecisionNoArtifact:
		return "no_artifact"
	case DecisionUnchanged:
		return "unchanged"
	case DecisionRetracted:
		return "retracted"
	default:
		return "unknown"
	}
}

// ActivationRecord 激活时刻的校验和与声明大小，设置后不再修改
type ActivationRecord struct {
	Checksum  uint32
	TotalSize uint32
}

// Arbiter installs the artifact into the device tree slot and, at the
// runtime transition, decides whether the ACPI registrations stay.
//
// A consumer that boots from the device tree edits it before the transition
// (the kernel stub writes /chosen), so a changed checksum means the device
// tree is in use and ACPI is retracted. An unchanged checksum means ACPI is
// in use and nothing is touched.
type Arbiter struct {
	Tables firmware.Tables
	Logger *zap.Logger

	state    ArbiterState
	record   ActivationRecord
	decision Decision
	cancel   func()
}

// NewArbiter 创建仲裁器
func NewArbiter(tables firmware.Tables, logger *zap.Logger) *Arbiter {
	return &Arbiter{Tables: tables, Logger: orNop(logger)}
}

// State 当前状态
func (a *Arbiter) State() ArbiterState { return a.state }

// Decision 裁决结果，未裁决时为 DecisionPending
func (a *Arbiter) Decision() Decision { return a.decision }

// Record 返回激活记录；未激活时 ok 为 false
func (a *Arbiter) Record() (rec ActivationRecord, ok bool) {
	return a.record, a.state != ArbiterUnregistered
}

// Activate 把 artifact 安装到设备树配置槽并记录其校验和。
//
// 校验和覆盖头部声明的 totalsize，与运行时切换时的计算方式一致。
func (a *Arbiter) Activate(art *Artifact) (ActivationRecord, error) {
	log := orNop(a.Logger)
	if a.state != ArbiterUnregistered {
		return ActivationRecord{}, newError(Unexpected, ErrInvalidState, "artifact already activated", nil).
			WithDetail("state", a.state.String())
	}

	data := art.Bytes()
	rec := ActivationRecord{Checksum: fdt.Checksum(data), TotalSize: fdt.TotalSize(data)}
	if err := a.Tables.Install(firmware.FdtTableGUID, data); err != nil {
		return ActivationRecord{}, newError(Unexpected, ErrActivation, "failed to install device tree table", err)
	}

	a.record = rec
	a.state = ArbiterActivated
	log.Info("device tree activated", crcField(rec.Checksum), zap.Uint32(fieldSize, rec.TotalSize), zap.String(fieldPath, art.Path()))
	return rec, nil
}

// Arm 订阅运行时切换事件
func (a *Arbiter) Arm(events firmware.EventSource) error {
	if a.state != ArbiterActivated {
		return newError(Unexpected, ErrInvalidState, "arbiter not activated", nil).
			WithDetail("state", a.state.String())
	}
	if a.cancel == nil {
		a.cancel = events.Subscribe(firmware.SignalExitBootServices, func() { a.OnRuntimeTransition() })
	}
	return nil
}

// OnRuntimeTransition makes the one-time decision. Later calls return the
// first decision without touching any table. It only reads the device tree
// slot and clears table registrations.
func (a *Arbiter) OnRuntimeTransition() Decision {
	if a.state != ArbiterActivated {
		return a.decision
	}
	a.state = ArbiterResolved
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.decision = a.decide()
	return a.decision
}

func (a *Arbiter) decide() Decision {
	log := orNop(a.Logger)
	data, ok := a.Tables.Lookup(firmware.FdtTableGUID)
	if !ok {
		log.Warn("device tree table gone at transition")
		return DecisionNoArtifact
	}
	sum := fdt.Checksum(data)
	if sum == a.record.Checksum {
		log.Info("device tree unchanged, keeping ACPI", crcField(sum))
		return DecisionUnchanged
	}

	log.Info("device tree in use, retracting ACPI", crcField(sum), zap.String("activated_crc32", fmtCRC(a.record.Checksum)))
	for _, guid := range firmware.AcpiTableGUIDs {
		if err := a.Tables.Install(guid, nil); err != nil {
			log.Warn("failed to retract table", zap.Stringer("guid", guid), zap.Error(err))
		}
	}
	return DecisionRetracted
}
