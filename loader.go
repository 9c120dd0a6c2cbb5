// Package dtbloader picks the device tree blob for this machine from its
// SMBIOS identity, prepares it and installs it as the active configuration
// table. At the hand-off to the operating system it decides whether the ACPI
// tables stay registered.
//
// 流程：身份记录 -> 按优先级派生 CHID 查找 dtb/<chid>.dtb（最后回退到覆盖
// 文件）-> 预留补丁空间 -> 合并面板 overlay -> 安装并记录校验和 -> 退出引导
// 服务时比较校验和。
package dtbloader

import (
	"errors"
	"io/fs"

	"go.uber.org/zap"

	"github.com/darkit/dtbloader/chid"
	"github.com/darkit/dtbloader/efivar"
	"github.com/darkit/dtbloader/firmware"
	"github.com/darkit/dtbloader/inventory"
	"github.com/darkit/dtbloader/smbios"
)

// LoaderState 加载器状态
type LoaderState int

const (
	// LoaderIdle 尚未启动
	LoaderIdle LoaderState = iota
	// LoaderDeferred 身份表尚未发布，已订阅通知
	LoaderDeferred
	// LoaderCompleted 流程已执行（无论成功与否），之后的通知都被忽略
	LoaderCompleted
)

func (s LoaderState) String() string {
	switch s {
	case LoaderIdle:
		return "idle"
	case LoaderDeferred:
		return "deferred"
	case LoaderCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Options 加载器依赖
type Options struct {
	FS        fs.FS
	Layout    Layout
	Priority  chid.PriorityList
	Headroom  int
	Alloc     Allocator
	Identity  smbios.Source
	Vars      efivar.Store
	Tables    firmware.Tables
	Events    firmware.EventSource
	Inventory inventory.Registrar
	Version   uint32
	Logger    *zap.Logger
}

// Result 一次加载的结果
type Result struct {
	Record     chid.Record
	Resolution *Resolution
	// GrowthErr 增长失败的原因，nil 表示已预留空间
	GrowthErr  error
	Overlay    OverlayOutcome
	OverlayErr error
	Activation ActivationRecord
	// Err 非 nil 表示没有激活任何 blob
	Err error
}

// Loader 串联身份读取、解析、增长、面板 overlay、激活与仲裁
type Loader struct {
	opts    Options
	log     *zap.Logger
	state   LoaderState
	cancels []func()
	result  *Result
	arbiter *Arbiter
}

// NewLoader 校验依赖并创建加载器
func NewLoader(opts Options) (*Loader, error) {
	missing := func(name string) error {
		return newError(Invalid, ErrInvalidConfig, "loader dependency missing", nil).WithDetail("field", name)
	}
	switch {
	case opts.FS == nil:
		return nil, missing("FS")
	case opts.Identity == nil:
		return nil, missing("Identity")
	case opts.Tables == nil:
		return nil, missing("Tables")
	case opts.Events == nil:
		return nil, missing("Events")
	}
	if opts.Layout == (Layout{}) {
		opts.Layout = DefaultLayout()
	}
	if len(opts.Priority) == 0 {
		opts.Priority = chid.DefaultPriority
	}
	if err := opts.Priority.Validate(); err != nil {
		return nil, newError(Invalid, ErrInvalidConfig, "invalid priority list", err)
	}
	if opts.Headroom <= 0 {
		opts.Headroom = DefaultHeadroom
	}
	if opts.Alloc == nil {
		opts.Alloc = LimitedAllocator(DefaultMaxArtifactSize)
	}
	if opts.Vars == nil {
		opts.Vars = efivar.NewMemory()
	}
	opts.Identity = smbios.Once(opts.Identity)
	opts.Logger = orNop(opts.Logger)

	return &Loader{
		opts:    opts,
		log:     opts.Logger,
		arbiter: NewArbiter(opts.Tables, opts.Logger),
	}, nil
}

// State 当前状态
func (l *Loader) State() LoaderState { return l.state }

// Arbiter 返回加载器使用的仲裁器
func (l *Loader) Arbiter() *Arbiter { return l.arbiter }

// Result 返回加载结果；流程尚未执行时 ok 为 false
func (l *Loader) Result() (*Result, bool) {
	return l.result, l.result != nil
}

// Start registers the component and runs the pipeline. If the identity
// tables are not published yet it subscribes to both SMBIOS signals and
// returns nil; the pipeline then runs on the first signal that finds them.
// Calling Start again is a no-op.
//
// Only a failed resolution or a failed base allocation is returned.
func (l *Loader) Start() error {
	if l.state != LoaderIdle {
		return nil
	}
	l.register()

	rec, err := l.opts.Identity.Identity()
	if errors.Is(err, smbios.ErrNotAvailable) {
		l.state = LoaderDeferred
		l.log.Info("identity tables not available, deferring")
		for _, sig := range []firmware.Signal{firmware.SignalSMBIOS, firmware.SignalSMBIOS3} {
			l.cancels = append(l.cancels, l.opts.Events.Subscribe(sig, l.onTables))
		}
		return nil
	}
	if err != nil {
		l.complete()
		err = newError(Unexpected, ErrIdentityMissing, "failed to read identity", err)
		l.result = &Result{Err: err}
		l.log.Error("identity unreadable", zap.Error(err))
		return err
	}
	return l.run(rec)
}

func (l *Loader) onTables() {
	if l.state != LoaderDeferred {
		return
	}
	rec, err := l.opts.Identity.Identity()
	if err != nil {
		l.log.Debug("identity still unavailable", zap.Error(err))
		return
	}
	// 延迟执行时没有调用方接收错误，结果保存在 Result 中
	_ = l.run(rec)
}

func (l *Loader) register() {
	if l.opts.Inventory == nil {
		return
	}
	if err := l.opts.Inventory.Register(inventory.ComponentClass, l.opts.Version); err != nil {
		l.log.Warn("inventory registration failed", zap.Error(
			newError(Unexpected, ErrInventoryRegister, "inventory registration failed", err)))
	}
}

func (l *Loader) complete() {
	l.state = LoaderCompleted
	for _, cancel := range l.cancels {
		cancel()
	}
	l.cancels = nil
}

func (l *Loader) run(rec chid.Record) error {
	l.complete()
	res := &Result{Record: rec}
	l.result = res

	resolver := NewResolver(l.opts.FS, l.opts.Layout, l.opts.Alloc, l.log)
	resolution, err := resolver.Resolve(rec, l.opts.Priority)
	if err != nil {
		res.Err = err
		l.log.Error("no device tree activated", kindField(err), zap.Error(err))
		return err
	}
	res.Resolution = resolution

	res.GrowthErr = NewGrowth(l.opts.Alloc, l.log).Grow(resolution.Artifact, l.opts.Headroom)

	panel := &PanelOverlay{
		FS:     l.opts.FS,
		Layout: l.opts.Layout,
		Vars:   l.opts.Vars,
		Alloc:  l.opts.Alloc,
		Logger: l.log,
	}
	res.Overlay, res.OverlayErr = panel.Apply(resolution)

	act, err := l.arbiter.Activate(resolution.Artifact)
	if err != nil {
		res.Err = err
		l.log.Error("activation failed", zap.Error(err))
		return err
	}
	res.Activation = act

	if err := l.arbiter.Arm(l.opts.Events); err != nil {
		l.log.Warn("failed to arm transition hook", zap.Error(err))
	}
	return nil
}
