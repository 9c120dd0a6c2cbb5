package firmware

import "sync"

// Signal 平台事件名
type Signal string

const (
	// SignalSMBIOS SMBIOS 2.x 表已注册
	SignalSMBIOS Signal = "smbios-table-installed"
	// SignalSMBIOS3 SMBIOS 3.x 表已注册
	SignalSMBIOS3 Signal = "smbios3-table-installed"
	// SignalExitBootServices 交接给操作系统前的最后一次通知
	SignalExitBootServices Signal = "exit-boot-services"
)

// EventSource 事件订阅接口，返回的 cancel 可重复调用
type EventSource interface {
	Subscribe(sig Signal, fn func()) (cancel func())
}

type subscription struct {
	id int
	fn func()
}

// Bus 同步事件总线。
//
// Fire 在调用方 goroutine 上按订阅顺序执行处理函数；处理函数内可以安全地
// 取消订阅或发起新的订阅，新订阅只对下一次 Fire 生效。
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[Signal][]subscription
	fired  map[Signal]int
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{
		subs:  make(map[Signal][]subscription),
		fired: make(map[Signal]int),
	}
}

func (b *Bus) Subscribe(sig Signal, fn func()) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[sig] = append(b.subs[sig], subscription{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[sig]
		for i, s := range subs {
			if s.id == id {
				b.subs[sig] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Fire runs every handler subscribed to sig at the time of the call.
func (b *Bus) Fire(sig Signal) {
	b.mu.Lock()
	b.fired[sig]++
	snapshot := append([]subscription(nil), b.subs[sig]...)
	b.mu.Unlock()

	for _, s := range snapshot {
		if b.active(sig, s.id) {
			s.fn()
		}
	}
}

// active 处理函数可能在本轮 Fire 中被前一个处理函数取消
func (b *Bus) active(sig Signal, id int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs[sig] {
		if s.id == id {
			return true
		}
	}
	return false
}

// Subscribers 返回当前订阅数
func (b *Bus) Subscribers(sig Signal) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[sig])
}

// Fired 返回事件触发次数
func (b *Bus) Fired(sig Signal) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fired[sig]
}
