package circuit

import (
	"sync"
	"time"

	"tradelab/internal/logger"
)

const (
	DefaultThreshold = 5
	DefaultTimeout   = 300 * time.Second
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot 是熔断器某一时刻的只读视图。
type Snapshot struct {
	State       State
	Failures    int
	LastFailure time.Time
}

type Option func(*Breaker)

// WithClock 注入时钟，测试里用来模拟超时流逝。
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// WithStateChangeHandler 替换默认的告警日志，回调在状态变更的调用方 goroutine 内按序执行。
func WithStateChangeHandler(handler func(name string, from, to State)) Option {
	return func(b *Breaker) {
		b.onStateChange = handler
	}
}

// Breaker 为单个数据源提供失败隔离，仅存在于内存中，进程重启即复位。
type Breaker struct {
	mu            sync.Mutex
	notifyMu      sync.Mutex
	name          string
	state         State
	failures      int
	threshold     int
	timeout       time.Duration
	lastFailure   time.Time
	trialInFlight bool
	trialStarted  time.Time
	now           func() time.Time
	onStateChange func(name string, from, to State)
}

// change 是在锁内记下、解锁后再投递的状态变更。
type change struct {
	from, to State
	failures int
}

func New(name string, threshold int, timeout time.Duration, opts ...Option) *Breaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	b := &Breaker{
		name:      name,
		state:     StateClosed,
		threshold: threshold,
		timeout:   timeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) Name() string { return b.name }

// CanAttempt 判断是否允许发起请求。open 状态在超时后转为 half_open，
// half_open 期间同一时刻只放行一次试探请求，直到其结果被记录或被释放。
func (b *Breaker) CanAttempt() bool {
	b.mu.Lock()
	var ch *change
	allowed := false
	now := b.now()
	switch b.state {
	case StateClosed:
		allowed = true
	case StateOpen:
		if now.Sub(b.lastFailure) > b.timeout {
			ch = b.transition(StateHalfOpen)
			b.startTrial(now)
			allowed = true
		}
	default:
		// 试探请求超过 timeout 仍未回报时视为丢失，允许重新试探
		if !b.trialInFlight || now.Sub(b.trialStarted) > b.timeout {
			b.startTrial(now)
			allowed = true
		}
	}
	b.unlockAndNotify(ch)
	return allowed
}

// Peek 与 CanAttempt 相同的判断，但不改变状态，供状态查询使用。
func (b *Breaker) Peek() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		return now.Sub(b.lastFailure) > b.timeout
	default:
		return !b.trialInFlight || now.Sub(b.trialStarted) > b.timeout
	}
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	var ch *change
	b.failures = 0
	b.trialInFlight = false
	if b.state != StateClosed {
		ch = b.transition(StateClosed)
	}
	b.unlockAndNotify(ch)
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	var ch *change
	b.failures++
	b.lastFailure = b.now()
	b.trialInFlight = false

	switch b.state {
	case StateClosed:
		if b.failures >= b.threshold {
			ch = b.transition(StateOpen)
		}
	case StateHalfOpen:
		ch = b.transition(StateOpen)
	}
	b.unlockAndNotify(ch)
}

// Release 归还已放行但没有结论的试探名额（调用被取消、或失败不计入熔断），状态不变。
func (b *Breaker) Release() {
	b.mu.Lock()
	b.trialInFlight = false
	b.mu.Unlock()
}

// Reset 清空计数并回到 closed，用于数据源重新配置后。
func (b *Breaker) Reset() {
	b.mu.Lock()
	var ch *change
	b.failures = 0
	b.lastFailure = time.Time{}
	b.trialInFlight = false
	if b.state != StateClosed {
		ch = b.transition(StateClosed)
	}
	b.unlockAndNotify(ch)
}

func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		State:       b.state,
		Failures:    b.failures,
		LastFailure: b.lastFailure,
	}
}

func (b *Breaker) startTrial(now time.Time) {
	b.trialInFlight = true
	b.trialStarted = now
}

// transition 必须持锁调用，通知经 unlockAndNotify 在解锁后同步投递。
func (b *Breaker) transition(to State) *change {
	from := b.state
	b.state = to
	return &change{from: from, to: to, failures: b.failures}
}

// unlockAndNotify 在释放 mu 之前占住 notifyMu，使通知按状态变更的先后依次送达。
// 回调运行期间不得再调用同一个 Breaker 的方法。
func (b *Breaker) unlockAndNotify(ch *change) {
	if ch == nil {
		b.mu.Unlock()
		return
	}
	b.notifyMu.Lock()
	b.mu.Unlock()
	defer b.notifyMu.Unlock()
	if b.onStateChange != nil {
		b.onStateChange(b.name, ch.from, ch.to)
		return
	}
	logger.Warnf("[circuit] %s state change: %s -> %s (failures=%d/%d, timeout=%s)",
		b.name, ch.from, ch.to, ch.failures, b.threshold, b.timeout)
}
