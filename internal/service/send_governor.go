package service

import (
	"context"
	"sync"
	"time"

	"github.com/botdesk-next/internal/cache"
	"github.com/botdesk-next/internal/config"
	"github.com/botdesk-next/internal/logger"
)

const (
	governorKeyPrefix = "mail:"
	governorKeyTTL    = 48 * time.Hour
	governorDayLayout = "2006-01-02"
)

// GovernorUsage 当日发信用量
type GovernorUsage struct {
	Day           string  `json:"day"`
	Used          int64   `json:"used"`
	Limit         int64   `json:"limit"`
	Ratio         float64 `json:"ratio"`
	WarnRatio     float64 `json:"warn_ratio"`
	CriticalRatio float64 `json:"critical_ratio"`
	Backend       string  `json:"backend"`
}

// SendGovernor 全局每日发信配额，Redis 可用时跨实例共享，否则退回进程内计数
type SendGovernor struct {
	mu            sync.Mutex
	limit         int64
	warnRatio     float64
	criticalRatio float64
	now           func() time.Time

	day          string
	count        int64
	warnedDay    string
	criticalDay  string
	redisBackend bool
}

// NewSendGovernor 创建发信配额控制器
func NewSendGovernor(cfg config.NotificationConfig) *SendGovernor {
	return &SendGovernor{
		limit:         int64(cfg.DailyLimit),
		warnRatio:     cfg.WarnRatio,
		criticalRatio: cfg.CriticalRatio,
		now:           time.Now,
	}
}

// SendSlot 已占用的发信额度，发送失败时通过 Release 归还
type SendSlot struct {
	day    string
	shared bool
}

// Reserve 占用一次发信额度，额度耗尽时返回 false
// 先占后发可避免并发投递越过上限；只有发送成功的额度最终计入用量。
func (g *SendGovernor) Reserve(ctx context.Context) (SendSlot, bool) {
	if g == nil || g.limit <= 0 {
		return SendSlot{}, true
	}
	day := g.today()

	if cache.Enabled() {
		ok, used, err := cache.IncrWithinLimit(ctx, governorKeyPrefix+day, g.limit, governorKeyTTL)
		if err == nil {
			g.mu.Lock()
			g.redisBackend = true
			g.mu.Unlock()
			g.observe(day, used, ok)
			return SendSlot{day: day, shared: true}, ok
		}
		logger.Warnw("send_governor_redis_failed", "day", day, "error", err)
	}

	g.mu.Lock()
	g.redisBackend = false
	g.rollover(day)
	if g.count >= g.limit {
		used := g.count
		g.mu.Unlock()
		g.observe(day, used, false)
		return SendSlot{}, false
	}
	g.count++
	used := g.count
	g.mu.Unlock()
	g.observe(day, used, true)
	return SendSlot{day: day}, true
}

// Release 归还未成功发送的额度，重试不会耗尽当日配额
func (g *SendGovernor) Release(ctx context.Context, slot SendSlot) {
	if g == nil || g.limit <= 0 || slot.day == "" {
		return
	}
	if slot.shared {
		if _, err := cache.DecrCounter(ctx, governorKeyPrefix+slot.day); err != nil {
			logger.Warnw("send_governor_release_failed", "day", slot.day, "error", err)
		}
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.day == slot.day && g.count > 0 {
		g.count--
	}
}

// Usage 返回当日用量
func (g *SendGovernor) Usage(ctx context.Context) GovernorUsage {
	usage := GovernorUsage{Backend: "memory"}
	if g == nil {
		return usage
	}
	day := g.today()
	usage.Day = day
	usage.Limit = g.limit
	usage.WarnRatio = g.warnRatio
	usage.CriticalRatio = g.criticalRatio

	if cache.Enabled() {
		if used, err := cache.GetCounter(ctx, governorKeyPrefix+day); err == nil {
			usage.Used = used
			usage.Backend = "redis"
		}
	}
	if usage.Backend == "memory" {
		g.mu.Lock()
		g.rollover(day)
		usage.Used = g.count
		g.mu.Unlock()
	}
	if usage.Limit > 0 {
		usage.Ratio = float64(usage.Used) / float64(usage.Limit)
	}
	return usage
}

func (g *SendGovernor) today() string {
	return g.now().UTC().Format(governorDayLayout)
}

// rollover 跨天清零，调用方需持有锁
func (g *SendGovernor) rollover(day string) {
	if g.day != day {
		g.day = day
		g.count = 0
	}
}

// observe 用量越过阈值时每天各告警一次
func (g *SendGovernor) observe(day string, used int64, admitted bool) {
	if g.limit <= 0 {
		return
	}
	ratio := float64(used) / float64(g.limit)

	g.mu.Lock()
	fireCritical := g.criticalRatio > 0 && ratio >= g.criticalRatio && g.criticalDay != day
	if fireCritical {
		g.criticalDay = day
		g.warnedDay = day
	}
	fireWarn := !fireCritical && g.warnRatio > 0 && ratio >= g.warnRatio && g.warnedDay != day
	if fireWarn {
		g.warnedDay = day
	}
	g.mu.Unlock()

	switch {
	case !admitted:
		logger.Warnw("send_governor_quota_exhausted", "day", day, "used", used, "limit", g.limit)
	case fireCritical:
		logger.Errorw("send_governor_quota_critical", "day", day, "used", used, "limit", g.limit, "ratio", ratio)
	case fireWarn:
		logger.Warnw("send_governor_quota_warning", "day", day, "used", used, "limit", g.limit, "ratio", ratio)
	}
}
