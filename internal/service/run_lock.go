package service

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/botdesk-next/internal/cache"
	"github.com/botdesk-next/internal/repository"

	"github.com/google/uuid"
)

// ErrRunLockHeld 租约被其他执行者持有
var ErrRunLockHeld = errors.New("run lock held by another holder")

// RunLease 已获取的租约，释放必须在所有退出路径上执行
type RunLease interface {
	Holder() string
	Backend() string
	Refresh(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// RunLocker 命名租约：Redis 可用时使用 SET NX，否则落到数据库租约表
type RunLocker struct {
	name      string
	leaseRepo repository.RunLeaseRepository
	now       func() time.Time
}

// NewRunLocker 创建命名租约
func NewRunLocker(name string, leaseRepo repository.RunLeaseRepository) *RunLocker {
	return &RunLocker{
		name:      name,
		leaseRepo: leaseRepo,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Acquire 获取租约，已被持有时返回 ErrRunLockHeld
func (l *RunLocker) Acquire(ctx context.Context, ttl time.Duration) (RunLease, error) {
	holder := newLeaseHolder()
	if cache.Enabled() {
		ok, err := cache.TryLock(ctx, l.redisKey(), holder, ttl)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrRunLockHeld
		}
		return &redisRunLease{key: l.redisKey(), holder: holder}, nil
	}
	if l.leaseRepo == nil {
		return nil, errors.New("run lease repository not configured")
	}
	ok, err := l.leaseRepo.TryAcquire(l.name, holder, ttl, l.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRunLockHeld
	}
	return &dbRunLease{locker: l, holder: holder}, nil
}

func (l *RunLocker) redisKey() string {
	return "lock:" + l.name
}

type redisRunLease struct {
	key    string
	holder string
}

func (l *redisRunLease) Holder() string  { return l.holder }
func (l *redisRunLease) Backend() string { return "redis" }

func (l *redisRunLease) Refresh(ctx context.Context, ttl time.Duration) error {
	return cache.RefreshLock(ctx, l.key, l.holder, ttl)
}

func (l *redisRunLease) Release(ctx context.Context) error {
	return cache.Unlock(ctx, l.key, l.holder)
}

type dbRunLease struct {
	locker *RunLocker
	holder string
}

func (l *dbRunLease) Holder() string  { return l.holder }
func (l *dbRunLease) Backend() string { return "database" }

func (l *dbRunLease) Refresh(_ context.Context, ttl time.Duration) error {
	ok, err := l.locker.leaseRepo.Refresh(l.locker.name, l.holder, ttl, l.locker.now())
	if err != nil {
		return err
	}
	if !ok {
		return cache.ErrLockNotHeld
	}
	return nil
}

func (l *dbRunLease) Release(_ context.Context) error {
	return l.locker.leaseRepo.Release(l.locker.name, l.holder)
}

func newLeaseHolder() string {
	host, err := os.Hostname()
	host = strings.TrimSpace(host)
	if err != nil || host == "" {
		host = "unknown"
	}
	if len(host) > 24 {
		host = host[:24]
	}
	return host + ":" + uuid.NewString()
}
