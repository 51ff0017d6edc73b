package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/botdesk-next/internal/config"
	"github.com/botdesk-next/internal/constants"
	"github.com/botdesk-next/internal/logger"
	"github.com/botdesk-next/internal/queue"
	"github.com/botdesk-next/internal/service"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
)

const defaultRelayInterval = 30 * time.Second

// Service 异步队列服务：任务消费、结算调度与发件箱中继
type Service struct {
	name      string
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	consumer  *Consumer
}

// NewService 创建异步队列服务
func NewService(cfg *config.Config, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Queue.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(&cfg.Queue)
	serverCfg.Logger = logger.S()
	server := asynq.NewServer(opt, serverCfg)
	scheduler, err := queue.NewPayoutScheduler(&cfg.Queue, &cfg.Payout)
	if err != nil {
		return nil, err
	}
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:      "worker",
		server:    server,
		scheduler: scheduler,
		mux:       mux,
		consumer:  consumer,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务，阻塞到 ctx 结束
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if err := s.server.Start(s.mux); err != nil {
		return err
	}
	if s.scheduler != nil {
		if err := s.scheduler.Start(); err != nil {
			return err
		}
		logger.Infow("worker_payout_scheduler_started", "cron", queue.CronSpec(&s.consumer.Config.Payout))
	}
	if s.consumer != nil && s.consumer.NotificationService != nil {
		go runRelayLoop(ctx, s.consumer.NotificationService, relayInterval(s.consumer.Config))
	}
	<-ctx.Done()
	return nil
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	if s.scheduler != nil {
		s.scheduler.Shutdown()
	}
	s.server.Shutdown()
	return nil
}

// LocalService 未启用队列时的单机模式：本地 cron 触发结算，中继循环直接投递通知
type LocalService struct {
	name     string
	cron     *cron.Cron
	consumer *Consumer
	runWG    sync.WaitGroup
	runCtx   context.Context
	cancel   context.CancelFunc
}

// NewLocalService 创建单机后台服务
func NewLocalService(cfg *config.Config, consumer *Consumer) (*LocalService, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if consumer == nil || consumer.Container == nil {
		return nil, errors.New("consumer is nil")
	}
	loc, err := queue.LoadLocation(&cfg.Payout)
	if err != nil {
		return nil, err
	}
	s := &LocalService{
		name:     "scheduler",
		cron:     cron.New(cron.WithLocation(loc)),
		consumer: consumer,
	}
	s.runCtx, s.cancel = context.WithCancel(context.Background())
	if _, err := s.cron.AddFunc(queue.CronSpec(&cfg.Payout), s.runScheduledBatch); err != nil {
		s.cancel()
		return nil, err
	}
	return s, nil
}

// Name 服务名称
func (s *LocalService) Name() string {
	if s == nil || s.name == "" {
		return "scheduler"
	}
	return s.name
}

// Start 启动本地调度，阻塞到 ctx 结束
func (s *LocalService) Start(ctx context.Context) error {
	if s == nil || s.cron == nil {
		return errors.New("scheduler not initialized")
	}
	s.cron.Start()
	logger.Infow("worker_local_scheduler_started", "cron", queue.CronSpec(&s.consumer.Config.Payout))
	if s.consumer.NotificationService != nil {
		go runRelayLoop(ctx, s.consumer.NotificationService, relayInterval(s.consumer.Config))
	}
	<-ctx.Done()
	return nil
}

// Stop 停止调度并等待运行中的批次退出
func (s *LocalService) Stop(ctx context.Context) error {
	if s == nil || s.cron == nil {
		return nil
	}
	stopped := s.cron.Stop()
	s.cancel()
	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		s.runWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *LocalService) runScheduledBatch() {
	if s.consumer.PayoutBatchService == nil {
		return
	}
	s.runWG.Add(1)
	defer s.runWG.Done()
	run, err := s.consumer.PayoutBatchService.Run(s.runCtx, constants.PayoutTriggerCron)
	if err != nil {
		if errors.Is(err, service.ErrPayoutRunInProgress) {
			logger.Infow("worker_local_batch_skip_in_progress")
			return
		}
		logger.Warnw("worker_local_batch_failed", "error", err)
		return
	}
	logger.Infow("worker_local_batch_done", "run_id", run.ID, "status", run.Status)
}

// runRelayLoop 周期性回收僵死事件并补投到期通知
func runRelayLoop(ctx context.Context, notifier *service.NotificationService, interval time.Duration) {
	runOnce := func() {
		handled, err := notifier.RelayDue(ctx)
		if err != nil && ctx.Err() == nil {
			logger.Warnw("worker_notification_relay_failed", "error", err)
			return
		}
		if handled > 0 {
			logger.Debugw("worker_notification_relay_done", "handled", handled)
		}
	}
	runOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}

func relayInterval(cfg *config.Config) time.Duration {
	if cfg == nil || cfg.Notification.RelayIntervalSeconds <= 0 {
		return defaultRelayInterval
	}
	return time.Duration(cfg.Notification.RelayIntervalSeconds) * time.Second
}
