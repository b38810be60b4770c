package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Service is the directory-sync event delivery pipeline: the durable queue
// front door (Push), the lock-guarded drain loop (Process) and the
// synchronous direct-send path when batching is disabled. Construct one per
// process and hand it to whatever triggers draining; there is no package
// level instance.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper

	store    EventStore
	locker   Locker
	resolver DirectoryResolver
	sender   WebhookSender
	eventLog WebhookEventLogger
	backoff  RetryBackoff
	direct   *DirectDispatcher

	nowFn func() time.Time

	// draining prevents overlapping Process calls within this instance; the
	// Locker handles cross-instance exclusion.
	draining atomic.Bool
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("dsync", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("dsync"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.store == nil {
		builder.store = NewMemoryEventStore()
	}
	if builder.locker == nil {
		builder.locker = NewMemoryLocker()
	}
	if builder.nowFn == nil {
		builder.nowFn = func() time.Time { return time.Now().UTC() }
	}

	if builder.resolver == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: directory resolver is required"))
	}
	if builder.sender == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: webhook sender is required"))
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	service := &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		store:           builder.store,
		locker:          builder.locker,
		resolver:        builder.resolver,
		sender:          builder.sender,
		eventLog:        builder.eventLog,
		backoff:         builder.backoff,
		nowFn:           builder.nowFn,
	}
	service.direct = &DirectDispatcher{
		Sender:   builder.sender,
		EventLog: builder.eventLog,
		Now:      builder.nowFn,
	}
	return service, nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	if mapped := s.errorMapper(err); mapped != nil {
		return mapped
	}
	return err
}

func (s *Service) now() time.Time {
	if s != nil && s.nowFn != nil {
		return s.nowFn().UTC()
	}
	return time.Now().UTC()
}
