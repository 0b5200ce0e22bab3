package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service is the validated dependency container the relay components hang
// off: resolved configuration, the collaborator clients, and the shared
// logging/error plumbing. Workflow packages receive their dependencies from
// here rather than constructing collaborators themselves.
type Service struct {
	config         Config
	logger         Logger
	loggerProvider LoggerProvider
	errorMapper    ErrorMapper
	transport      Transport
	backend        Backend
	sessions       SessionStore
	channel        DeliveryChannel
	claims         IdempotencyClaimStore
	jobEnqueuer    JobEnqueuer
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("commercebot", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("commercebot"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorMapper == nil {
		builder.errorMapper = relayErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
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

	if builder.transport == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: transport is required"))
	}
	if builder.backend == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: backend client is required"))
	}
	if builder.sessions == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: session store is required"))
	}
	if builder.channel == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: delivery channel is required"))
	}

	return &Service{
		config:         finalConfig,
		logger:         logger,
		loggerProvider: provider,
		errorMapper:    builder.errorMapper,
		transport:      builder.transport,
		backend:        builder.backend,
		sessions:       builder.sessions,
		channel:        builder.channel,
		claims:         builder.claims,
		jobEnqueuer:    builder.jobEnqueuer,
	}, nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Logger() Logger {
	if s == nil || s.logger == nil {
		return glog.Nop()
	}
	return s.logger
}

func (s *Service) Transport() Transport {
	if s == nil {
		return nil
	}
	return s.transport
}

func (s *Service) Backend() Backend {
	if s == nil {
		return nil
	}
	return s.backend
}

func (s *Service) Sessions() SessionStore {
	if s == nil {
		return nil
	}
	return s.sessions
}

func (s *Service) Channel() DeliveryChannel {
	if s == nil {
		return nil
	}
	return s.channel
}

func (s *Service) Claims() IdempotencyClaimStore {
	if s == nil {
		return nil
	}
	return s.claims
}

func (s *Service) JobEnqueuer() JobEnqueuer {
	if s == nil {
		return nil
	}
	return s.jobEnqueuer
}

// MapError funnels any component error through the relay envelope so every
// caller sees consistent categories and text codes.
func (s *Service) MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return relayErrorMapper(err)
	}
	return s.errorMapper(err)
}

// ObserveOperation logs one relay operation with its outcome and duration.
func (s *Service) ObserveOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	if s == nil {
		return
	}
	operation = strings.TrimSpace(strings.ToLower(operation))
	if operation == "" {
		operation = "unknown"
	}
	status := "success"
	if err != nil {
		status = "failure"
	}

	contextFields := cloneFields(fields)
	contextFields["event_type"] = operation
	contextFields["status"] = status
	contextFields["duration_ms"] = time.Since(startedAt).Milliseconds()
	if err != nil {
		contextFields["error"] = err.Error()
	}

	if err != nil {
		s.logError(ctx, operation+" failed", contextFields)
		return
	}
	s.logInfo(ctx, operation+" succeeded", contextFields)
}

func (s *Service) logInfo(ctx context.Context, message string, fields map[string]any) {
	s.logWithLevel(ctx, "info", message, fields)
}

func (s *Service) logError(ctx context.Context, message string, fields map[string]any) {
	s.logWithLevel(ctx, "error", message, fields)
}

func (s *Service) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if s == nil || s.logger == nil {
		return
	}
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return relayErrorMapper(err)
	}
	if mapped := mapper(err); mapped != nil {
		return mapped
	}
	return err
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}
