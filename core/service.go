package core

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service is the resolved runtime: configuration built once at start-up plus
// the collaborators every request path shares. It is immutable after
// NewService returns.
type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	parser            *Parser
	partStore         PartStore
	deliveryLedger    DeliveryLedger
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	Parser            *Parser
	PartStore         PartStore
	DeliveryLedger    DeliveryLedger
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("smshook", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("smshook"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = MapError
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

	parser, err := NewParser(finalConfig.Parser)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if (builder.partStore == nil || builder.deliveryLedger == nil) && builder.repositoryFactory != nil {
		var stores StoreProvider
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			stores, err = storeFactory.BuildStores(builder.persistenceClient)
			if err != nil {
				return nil, mapBuildError(builder.errorMapper, err)
			}
		} else if provided, ok := builder.repositoryFactory.(StoreProvider); ok {
			stores = provided
		}
		if stores != nil {
			if builder.partStore == nil {
				builder.partStore = stores.PartStore()
			}
			if builder.deliveryLedger == nil {
				builder.deliveryLedger = stores.DeliveryLedger()
			}
		}
	}
	if builder.partStore == nil {
		builder.partStore = NewMemoryPartStore()
	}
	if builder.deliveryLedger == nil {
		builder.deliveryLedger = NewMemoryDeliveryLedger(finalConfig.Reassembly.DeliveredTTLDuration())
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		parser:            parser,
		partStore:         builder.partStore,
		deliveryLedger:    builder.deliveryLedger,
	}, nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Logger(name string) Logger {
	if s == nil {
		return glog.Nop()
	}
	if s.loggerProvider != nil && name != "" {
		if named := s.loggerProvider.GetLogger(name); named != nil {
			return named
		}
	}
	return s.logger
}

func (s *Service) Observer(name string) Observer {
	if s == nil {
		return Observer{Logger: glog.Nop(), Metrics: NopMetricsRecorder{}}
	}
	return Observer{Logger: s.Logger(name), Metrics: s.metricsRecorder}
}

func (s *Service) Parser() *Parser {
	if s == nil {
		return nil
	}
	return s.parser
}

func (s *Service) PartStore() PartStore {
	if s == nil {
		return nil
	}
	return s.partStore
}

func (s *Service) DeliveryLedger() DeliveryLedger {
	if s == nil {
		return nil
	}
	return s.deliveryLedger
}

func (s *Service) MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return MapError(err)
	}
	return s.errorMapper(err)
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		Parser:            s.parser,
		PartStore:         s.partStore,
		DeliveryLedger:    s.deliveryLedger,
	}
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return MapError(err)
	}
	if mapped := mapper(err); mapped != nil {
		return mapped
	}
	return err
}
