package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/solar-data-aggregation/internal/cache"
	"github.com/i474232898/solar-data-aggregation/internal/config"
	"github.com/i474232898/solar-data-aggregation/internal/forwarder"
	"github.com/i474232898/solar-data-aggregation/internal/session"
	"github.com/i474232898/solar-data-aggregation/internal/solar"
	"github.com/i474232898/solar-data-aggregation/internal/solar/providers"
	"github.com/i474232898/solar-data-aggregation/internal/store"
)

type backend interface {
	solar.Store
	solar.CredentialStore
}

// pipeline owns every long-lived collaborator; the session handle is built
// here and lent to the service rather than held globally.
type pipeline struct {
	store   backend
	service *solar.Service
	zone    *time.Location
	closers []func()
}

func buildPipeline(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (*pipeline, error) {
	p := &pipeline{zone: solar.MarketZone(cfg.MarketUTCOffset)}

	st, err := p.openStore(ctx, cfg, log.Named("store"))
	if err != nil {
		return nil, err
	}
	p.store = st

	hot, err := cache.New()
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("init cache: %w", err)
	}
	p.closers = append(p.closers, hot.Close)

	// Shared HTTP client for outbound upstream calls.
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	sems := providers.NewSEMSPortalProvider(httpClient, cfg.GoodWeUsername, cfg.GoodWePassword, cfg.GoodWePowerStationID)
	sess := session.New(sems, st,
		session.WithTTL(cfg.CredentialTTL),
		session.WithHotCache(hot),
		session.WithLogger(log.Named("session")),
	)

	forwarders, err := p.openForwarders(cfg, log)
	if err != nil {
		p.Close()
		return nil, err
	}

	p.service = solar.NewService(solar.ServiceOptions{
		Session:        sess,
		Solar:          sems,
		UV:             providers.NewARPANSAProvider(httpClient),
		Weather:        providers.NewBOMProvider(httpClient),
		UVStation:      cfg.UVStationName,
		WeatherGeocode: cfg.WeatherGeocode,
		Store:          st,
		Aggregator:     solar.NewAggregator(st, p.zone, nil),
		Forwarders:     forwarders,
		Cache:          hot,
		Logger:         log.Named("service"),
	})
	return p, nil
}

func (p *pipeline) openStore(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (backend, error) {
	switch cfg.StoreBackend {
	case config.BackendTimescale:
		ts, err := store.OpenTimescale(cfg.DatabaseURL, log)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, func() { _ = ts.Close() })
		if err := ts.Migrate(ctx); err != nil {
			p.Close()
			return nil, err
		}
		return ts, nil
	case config.BackendInflux:
		in, err := store.NewInfluxStore(ctx, store.InfluxConfig{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		}, log)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, in.Close)
		return in, nil
	case config.BackendMemory:
		log.Warn("using in-memory store; readings are lost on restart")
		return store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func (p *pipeline) openForwarders(cfg *config.AppConfig, log *zap.Logger) ([]solar.Forwarder, error) {
	var forwarders []solar.Forwarder

	if t := cfg.ForwardTarget; t != nil {
		forwarders = append(forwarders, forwarder.NewHTTPForwarder(t.BaseURL, t.APIKey, cfg.HTTPTimeout))
		log.Info("forwarding to home gateway", zap.String("base_url", t.BaseURL))
	}
	if t := cfg.KafkaTarget; t != nil {
		kf, err := forwarder.NewKafkaForwarder(t.Brokers, t.Topic)
		if err != nil {
			return nil, fmt.Errorf("connect kafka: %w", err)
		}
		p.closers = append(p.closers, func() { _ = kf.Close() })
		forwarders = append(forwarders, kf)
		log.Info("forwarding to kafka", zap.Strings("brokers", t.Brokers), zap.String("topic", t.Topic))
	}
	if len(forwarders) == 0 {
		log.Info("no forward target configured; forwarding disabled")
	}
	return forwarders, nil
}

// Close releases resources in reverse order of acquisition.
func (p *pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
	p.closers = nil
}
