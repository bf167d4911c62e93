package solar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/solar-data-aggregation/internal/cache"
)

const yesterdayKeyPrefix = "yesterday_kwh:"

// ServiceOptions bundles the collaborators of a Service.
type ServiceOptions struct {
	Session CredentialProvider
	Solar   SolarSource

	// UV and Weather are optional enrichments.
	UV             UVSource
	Weather        WeatherSource
	UVStation      string
	WeatherGeocode string

	Store      Store
	Aggregator *Aggregator
	Forwarders []Forwarder

	// Cache memoizes finished-day totals. Optional.
	Cache  *cache.Cache
	Logger *zap.Logger
}

// Service orchestrates one polling cycle (collect, persist, forward) and the
// read-side queries served to the HTTP layer.
type Service struct {
	session        CredentialProvider
	solar          SolarSource
	uv             UVSource
	weather        WeatherSource
	uvStation      string
	weatherGeocode string
	store          Store
	agg            *Aggregator
	forwarders     []Forwarder
	cache          *cache.Cache
	logger         *zap.Logger
}

// NewService creates a new Service.
func NewService(opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	agg := opts.Aggregator
	if agg == nil {
		agg = NewAggregator(opts.Store, time.UTC, nil)
	}
	return &Service{
		session:        opts.Session,
		solar:          opts.Solar,
		uv:             opts.UV,
		weather:        opts.Weather,
		uvStation:      opts.UVStation,
		weatherGeocode: opts.WeatherGeocode,
		store:          opts.Store,
		agg:            agg,
		forwarders:     opts.Forwarders,
		cache:          opts.Cache,
		logger:         logger,
	}
}

// Aggregator exposes the read-side aggregator.
func (s *Service) Aggregator() *Aggregator {
	return s.agg
}

// Collect ensures a credential, then fetches the solar partial and the
// enrichments concurrently and fuses them. A solar failure fails the
// collection; enrichment failures become nil values.
func (s *Service) Collect(ctx context.Context) (Reading, error) {
	cred, err := s.session.EnsureCredential(ctx)
	if err != nil {
		return Reading{}, err
	}

	var (
		wg          sync.WaitGroup
		partial     SolarPartial
		solarErr    error
		uv          *float64
		temperature *float64
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		solarErr = Guard(func() error {
			var err error
			partial, err = s.solar.FetchSolar(ctx, cred)
			return err
		})
	}()

	if s.uv != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			uv = s.bestEffort("uv", func() (float64, error) {
				return s.uv.FetchUV(ctx, s.uvStation)
			})
		}()
	}

	if s.weather != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			temperature = s.bestEffort("weather", func() (float64, error) {
				return s.weather.FetchTemperature(ctx, s.weatherGeocode)
			})
		}()
	}

	wg.Wait()

	if solarErr != nil {
		if IsUnauthorized(solarErr) {
			s.logger.Warn("solar portal rejected credential; forcing login next cycle")
			s.session.Invalidate()
		}
		return Reading{}, solarErr
	}

	s.logger.Info("fetched solar data",
		zap.Float64("power_w", partial.PowerW),
		zap.Float64("today_kwh", partial.TodayKWh),
		zap.Float64p("uv_index", uv),
		zap.Float64p("temperature", temperature))

	return Fuse(partial, uv, temperature, s.agg.Now()), nil
}

func (s *Service) bestEffort(source string, fetch func() (float64, error)) *float64 {
	var v float64
	err := Guard(func() error {
		var err error
		v, err = fetch()
		return err
	})
	if err != nil {
		s.logger.Error("enrichment fetch failed", zap.String("source", source), zap.Error(err))
		return nil
	}
	return &v
}

// Persist appends the reading to the store.
func (s *Service) Persist(ctx context.Context, r Reading) error {
	if err := s.store.SaveReading(ctx, r); err != nil {
		var storeErr *StoreError
		if errors.As(err, &storeErr) {
			return err
		}
		return &StoreError{Op: "save reading", Err: err}
	}
	return nil
}

// HasForwarders reports whether any downstream sink is configured.
func (s *Service) HasForwarders() bool {
	return len(s.forwarders) > 0
}

// Forward pushes the committed reading and the standard rolling averages to
// every configured sink. Failures are logged and never returned.
func (s *Service) Forward(ctx context.Context, r Reading) {
	if !s.HasForwarders() {
		return
	}

	averages, err := s.agg.RollingAverages(ctx, StandardWindows...)
	if err != nil {
		s.logger.Error("skipping forward: rolling averages failed", zap.Error(err))
		return
	}

	payload := ForwardPayload{
		CurrentKWh: r.CurrentPowerW,
		AverageKWh: ForwardAverages{
			Mins15:  averages[0].Value,
			Mins60:  averages[1].Value,
			Mins180: averages[2].Value,
		},
		UVLevel: r.UVIndex,
	}

	for _, f := range s.forwarders {
		err := Guard(func() error { return f.Forward(ctx, payload) })
		if err != nil {
			s.logger.Error("forward failed", zap.Error(&ForwardError{Sink: f.Name(), Err: err}))
			continue
		}
		s.logger.Info("forwarded reading", zap.String("sink", f.Name()))
	}
}

// Current returns the latest reading with its rolling averages and yesterday's total.
func (s *Service) Current(ctx context.Context) (CurrentSummary, error) {
	latest, err := s.store.LatestReading(ctx)
	if err != nil {
		return CurrentSummary{}, err
	}

	kpi, err := DecodeKPI(latest.RawPayload)
	if err != nil {
		s.logger.Warn("latest reading has no usable kpi block", zap.Error(err))
		kpi = KPI{PowerW: latest.CurrentPowerW}
	}

	averages, err := s.agg.RollingAverages(ctx, StandardWindows...)
	if err != nil {
		return CurrentSummary{}, err
	}

	yesterday, err := s.YesterdayTotal(ctx)
	if err != nil {
		return CurrentSummary{}, err
	}

	return CurrentSummary{
		Reading:         latest,
		KPI:             kpi,
		YesterdayKWh:    yesterday,
		RollingAverages: averages,
	}, nil
}

// History returns buckets over [from, to) split into today and yesterday.
func (s *Service) History(ctx context.Context, from time.Time, to *time.Time) (PartitionedHistory, error) {
	buckets, err := s.agg.History(ctx, from, to, DefaultBucketWidth)
	if err != nil {
		return PartitionedHistory{}, err
	}
	return s.agg.Partition(buckets), nil
}

// HistorySince returns the flat bucket list from since onwards.
func (s *Service) HistorySince(ctx context.Context, since time.Time) ([]HistoryBucket, error) {
	return s.agg.History(ctx, since, nil, DefaultBucketWidth)
}

// YesterdayTotal is the production total of the previous market day: the
// largest cumulative daily figure reported during that day. Nil when no
// readings exist for the day.
func (s *Service) YesterdayTotal(ctx context.Context) (*float64, error) {
	todayStart := StartOfDay(s.agg.Now(), s.agg.Zone())
	yesterdayStart := todayStart.AddDate(0, 0, -1)
	key := yesterdayKeyPrefix + yesterdayStart.Format("2006-01-02")

	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			total := v.(float64)
			return &total, nil
		}
	}

	readings, err := s.store.ReadingsBetween(ctx, yesterdayStart, todayStart)
	if err != nil {
		return nil, err
	}

	var (
		total float64
		found bool
	)
	for _, r := range readings {
		kpi, err := DecodeKPI(r.RawPayload)
		if err != nil {
			continue
		}
		if !found || kpi.TodayKWh > total {
			total = kpi.TodayKWh
			found = true
		}
	}
	if !found {
		return nil, nil
	}

	// A finished day never changes, so the total is safe to keep until the next one ends.
	if s.cache != nil {
		s.cache.SetWithTTL(key, total, 48*time.Hour)
	}
	return &total, nil
}

// WarmYesterdayTotal computes and caches yesterday's total ahead of the first request.
func (s *Service) WarmYesterdayTotal(ctx context.Context) error {
	total, err := s.YesterdayTotal(ctx)
	if err != nil {
		return fmt.Errorf("warm yesterday total: %w", err)
	}
	if total == nil {
		s.logger.Info("no readings for yesterday; nothing to warm")
		return nil
	}
	s.logger.Info("warmed yesterday total", zap.Float64("kwh", *total))
	return nil
}
