package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/i474232898/solar-data-aggregation/internal/common"
	"github.com/i474232898/solar-data-aggregation/internal/poller"
	"github.com/i474232898/solar-data-aggregation/internal/solar"
)

// DefaultHistoryRange is the trailing window served when no range is given.
const DefaultHistoryRange = 48 * time.Hour

var validate = validator.New()

// QueryService is the read side of the pipeline.
type QueryService interface {
	Current(ctx context.Context) (solar.CurrentSummary, error)
	History(ctx context.Context, from time.Time, to *time.Time) (solar.PartitionedHistory, error)
	HistorySince(ctx context.Context, since time.Time) ([]solar.HistoryBucket, error)
}

// LoopMonitor reports on the poll loop.
type LoopMonitor interface {
	Healthy() bool
	Status() poller.Status
}

// Pinger checks the store connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies bundles what the handlers need.
type Dependencies struct {
	Service QueryService
	Poller  LoopMonitor
	Store   Pinger
	// Zone interprets zone-less query times. Defaults to UTC.
	Zone   *time.Location
	Now    func() time.Time
	Logger *zap.Logger
}

type handlers struct {
	Dependencies
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Dependencies) {
	if deps.Zone == nil {
		deps.Zone = time.UTC
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	h := &handlers{Dependencies: deps}

	app.Get("/health", h.health)

	v1 := app.Group("/api/v1")
	v1.Get("/solar/current", h.current)
	v1.Get("/solar/history", h.history)
	v1.Get("/solar/history/since", h.historySince)
}

type averagesResponse struct {
	Last15Mins *float64 `json:"last15Mins"`
	Last1Hour  *float64 `json:"last1Hour"`
	Last3Hours *float64 `json:"last3Hours"`
}

type currentResponse struct {
	CurrentProductionWh    float64   `json:"currentProductionWh"`
	TodayProductionKwh     float64   `json:"todayProductionKwh"`
	MonthProductionKwh     float64   `json:"monthProductionKwh"`
	YesterdayProductionKwh *float64  `json:"yesterdayProductionKwh"`
	AllTimeProductionKwh   float64   `json:"allTimeProductionKwh"`
	UVIndex                *float64  `json:"uvIndex"`
	Temperature            *float64  `json:"temperature"`
	ObservedAt             time.Time `json:"observedAt"`
	Statistics             struct {
		Averages averagesResponse `json:"averages"`
	} `json:"statistics"`
}

type bucketResponse struct {
	Wh          float64  `json:"wh"`
	AtUTC       string   `json:"atUtc"`
	Timestamp   int64    `json:"timestamp"`
	UVIndex     *float64 `json:"uvIndex"`
	Temperature *float64 `json:"temperature"`
}

type historyResponse struct {
	Today     []bucketResponse `json:"today"`
	Yesterday []bucketResponse `json:"yesterday"`
}

func (h *handlers) current(c *fiber.Ctx) error {
	summary, err := h.Service.Current(c.UserContext())
	if err != nil {
		return h.queryError(c, "current", err)
	}
	return c.JSON(toCurrentResponse(summary))
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	From time.Time `validate:"required"`
	To   time.Time `validate:"omitempty,gtefield=From"`
}

func (q *historyQuery) bind(c *fiber.Ctx, zone *time.Location, now time.Time) error {
	q.From = now.Add(-DefaultHistoryRange).UTC()
	if s := c.Query("from"); s != "" {
		from, err := common.ParseTime(s, zone)
		if err != nil {
			return err
		}
		q.From = from
	}
	if s := c.Query("to"); s != "" {
		to, err := common.ParseTime(s, zone)
		if err != nil {
			return err
		}
		q.To = to
	}
	return nil
}

func (h *handlers) history(c *fiber.Ctx) error {
	var req historyQuery
	if err := req.bind(c, h.Zone, h.Now()); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "to must not be before from")
	}

	var to *time.Time
	if !req.To.IsZero() {
		to = &req.To
	}

	partitioned, err := h.Service.History(c.UserContext(), req.From, to)
	if err != nil {
		return h.queryError(c, "history", err)
	}

	return c.JSON(historyResponse{
		Today:     toBucketResponses(partitioned.Today),
		Yesterday: toBucketResponses(partitioned.Yesterday),
	})
}

// sinceQuery holds query parameters for the flat history endpoint.
type sinceQuery struct {
	Since time.Time `validate:"required"`
}

func (h *handlers) historySince(c *fiber.Ctx) error {
	var req sinceQuery
	if s := c.Query("ts"); s != "" {
		since, err := common.ParseTime(s, h.Zone)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		req.Since = since
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "ts query parameter is required")
	}

	buckets, err := h.Service.HistorySince(c.UserContext(), req.Since)
	if err != nil {
		return h.queryError(c, "history since", err)
	}
	return c.JSON(toBucketResponses(buckets))
}

func (h *handlers) health(c *fiber.Ctx) error {
	status := h.Poller.Status()
	healthy := h.Poller.Healthy()

	storeOK := true
	if h.Store != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := h.Store.Ping(ctx); err != nil {
			h.Logger.Warn("store ping failed", zap.Error(err))
			storeOK = false
		}
	}

	code := fiber.StatusOK
	if !healthy || !storeOK {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"service": "solar-data-aggregation",
		"healthy": healthy && storeOK,
		"store":   storeOK,
		"poller":  status,
	})
}

// queryError maps a read failure to a client-safe error.
func (h *handlers) queryError(c *fiber.Ctx, op string, err error) error {
	if errors.Is(err, solar.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "no solar data recorded yet")
	}
	h.Logger.Error("query failed",
		zap.String("op", op),
		zap.Any("request_id", c.Locals("requestid")),
		zap.Error(err))
	return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch solar data")
}

func toCurrentResponse(s solar.CurrentSummary) currentResponse {
	resp := currentResponse{
		CurrentProductionWh:    round2(s.KPI.PowerW),
		TodayProductionKwh:     round2(s.KPI.TodayKWh),
		MonthProductionKwh:     round2(s.KPI.MonthKWh),
		YesterdayProductionKwh: round2p(s.YesterdayKWh),
		AllTimeProductionKwh:   round2(s.KPI.LifetimeKWh),
		UVIndex:                round2p(s.Reading.UVIndex),
		Temperature:            round2p(s.Reading.Temperature),
		ObservedAt:             s.Reading.ObservedAt.UTC(),
	}
	for _, avg := range s.RollingAverages {
		switch avg.WindowMinutes {
		case solar.Window15Minutes:
			resp.Statistics.Averages.Last15Mins = round2p(avg.Value)
		case solar.Window60Minutes:
			resp.Statistics.Averages.Last1Hour = round2p(avg.Value)
		case solar.Window180Minutes:
			resp.Statistics.Averages.Last3Hours = round2p(avg.Value)
		}
	}
	return resp
}

func toBucketResponses(buckets []solar.HistoryBucket) []bucketResponse {
	out := make([]bucketResponse, 0, len(buckets))
	for _, b := range buckets {
		start := b.BucketStart.UTC()
		out = append(out, bucketResponse{
			Wh:          round2(b.AvgPowerW),
			AtUTC:       start.Format(time.RFC3339),
			Timestamp:   start.UnixMilli(),
			UVIndex:     round2p(b.AvgUV),
			Temperature: round2p(b.AvgTemp),
		})
	}
	return out
}

// round2 rounds for display only; stored and intermediate values keep full precision.
func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

func round2p(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := round2(*v)
	return &r
}
