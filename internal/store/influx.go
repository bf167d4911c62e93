package store

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"github.com/i474232898/solar-data-aggregation/internal/solar"
)

const (
	readingMeasurement    = "solar_reading"
	credentialMeasurement = "solar_credential"

	fieldPower       = "current_power_w"
	fieldRaw         = "raw_payload"
	fieldUV          = "uv_index"
	fieldTemperature = "temperature"
	fieldToken       = "token"
)

// InfluxConfig names the InfluxDB v2 target.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxStore keeps readings as points in an InfluxDB v2 bucket and answers
// the aggregate queries with Flux.
type InfluxStore struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	bucket   string
	logger   *zap.Logger
}

// NewInfluxStore creates the client and verifies the server is reachable.
func NewInfluxStore(ctx context.Context, cfg InfluxConfig, logger *zap.Logger) (*InfluxStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	if _, err := client.Health(ctx); err != nil {
		client.Close()
		return nil, &solar.StoreError{Op: "connect", Err: fmt.Errorf("failed to connect to InfluxDB: %w", err)}
	}

	logger.Info("connected to influxdb", zap.String("url", cfg.URL), zap.String("bucket", cfg.Bucket))
	return &InfluxStore{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		queryAPI: client.QueryAPI(cfg.Org),
		bucket:   cfg.Bucket,
		logger:   logger,
	}, nil
}

func (s *InfluxStore) SaveReading(ctx context.Context, r solar.Reading) error {
	if err := s.writeAPI.WritePoint(ctx, readingPoint(r)); err != nil {
		return &solar.StoreError{Op: "save reading", Err: err}
	}
	return nil
}

func readingPoint(r solar.Reading) *write.Point {
	fields := map[string]interface{}{
		fieldPower: r.CurrentPowerW,
		fieldRaw:   string(r.RawPayload),
	}
	if r.UVIndex != nil {
		fields[fieldUV] = *r.UVIndex
	}
	if r.Temperature != nil {
		fields[fieldTemperature] = *r.Temperature
	}
	return influxdb2.NewPoint(readingMeasurement, map[string]string{}, fields, r.ObservedAt.UTC())
}

func (s *InfluxStore) LatestReading(ctx context.Context) (solar.Reading, error) {
	rows, err := s.pivotedRows(ctx, "latest reading", latestReadingQuery(s.bucket))
	if err != nil {
		return solar.Reading{}, err
	}
	if len(rows) == 0 {
		return solar.Reading{}, solar.ErrNotFound
	}
	// Optional fields absent from the newest point surface as older rows; only
	// the newest row belongs to the latest reading.
	return readingFromValues(rows[len(rows)-1].values, rows[len(rows)-1].time), nil
}

func (s *InfluxStore) AveragePower(ctx context.Context, from, to time.Time) (*float64, error) {
	result, err := s.queryAPI.Query(ctx, averagePowerQuery(s.bucket, from, to))
	if err != nil {
		return nil, &solar.StoreError{Op: "average power", Err: err}
	}
	defer result.Close()

	var avg *float64
	for result.Next() {
		if v, ok := result.Record().Value().(float64); ok {
			avg = &v
		}
	}
	if result.Err() != nil {
		return nil, &solar.StoreError{Op: "average power", Err: result.Err()}
	}
	return avg, nil
}

func (s *InfluxStore) Buckets(ctx context.Context, from time.Time, to *time.Time, width time.Duration) ([]solar.HistoryBucket, error) {
	rows, err := s.pivotedRows(ctx, "history buckets", bucketsQuery(s.bucket, from, to, width))
	if err != nil {
		return nil, err
	}

	buckets := make([]solar.HistoryBucket, 0, len(rows))
	for _, row := range rows {
		power, ok := row.values[fieldPower].(float64)
		if !ok {
			continue
		}
		buckets = append(buckets, solar.HistoryBucket{
			BucketStart: row.time,
			AvgPowerW:   power,
			AvgUV:       floatValue(row.values, fieldUV),
			AvgTemp:     floatValue(row.values, fieldTemperature),
		})
	}
	return buckets, nil
}

func (s *InfluxStore) ReadingsBetween(ctx context.Context, from, to time.Time) ([]solar.Reading, error) {
	rows, err := s.pivotedRows(ctx, "readings between", readingsBetweenQuery(s.bucket, from, to))
	if err != nil {
		return nil, err
	}

	readings := make([]solar.Reading, 0, len(rows))
	for _, row := range rows {
		readings = append(readings, readingFromValues(row.values, row.time))
	}
	return readings, nil
}

func (s *InfluxStore) Ping(ctx context.Context) error {
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return &solar.StoreError{Op: "ping", Err: err}
	}
	if !ok {
		return &solar.StoreError{Op: "ping", Err: fmt.Errorf("influxdb is not ready")}
	}
	return nil
}

func (s *InfluxStore) SaveCredential(ctx context.Context, c solar.Credential) error {
	p := influxdb2.NewPoint(
		credentialMeasurement,
		map[string]string{},
		map[string]interface{}{fieldToken: base64.StdEncoding.EncodeToString(c.Token)},
		c.IssuedAt.UTC(),
	)
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return &solar.StoreError{Op: "save credential", Err: err}
	}
	return nil
}

func (s *InfluxStore) LatestCredential(ctx context.Context) (solar.Credential, error) {
	result, err := s.queryAPI.Query(ctx, latestCredentialQuery(s.bucket))
	if err != nil {
		return solar.Credential{}, &solar.StoreError{Op: "latest credential", Err: err}
	}
	defer result.Close()

	var (
		cred  solar.Credential
		found bool
	)
	for result.Next() {
		rec := result.Record()
		encoded, ok := rec.Value().(string)
		if !ok {
			continue
		}
		token, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return solar.Credential{}, &solar.StoreError{Op: "latest credential", Err: err}
		}
		cred = solar.Credential{Token: token, IssuedAt: rec.Time().UTC()}
		found = true
	}
	if result.Err() != nil {
		return solar.Credential{}, &solar.StoreError{Op: "latest credential", Err: result.Err()}
	}
	if !found {
		return solar.Credential{}, solar.ErrNotFound
	}
	return cred, nil
}

func (s *InfluxStore) Close() {
	s.client.Close()
}

type pivotedRow struct {
	time   time.Time
	values map[string]interface{}
}

func (s *InfluxStore) pivotedRows(ctx context.Context, op, query string) ([]pivotedRow, error) {
	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, &solar.StoreError{Op: op, Err: err}
	}
	defer result.Close()

	var rows []pivotedRow
	for result.Next() {
		rec := result.Record()
		rows = append(rows, pivotedRow{time: rec.Time().UTC(), values: rec.Values()})
	}
	if result.Err() != nil {
		return nil, &solar.StoreError{Op: op, Err: result.Err()}
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].time.Before(rows[j].time) })
	return rows, nil
}

func readingFromValues(values map[string]interface{}, t time.Time) solar.Reading {
	r := solar.Reading{
		UVIndex:     floatValue(values, fieldUV),
		Temperature: floatValue(values, fieldTemperature),
		ObservedAt:  t.UTC(),
	}
	if v, ok := values[fieldPower].(float64); ok {
		r.CurrentPowerW = v
	}
	if v, ok := values[fieldRaw].(string); ok {
		r.RawPayload = []byte(v)
	}
	return r
}

func floatValue(values map[string]interface{}, key string) *float64 {
	v, ok := values[key].(float64)
	if !ok {
		return nil
	}
	return &v
}

func fluxTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func fluxDuration(d time.Duration) string {
	if d <= 0 {
		d = solar.DefaultBucketWidth
	}
	return fmt.Sprintf("%ds", int64(d/time.Second))
}

const pivotClause = `|> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")`

func latestReadingQuery(bucket string) string {
	return strings.Join([]string{
		fmt.Sprintf(`from(bucket: %q)`, bucket),
		`|> range(start: 0)`,
		fmt.Sprintf(`|> filter(fn: (r) => r["_measurement"] == %q)`, readingMeasurement),
		`|> last()`,
		pivotClause,
	}, "\n  ")
}

// Flux ranges are [start, stop); shifting both ends by 1ns yields (from, to].
func averagePowerQuery(bucket string, from, to time.Time) string {
	return strings.Join([]string{
		fmt.Sprintf(`from(bucket: %q)`, bucket),
		fmt.Sprintf(`|> range(start: %s, stop: %s)`, fluxTime(from.Add(time.Nanosecond)), fluxTime(to.Add(time.Nanosecond))),
		fmt.Sprintf(`|> filter(fn: (r) => r["_measurement"] == %q and r["_field"] == %q)`, readingMeasurement, fieldPower),
		`|> mean()`,
	}, "\n  ")
}

// The range opens on the bucket boundary at or before from so that the first
// window is not clipped to from; the time filter then drops earlier points.
func bucketsQuery(bucket string, from time.Time, to *time.Time, width time.Duration) string {
	if width <= 0 {
		width = solar.DefaultBucketWidth
	}
	stop := "now()"
	if to != nil {
		stop = fluxTime(*to)
	}
	return strings.Join([]string{
		fmt.Sprintf(`from(bucket: %q)`, bucket),
		fmt.Sprintf(`|> range(start: %s, stop: %s)`, fluxTime(solar.BucketStart(from, width)), stop),
		fmt.Sprintf(`|> filter(fn: (r) => r["_measurement"] == %q)`, readingMeasurement),
		fmt.Sprintf(`|> filter(fn: (r) => r["_field"] == %q or r["_field"] == %q or r["_field"] == %q)`, fieldPower, fieldUV, fieldTemperature),
		fmt.Sprintf(`|> filter(fn: (r) => r._time >= %s)`, fluxTime(from)),
		fmt.Sprintf(`|> aggregateWindow(every: %s, fn: mean, createEmpty: false, timeSrc: "_start")`, fluxDuration(width)),
		pivotClause,
		`|> sort(columns: ["_time"])`,
	}, "\n  ")
}

func readingsBetweenQuery(bucket string, from, to time.Time) string {
	return strings.Join([]string{
		fmt.Sprintf(`from(bucket: %q)`, bucket),
		fmt.Sprintf(`|> range(start: %s, stop: %s)`, fluxTime(from), fluxTime(to)),
		fmt.Sprintf(`|> filter(fn: (r) => r["_measurement"] == %q)`, readingMeasurement),
		pivotClause,
		`|> sort(columns: ["_time"])`,
	}, "\n  ")
}

func latestCredentialQuery(bucket string) string {
	return strings.Join([]string{
		fmt.Sprintf(`from(bucket: %q)`, bucket),
		`|> range(start: 0)`,
		fmt.Sprintf(`|> filter(fn: (r) => r["_measurement"] == %q and r["_field"] == %q)`, credentialMeasurement, fieldToken),
		`|> last()`,
	}, "\n  ")
}
