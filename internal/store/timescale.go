package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/i474232898/solar-data-aggregation/internal/solar"
)

type readingRow struct {
	ObservedAt    time.Time      `gorm:"column:observed_at;type:timestamptz;not null;index"`
	CurrentPowerW float64        `gorm:"column:current_power_w;not null"`
	RawPayload    datatypes.JSON `gorm:"column:raw_payload;type:jsonb;not null"`
	UVIndex       *float64       `gorm:"column:uv_index"`
	Temperature   *float64       `gorm:"column:temperature"`
}

func (readingRow) TableName() string { return "solar_readings" }

type credentialRow struct {
	ID        uint64    `gorm:"primaryKey"`
	Token     []byte    `gorm:"column:token;type:bytea;not null"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;not null;index"`
}

func (credentialRow) TableName() string { return "solar_credentials" }

type bucketRow struct {
	BucketStart time.Time
	AvgPowerW   float64
	AvgUV       *float64
	AvgTemp     *float64
}

// TimescaleStore keeps readings in a TimescaleDB hypertable through gorm.
type TimescaleStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// OpenTimescale connects to Postgres and tunes the pool for a single poller
// plus a handful of API readers.
func OpenTimescale(dsn string, logger *zap.Logger) (*TimescaleStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, &solar.StoreError{Op: "connect", Err: err}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, &solar.StoreError{Op: "connect", Err: err}
	}
	sqlDB.SetMaxIdleConns(3)
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetConnMaxLifetime(time.Minute)

	return NewTimescaleStore(db, logger), nil
}

func NewTimescaleStore(db *gorm.DB, logger *zap.Logger) *TimescaleStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimescaleStore{db: db, logger: logger}
}

// Migrate creates the tables and turns solar_readings into a hypertable.
func (s *TimescaleStore) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&readingRow{}, &credentialRow{}); err != nil {
		return &solar.StoreError{Op: "migrate", Err: err}
	}
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS timescaledb").Error; err != nil {
		return &solar.StoreError{Op: "migrate", Err: err}
	}
	err := db.Exec("SELECT create_hypertable('solar_readings', 'observed_at', if_not_exists => TRUE, migrate_data => TRUE)").Error
	if err != nil {
		return &solar.StoreError{Op: "migrate", Err: err}
	}
	s.logger.Info("timescale schema ready")
	return nil
}

func (s *TimescaleStore) SaveReading(ctx context.Context, r solar.Reading) error {
	row := toReadingRow(r)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return &solar.StoreError{Op: "save reading", Err: err}
	}
	return nil
}

func (s *TimescaleStore) LatestReading(ctx context.Context) (solar.Reading, error) {
	var row readingRow
	err := s.db.WithContext(ctx).Order("observed_at DESC").Limit(1).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return solar.Reading{}, solar.ErrNotFound
	}
	if err != nil {
		return solar.Reading{}, &solar.StoreError{Op: "latest reading", Err: err}
	}
	return fromReadingRow(row), nil
}

func (s *TimescaleStore) AveragePower(ctx context.Context, from, to time.Time) (*float64, error) {
	var avg sql.NullFloat64
	err := s.db.WithContext(ctx).
		Model(&readingRow{}).
		Select("avg(current_power_w)").
		Where("observed_at > ? AND observed_at <= ?", from.UTC(), to.UTC()).
		Row().
		Scan(&avg)
	if err != nil {
		return nil, &solar.StoreError{Op: "average power", Err: err}
	}
	if !avg.Valid {
		return nil, nil
	}
	return &avg.Float64, nil
}

func (s *TimescaleStore) Buckets(ctx context.Context, from time.Time, to *time.Time, width time.Duration) ([]solar.HistoryBucket, error) {
	query, args := bucketQuery(from, to, width)

	var rows []bucketRow
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, &solar.StoreError{Op: "history buckets", Err: err}
	}

	buckets := make([]solar.HistoryBucket, 0, len(rows))
	for _, r := range rows {
		buckets = append(buckets, solar.HistoryBucket{
			BucketStart: r.BucketStart.UTC(),
			AvgPowerW:   r.AvgPowerW,
			AvgUV:       r.AvgUV,
			AvgTemp:     r.AvgTemp,
		})
	}
	return buckets, nil
}

func bucketQuery(from time.Time, to *time.Time, width time.Duration) (string, []interface{}) {
	if width <= 0 {
		width = solar.DefaultBucketWidth
	}
	query := `SELECT time_bucket(?::interval, observed_at) AS bucket_start,
	avg(current_power_w) AS avg_power_w,
	avg(uv_index) AS avg_uv,
	avg(temperature) AS avg_temp
FROM solar_readings
WHERE observed_at >= ?`
	args := []interface{}{bucketInterval(width), from.UTC()}
	if to != nil {
		query += " AND observed_at < ?"
		args = append(args, to.UTC())
	}
	query += "\nGROUP BY bucket_start\nORDER BY bucket_start ASC"
	return query, args
}

func bucketInterval(width time.Duration) string {
	return fmt.Sprintf("%d seconds", int64(width/time.Second))
}

func (s *TimescaleStore) ReadingsBetween(ctx context.Context, from, to time.Time) ([]solar.Reading, error) {
	var rows []readingRow
	err := s.db.WithContext(ctx).
		Where("observed_at >= ? AND observed_at < ?", from.UTC(), to.UTC()).
		Order("observed_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, &solar.StoreError{Op: "readings between", Err: err}
	}

	readings := make([]solar.Reading, 0, len(rows))
	for _, r := range rows {
		readings = append(readings, fromReadingRow(r))
	}
	return readings, nil
}

func (s *TimescaleStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return &solar.StoreError{Op: "ping", Err: err}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return &solar.StoreError{Op: "ping", Err: err}
	}
	return nil
}

func (s *TimescaleStore) SaveCredential(ctx context.Context, c solar.Credential) error {
	row := credentialRow{Token: c.Token, CreatedAt: c.IssuedAt.UTC()}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return &solar.StoreError{Op: "save credential", Err: err}
	}
	return nil
}

func (s *TimescaleStore) LatestCredential(ctx context.Context) (solar.Credential, error) {
	var row credentialRow
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(1).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return solar.Credential{}, solar.ErrNotFound
	}
	if err != nil {
		return solar.Credential{}, &solar.StoreError{Op: "latest credential", Err: err}
	}
	return solar.Credential{Token: row.Token, IssuedAt: row.CreatedAt.UTC()}, nil
}

func (s *TimescaleStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toReadingRow(r solar.Reading) readingRow {
	raw := datatypes.JSON(r.RawPayload)
	if len(raw) == 0 {
		raw = datatypes.JSON("null")
	}
	return readingRow{
		ObservedAt:    r.ObservedAt.UTC(),
		CurrentPowerW: r.CurrentPowerW,
		RawPayload:    raw,
		UVIndex:       r.UVIndex,
		Temperature:   r.Temperature,
	}
}

func fromReadingRow(row readingRow) solar.Reading {
	return solar.Reading{
		CurrentPowerW: row.CurrentPowerW,
		RawPayload:    []byte(row.RawPayload),
		UVIndex:       row.UVIndex,
		Temperature:   row.Temperature,
		ObservedAt:    row.ObservedAt.UTC(),
	}
}
