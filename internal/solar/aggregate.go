package solar

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// Aggregator derives rolling averages and bucketed history from a Store.
// It holds no mutable state, so its queries are safe to run concurrently.
type Aggregator struct {
	store Store
	zone  *time.Location
	now   func() time.Time
}

// NewAggregator creates an Aggregator. A nil now defaults to time.Now.
func NewAggregator(store Store, zone *time.Location, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	if zone == nil {
		zone = time.UTC
	}
	return &Aggregator{
		store: store,
		zone:  zone,
		now:   now,
	}
}

// MarketZone returns the fixed civil-time offset used for day partitioning.
func MarketZone(offset time.Duration) *time.Location {
	secs := int(offset / time.Second)
	sign := "+"
	if secs < 0 {
		sign = "-"
	}
	abs := secs
	if abs < 0 {
		abs = -abs
	}
	name := fmt.Sprintf("UTC%s%02d:%02d", sign, abs/3600, (abs%3600)/60)
	return time.FixedZone(name, secs)
}

// Zone returns the market offset zone.
func (a *Aggregator) Zone() *time.Location {
	return a.zone
}

// Now returns the aggregator's clock reading.
func (a *Aggregator) Now() time.Time {
	return a.now()
}

// RollingAverage averages current power over (now - window, now].
func (a *Aggregator) RollingAverage(ctx context.Context, windowMinutes int) (*float64, error) {
	return a.rollingAverageAt(ctx, a.now(), windowMinutes)
}

func (a *Aggregator) rollingAverageAt(ctx context.Context, now time.Time, windowMinutes int) (*float64, error) {
	if windowMinutes <= 0 {
		return nil, fmt.Errorf("window must be positive, got %d minutes", windowMinutes)
	}
	from := now.Add(-time.Duration(windowMinutes) * time.Minute)
	return a.store.AveragePower(ctx, from, now)
}

// RollingAverages runs each window as an independent concurrent query against
// a single shared "now", returning results in the order the windows were given.
// A panicking query is returned as a *RuntimeFault.
func (a *Aggregator) RollingAverages(ctx context.Context, windows ...int) ([]RollingAverage, error) {
	if len(windows) == 0 {
		windows = StandardWindows
	}

	now := a.now()
	results := make([]RollingAverage, len(windows))

	g, gctx := errgroup.WithContext(ctx)
	for i, w := range windows {
		i, w := i, w
		// errgroup does not recover; a store panic must surface as a RuntimeFault here.
		g.Go(func() error {
			return Guard(func() error {
				v, err := a.rollingAverageAt(gctx, now, w)
				if err != nil {
					return err
				}
				results[i] = RollingAverage{WindowMinutes: w, Value: v}
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// History returns the sparse, ascending bucket sequence over [from, to).
func (a *Aggregator) History(ctx context.Context, from time.Time, to *time.Time, width time.Duration) ([]HistoryBucket, error) {
	if width <= 0 {
		width = DefaultBucketWidth
	}
	if to != nil && to.Before(from) {
		return nil, fmt.Errorf("history range end %s is before start %s", to.Format(time.RFC3339), from.Format(time.RFC3339))
	}
	buckets, err := a.store.Buckets(ctx, from, to, width)
	if err != nil {
		return nil, err
	}
	if buckets == nil {
		buckets = []HistoryBucket{}
	}
	return buckets, nil
}

// Partition splits buckets into today and yesterday relative to the aggregator clock.
func (a *Aggregator) Partition(buckets []HistoryBucket) PartitionedHistory {
	return PartitionTodayYesterday(buckets, a.zone, a.now())
}

// PartitionTodayYesterday puts buckets whose start falls on now's calendar date
// (in zone) into Today. Every other bucket goes to Yesterday, including ones
// older than yesterday.
func PartitionTodayYesterday(buckets []HistoryBucket, zone *time.Location, now time.Time) PartitionedHistory {
	out := PartitionedHistory{
		Today:     make([]HistoryBucket, 0),
		Yesterday: make([]HistoryBucket, 0),
	}

	ny, nm, nd := now.In(zone).Date()
	for _, b := range buckets {
		y, m, d := b.BucketStart.In(zone).Date()
		if y == ny && m == nm && d == nd {
			out.Today = append(out.Today, b)
		} else {
			out.Yesterday = append(out.Yesterday, b)
		}
	}
	return out
}

// StartOfDay returns midnight of t's calendar date in zone.
func StartOfDay(t time.Time, zone *time.Location) time.Time {
	y, m, d := t.In(zone).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, zone)
}

// BucketStart truncates an observation time to its bucket boundary. The result
// depends only on t and width.
func BucketStart(t time.Time, width time.Duration) time.Time {
	return t.UTC().Truncate(width)
}

type bucketAccumulator struct {
	sumPower float64
	n        int
	sumUV    float64
	nUV      int
	sumTemp  float64
	nTemp    int
}

// BucketReadings groups readings observed in [from, to) into width-sized buckets.
// Empty buckets are omitted and the result is ordered by bucket start.
func BucketReadings(readings []Reading, from time.Time, to *time.Time, width time.Duration) []HistoryBucket {
	if width <= 0 {
		width = DefaultBucketWidth
	}

	acc := make(map[time.Time]*bucketAccumulator)
	for _, r := range readings {
		if r.ObservedAt.Before(from) {
			continue
		}
		if to != nil && !r.ObservedAt.Before(*to) {
			continue
		}

		start := BucketStart(r.ObservedAt, width)
		b, ok := acc[start]
		if !ok {
			b = &bucketAccumulator{}
			acc[start] = b
		}
		b.sumPower += r.CurrentPowerW
		b.n++
		if r.UVIndex != nil {
			b.sumUV += *r.UVIndex
			b.nUV++
		}
		if r.Temperature != nil {
			b.sumTemp += *r.Temperature
			b.nTemp++
		}
	}

	starts := make([]time.Time, 0, len(acc))
	for k := range acc {
		starts = append(starts, k)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	buckets := make([]HistoryBucket, 0, len(starts))
	for _, s := range starts {
		b := acc[s]
		hb := HistoryBucket{
			BucketStart: s,
			AvgPowerW:   b.sumPower / float64(b.n),
		}
		if b.nUV > 0 {
			v := b.sumUV / float64(b.nUV)
			hb.AvgUV = &v
		}
		if b.nTemp > 0 {
			v := b.sumTemp / float64(b.nTemp)
			hb.AvgTemp = &v
		}
		buckets = append(buckets, hb)
	}
	return buckets
}
