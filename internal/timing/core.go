package timing

import (
	"sync"

	"gonum.org/v1/gonum/stat"
)

// warmingUpThreshold is the minimum sample count a stage window needs
// before its share is reported instead of flagged "warming up" (spec §4.5).
const warmingUpThreshold = 5

// significantThreshold is the minimum sample count each of the
// detection/empty partitioned windows needs before their comparison is
// reported as significant (spec §4.5).
const significantThreshold = 30

// StageRecord is one frame's per-stage latencies, in nanoseconds
// (spec §4.1 per-frame result: grab, infer, depth, housekeeping).
type StageRecord struct {
	Grab         float64
	Infer        float64
	Depth        float64
	Housekeeping float64
}

// Core holds the six fixed-capacity rolling windows (spec §4.5) and
// guards them with a single mutex so that push is atomic from the
// perspective of readers and snapshot observes a consistent cut.
//
// Grounded on the teacher's PacketStats (internal/lidar/monitor/stats.go),
// which holds several running counters behind one sync.Mutex; here the
// counters are replaced with fixed-capacity ringBuffers per spec §9.
type Core struct {
	mu sync.Mutex

	grab         ringBuffer
	infer        ringBuffer
	depth        ringBuffer
	housekeeping ringBuffer

	detectionTotal ringBuffer
	emptyTotal     ringBuffer
}

// New returns an empty Core. Rolling windows are created at session start
// and never partially cleared afterward (spec §4.1); Reset replaces them
// atomically for an explicit new session.
func New() *Core {
	return &Core{}
}

// Push records one frame's stage timings and total wall time, partitioned
// into the detection or empty window depending on hadDetections. Amortized
// O(1) and safe for concurrent callers (spec §4.5 push contract).
func (c *Core) Push(rec StageRecord, wallNs float64, hadDetections bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.grab.push(rec.Grab)
	c.infer.push(rec.Infer)
	c.depth.push(rec.Depth)
	c.housekeeping.push(rec.Housekeeping)

	if hadDetections {
		c.detectionTotal.push(wallNs)
	} else {
		c.emptyTotal.push(wallNs)
	}
}

// Reset atomically replaces the window set, for a new session or an
// explicit reset (spec §4.1).
func (c *Core) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.grab = ringBuffer{}
	c.infer = ringBuffer{}
	c.depth = ringBuffer{}
	c.housekeeping = ringBuffer{}
	c.detectionTotal = ringBuffer{}
	c.emptyTotal = ringBuffer{}
}

// StageSnapshot is the per-stage mean/share pair reported in stats.json
// (spec §6 timing_ms.<stage>).
type StageSnapshot struct {
	Mean      float64
	SharePct  float64
	WarmingUp bool
}

// DetectionVsEmpty is the comparison reported in stats.json's
// detection_vs_empty_ms block (spec §6).
type DetectionVsEmpty struct {
	DetectionMean float64
	EmptyMean     float64
	DeltaMs       float64
	DeltaPct      float64
	Significant   bool
}

// Snapshot is the consistent, point-in-time view returned by Core.Snapshot.
type Snapshot struct {
	Grab         StageSnapshot
	Infer        StageSnapshot
	Depth        StageSnapshot
	Housekeeping StageSnapshot

	WallMean float64
	WallP50  float64
	WallP95  float64
	WallMin  float64
	WallMax  float64

	DetectionVsEmpty DetectionVsEmpty
}

// Snapshot computes per-stage means, shares, and the wall-interval and
// detection-vs-empty comparisons, over a single mutex-held cut of the
// windows (spec §4.5 snapshot contract).
func (c *Core) Snapshot() Snapshot {
	c.mu.Lock()
	grabVals := c.grab.values()
	inferVals := c.infer.values()
	depthVals := c.depth.values()
	houseVals := c.housekeeping.values()
	detVals := c.detectionTotal.values()
	emptyVals := c.emptyTotal.values()
	c.mu.Unlock()

	grabMean := mean(grabVals)
	inferMean := mean(inferVals)
	depthMean := mean(depthVals)
	houseMean := mean(houseVals)
	sum := grabMean + inferMean + depthMean + houseMean

	snap := Snapshot{
		Grab:         stageSnapshot(grabMean, len(grabVals), sum),
		Infer:        stageSnapshot(inferMean, len(inferVals), sum),
		Depth:        stageSnapshot(depthMean, len(depthVals), sum),
		Housekeeping: stageSnapshot(houseMean, len(houseVals), sum),
	}

	wallVals := make([]float64, 0, len(detVals)+len(emptyVals))
	wallVals = append(wallVals, detVals...)
	wallVals = append(wallVals, emptyVals...)
	snap.WallMean = mean(wallVals)
	snap.WallP50, snap.WallP95 = percentiles(wallVals)
	snap.WallMin, snap.WallMax = minMax(wallVals)

	snap.DetectionVsEmpty = compareDetectionVsEmpty(detVals, emptyVals)

	return snap
}

func stageSnapshot(stageMean float64, n int, sumOfMeans float64) StageSnapshot {
	if n < warmingUpThreshold {
		return StageSnapshot{WarmingUp: true}
	}
	share := 0.0
	if sumOfMeans > 0 {
		share = stageMean / sumOfMeans * 100.0
	}
	return StageSnapshot{Mean: stageMean, SharePct: share}
}

func compareDetectionVsEmpty(detVals, emptyVals []float64) DetectionVsEmpty {
	cmp := DetectionVsEmpty{
		DetectionMean: mean(detVals),
		EmptyMean:     mean(emptyVals),
	}
	cmp.DeltaMs = cmp.DetectionMean - cmp.EmptyMean
	if cmp.EmptyMean != 0 {
		cmp.DeltaPct = cmp.DeltaMs / cmp.EmptyMean * 100.0
	}
	cmp.Significant = len(detVals) >= significantThreshold && len(emptyVals) >= significantThreshold
	return cmp
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func minMax(vals []float64) (lo, hi float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	lo, hi = vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// percentiles computes p50/p95 via gonum's empirical quantile estimator,
// grounded on the teacher's db.go use of stat.Quantile for P50/P85/P98
// speed percentiles (internal/db/db.go).
func percentiles(vals []float64) (p50, p95 float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	sorted := append([]float64(nil), vals...)
	sortFloat64s(sorted)
	return stat.Quantile(0.50, stat.Empirical, sorted, nil),
		stat.Quantile(0.95, stat.Empirical, sorted, nil)
}

func sortFloat64s(vals []float64) {
	// Small fixed-capacity windows (<=60*2 samples): insertion sort is
	// simple and fast enough, and avoids importing sort for one call site.
	for i := 1; i < len(vals); i++ {
		v := vals[i]
		j := i - 1
		for j >= 0 && vals[j] > v {
			vals[j+1] = vals[j]
			j--
		}
		vals[j+1] = v
	}
}
