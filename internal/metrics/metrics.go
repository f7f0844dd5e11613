package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/lockstep/nbody-server/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sim_ticks_total",
		Help: "Total simulation ticks advanced by the server loop.",
	})
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_tick_duration_seconds",
		Help:    "Wall-clock duration of one server tick (detect+resolve+accelerate+integrate).",
		Buckets: prometheus.DefBuckets,
	})
	DatagramsRx = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_datagrams_received_total",
		Help: "Total datagrams received from any connected peer.",
	})
	DatagramsTx = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_datagrams_sent_total",
		Help: "Total datagrams sent to connected peers.",
	})
	HubDroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_dropped_frames_total",
		Help: "Total broadcast datagrams dropped by hub due to slow clients.",
	})
	HubKickedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_kicked_clients_total",
		Help: "Total clients disconnected due to backpressure kick policy.",
	})
	HubRejectedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_rejected_clients_total",
		Help: "Total session negotiation attempts rejected.",
	})
	HubActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_active_clients",
		Help: "Current number of connected peers.",
	})
	HubBroadcastFanout = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_broadcast_fanout",
		Help: "Number of peers targeted in the most recent broadcast.",
	})
	HubQueueDepthMax = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_queue_depth_max",
		Help: "Observed max queued datagrams among peers since last sample window.",
	})
	HubQueueDepthAvg = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_queue_depth_avg",
		Help: "Approximate average queued datagrams per peer in last sample.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	MalformedDatagrams = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_datagrams_total",
		Help: "Total rejected malformed datagrams (unknown tag, truncated payload).",
	})
	HashMismatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hash_mismatches_total",
		Help: "Total client-observed divergences between a local hash and a server StateHash beacon.",
	})
	BodyCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sim_body_count",
		Help: "Current number of live bodies in the authoritative simulation.",
	})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrSessionRead    = "session_read"
	ErrSessionWrite   = "session_write"
	ErrHandshake      = "handshake"
	ErrCodecDecode    = "codec_decode"
	ErrHashDivergence = "hash_divergence"
)

// StartHTTP serves Prometheus metrics at /metrics and a readiness probe
// at /ready on a dedicated mux listening on addr.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for cheap in-process logging without scraping Prometheus.
var (
	localTicks     uint64
	localDgramRx   uint64
	localDgramTx   uint64
	localHubDrop   uint64
	localHubKick   uint64
	localHubReject uint64
	localErrors    uint64
	localHubClients uint64
	localFanout    uint64
	localMalformed uint64
	localHashMiss  uint64
	localQDMax     uint64
	localQDAvg     uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	Ticks         uint64
	DatagramsRx   uint64
	DatagramsTx   uint64
	HubDrops      uint64
	HubKicks      uint64
	HubRejects    uint64
	Errors        uint64
	HubClients    uint64
	Fanout        uint64
	Malformed     uint64
	HashMismatch  uint64
	QueueDepthMax uint64
	QueueDepthAvg uint64
}

func Snap() Snapshot {
	return Snapshot{
		Ticks:         atomic.LoadUint64(&localTicks),
		DatagramsRx:   atomic.LoadUint64(&localDgramRx),
		DatagramsTx:   atomic.LoadUint64(&localDgramTx),
		HubDrops:      atomic.LoadUint64(&localHubDrop),
		HubKicks:      atomic.LoadUint64(&localHubKick),
		HubRejects:    atomic.LoadUint64(&localHubReject),
		Errors:        atomic.LoadUint64(&localErrors),
		HubClients:    atomic.LoadUint64(&localHubClients),
		Fanout:        atomic.LoadUint64(&localFanout),
		Malformed:     atomic.LoadUint64(&localMalformed),
		HashMismatch:  atomic.LoadUint64(&localHashMiss),
		QueueDepthMax: atomic.LoadUint64(&localQDMax),
		QueueDepthAvg: atomic.LoadUint64(&localQDAvg),
	}
}

// IncTick records one completed server tick of the given duration.
func IncTick(seconds float64) {
	TicksTotal.Inc()
	TickDuration.Observe(seconds)
	atomic.AddUint64(&localTicks, 1)
}

func IncDatagramsRx() {
	DatagramsRx.Inc()
	atomic.AddUint64(&localDgramRx, 1)
}

func AddDatagramsTx(n int) {
	DatagramsTx.Add(float64(n))
	atomic.AddUint64(&localDgramTx, uint64(n))
}

func IncHubDrop() {
	HubDroppedFrames.Inc()
	atomic.AddUint64(&localHubDrop, 1)
}

func IncHubKick() {
	HubKickedClients.Inc()
	atomic.AddUint64(&localHubKick, 1)
}

func IncHubReject() {
	HubRejectedClients.Inc()
	atomic.AddUint64(&localHubReject, 1)
}

func SetHubClients(n int) {
	HubActiveClients.Set(float64(n))
	atomic.StoreUint64(&localHubClients, uint64(n))
}

func SetBroadcastFanout(n int) {
	HubBroadcastFanout.Set(float64(n))
	atomic.StoreUint64(&localFanout, uint64(n))
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

func IncMalformed() {
	MalformedDatagrams.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

func IncHashMismatch() {
	HashMismatches.Inc()
	atomic.AddUint64(&localHashMiss, 1)
}

func SetBodyCount(n int) {
	BodyCount.Set(float64(n))
}

// SetQueueDepth records a snapshot of max and avg queue depth.
func SetQueueDepth(max, avg int) {
	HubQueueDepthMax.Set(float64(max))
	HubQueueDepthAvg.Set(float64(avg))
	atomic.StoreUint64(&localQDMax, uint64(max))
	atomic.StoreUint64(&localQDAvg, uint64(avg))
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{
		ErrSessionRead, ErrSessionWrite, ErrHandshake, ErrCodecDecode, ErrHashDivergence,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
