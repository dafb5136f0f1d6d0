package middlewares

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxTrackedDurations = 1000

// HTTPSnapshot is a point-in-time copy of the HTTP counters.
type HTTPSnapshot struct {
	// Keyed by "METHOD route_status", sorted in Keys.
	RequestsTotal  map[string]int64
	Keys           []string
	AvgDuration    float64
	ActiveRequests int64
}

type MetricsMiddleware struct {
	logger *zap.Logger

	mutex            sync.RWMutex
	requestsTotal    map[string]int64
	requestDurations []float64
	activeRequests   int64
}

func NewMetricsMiddleware(logger *zap.Logger) *MetricsMiddleware {
	return &MetricsMiddleware{
		logger:           logger,
		requestsTotal:    make(map[string]int64),
		requestDurations: make([]float64, 0, maxTrackedDurations),
	}
}

func (m *MetricsMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		m.mutex.Lock()
		m.activeRequests++
		m.mutex.Unlock()

		c.Next()

		duration := time.Since(start).Seconds()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		key := c.Request.Method + " " + route + "_" + strconv.Itoa(c.Writer.Status())

		m.mutex.Lock()
		m.requestsTotal[key]++
		m.requestDurations = append(m.requestDurations, duration)
		m.activeRequests--

		// Keep only the most recent durations.
		if len(m.requestDurations) > maxTrackedDurations {
			m.requestDurations = m.requestDurations[len(m.requestDurations)-maxTrackedDurations:]
		}
		m.mutex.Unlock()
	}
}

func (m *MetricsMiddleware) Snapshot() HTTPSnapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := HTTPSnapshot{
		RequestsTotal:  make(map[string]int64, len(m.requestsTotal)),
		Keys:           make([]string, 0, len(m.requestsTotal)),
		ActiveRequests: m.activeRequests,
	}
	for k, v := range m.requestsTotal {
		snap.RequestsTotal[k] = v
		snap.Keys = append(snap.Keys, k)
	}
	sort.Strings(snap.Keys)

	if len(m.requestDurations) > 0 {
		sum := 0.0
		for _, d := range m.requestDurations {
			sum += d
		}
		snap.AvgDuration = sum / float64(len(m.requestDurations))
	}

	return snap
}
