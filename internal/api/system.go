package api

import (
	"context"
	"database/sql"
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/finboard-core/internal/acquisition"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	MQTT          MQTTMetrics      `json:"mqtt"`
	Widgets       WidgetMetrics    `json:"widgets"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Enabled   bool `json:"enabled"`
	Connected bool `json:"connected"`
}

// WidgetMetrics summarises the dashboard and its acquisition sessions.
type WidgetMetrics struct {
	Total           int            `json:"total"`
	Loading         int            `json:"loading"`
	Errored         int            `json:"errored"`
	SessionsByMode  map[string]int `json:"sessions_by_mode"`
	CurrentTemplate string         `json:"current_template,omitempty"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections   int    `json:"open_connections"`
	InUse             int    `json:"in_use"`
	Idle              int    `json:"idle"`
	WaitCount         int64  `json:"wait_count"`
	SchemaVersion     string `json:"schema_version,omitempty"`
	PendingMigrations int    `json:"pending_migrations"`
}

// statser is implemented by *database.DB through its embedded *sql.DB.
type statser interface {
	Stats() sql.DBStats
}

// schemaVersioner is implemented by *database.DB.
type schemaVersioner interface {
	SchemaVersion(ctx context.Context) (string, int, error)
}

// handleSystem returns runtime, hub, MQTT, widget and database statistics.
func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.Hub().ClientCount(),
		},
	}

	if s.mqtt != nil {
		metrics.MQTT = MQTTMetrics{
			Enabled:   true,
			Connected: s.mqtt.HealthCheck(r.Context()) == nil,
		}
	}

	widgets := s.store.List()
	metrics.Widgets = WidgetMetrics{
		Total: len(widgets),
		SessionsByMode: map[string]int{
			string(acquisition.ModePolling):   0,
			string(acquisition.ModeStreaming): 0,
		},
		CurrentTemplate: s.store.CurrentTemplate(),
	}
	for _, wd := range widgets {
		if wd.Loading {
			metrics.Widgets.Loading++
		}
		if wd.Error != nil {
			metrics.Widgets.Errored++
		}
	}
	for _, sess := range s.engine.Sessions() {
		metrics.Widgets.SessionsByMode[string(sess.Mode)]++
	}

	if st, ok := s.db.(statser); ok {
		dbStats := st.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
		if sv, ok := s.db.(schemaVersioner); ok {
			version, pending, err := sv.SchemaVersion(r.Context())
			if err != nil {
				s.logger.Warn("reading schema version", "error", err)
			}
			metrics.Database.SchemaVersion = version
			metrics.Database.PendingMigrations = pending
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
