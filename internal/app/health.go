package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"go.uber.org/zap"
)

// ServiceStats is the /stats payload: build info, uptime, and stream health.
type ServiceStats struct {
	Build struct {
		Commit    string `json:"commit"`
		Time      string `json:"time,omitempty"`
		GoVersion string `json:"go_version"`
	} `json:"build"`

	StartTime string `json:"start_time"`
	Uptime    string `json:"uptime"`
	UptimeSec int64  `json:"uptime_seconds"`

	WebSocket struct {
		Enabled        bool   `json:"enabled"`
		Connected      bool   `json:"connected"`
		MessageCount   uint64 `json:"message_count"`
		LastMessageAt  string `json:"last_message_at,omitempty"`
		LastMessageAgo string `json:"last_message_ago,omitempty"`
	} `json:"websocket"`

	Markets struct {
		TokenCount int `json:"token_count"`
	} `json:"markets"`
}

// GetStats assembles a point-in-time stats snapshot.
func (r *Runner) GetStats() ServiceStats {
	var stats ServiceStats

	stats.Build.Commit = BuildCommit
	stats.Build.Time = BuildTime
	stats.Build.GoVersion = runtime.Version()

	now := time.Now()
	stats.StartTime = r.startTime.UTC().Format(time.RFC3339)
	stats.Uptime = now.Sub(r.startTime).Round(time.Second).String()
	stats.UptimeSec = int64(now.Sub(r.startTime).Seconds())

	if stream := r.clients.Stream; stream != nil {
		stats.WebSocket.Enabled = true
		stats.WebSocket.Connected = stream.Connected()
		s := stream.Stats()
		stats.WebSocket.MessageCount = s.MessageCount
		if !s.LastMessageAt.IsZero() {
			stats.WebSocket.LastMessageAt = s.LastMessageAt.UTC().Format(time.RFC3339)
			stats.WebSocket.LastMessageAgo = now.Sub(s.LastMessageAt).Round(time.Second).String()
		}
	}

	stats.Markets.TokenCount = len(r.ingestor.TokenIDs())

	return stats
}

// startHealthServer serves /health and /stats until ctx is cancelled.
func (r *Runner) startHealthServer(ctx context.Context, port int) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(r.GetStats()); err != nil {
			r.logger.Warn("stats encode failed", zap.Error(err))
		}
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	go func() {
		r.logger.Info("health server listening", zap.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Warn("health server stopped", zap.Error(err))
		}
	}()
}
