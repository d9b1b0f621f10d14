package db

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// GetSQLStats maps database/sql statistics onto PoolStats.
func GetSQLStats(conn *sql.DB) *PoolStats {
	stat := conn.Stats()
	return &PoolStats{
		TotalConns:      int32(stat.OpenConnections),
		IdleConns:       int32(stat.Idle),
		AcquiredConns:   int32(stat.InUse),
		MaxConns:        int32(stat.MaxOpenConnections),
		AcquireCount:    stat.WaitCount,
		AcquireDuration: stat.WaitDuration.String(),
		Healthy:         stat.OpenConnections > 0,
	}
}

// Store is the part of a report store the health check needs.
type Store interface {
	Ping(ctx context.Context) error
	Stats() *PoolStats
}

type pgStore struct{ pool *pgxpool.Pool }

func (s pgStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }
func (s pgStore) Stats() *PoolStats { return GetPoolStats(s.pool) }

// PGStore adapts a pgx pool for HealthHandler.
func PGStore(pool *pgxpool.Pool) Store { return pgStore{pool: pool} }

type sqlStore struct{ conn *sql.DB }

func (s sqlStore) Ping(ctx context.Context) error { return s.conn.PingContext(ctx) }
func (s sqlStore) Stats() *PoolStats { return GetSQLStats(s.conn) }

// SQLStore adapts a database/sql handle for HealthHandler.
func SQLStore(conn *sql.DB) Store { return sqlStore{conn: conn} }

// HealthHandler returns a handler for the database health check endpoint.
func HealthHandler(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		err := store.Ping(ctx)
		stats := store.Stats()

		if err != nil {
			stats.Healthy = false
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
				"pool":   stats,
			})
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"pool":   stats,
		})
	}
}
