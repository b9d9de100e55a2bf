// Package tracker records per-execution model usage for cost reporting.
package tracker

import (
	"database/sql"
	"time"
)

// ModelUsage represents a record of AI model usage for one execution
type ModelUsage struct {
	ID               int       `json:"id" db:"id"`
	PromptID         string    `json:"prompt_id" db:"prompt_id"`
	TriggerKind      string    `json:"trigger_kind" db:"trigger_kind"`
	Model            string    `json:"model" db:"model"`
	PromptTokens     *int      `json:"prompt_tokens,omitempty" db:"prompt_tokens"`
	CompletionTokens *int      `json:"completion_tokens,omitempty" db:"completion_tokens"`
	TotalTokens      *int      `json:"total_tokens,omitempty" db:"total_tokens"`
	Cost             *float64  `json:"cost,omitempty" db:"cost"`
	DurationMs       *int64    `json:"duration_ms,omitempty" db:"duration_ms"`
	Success          bool      `json:"success" db:"success"`
	ErrorMessage     *string   `json:"error_message,omitempty" db:"error_message"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// UsageTracker provides functionality to track AI model usage
type UsageTracker struct {
	db *sql.DB
}

// NewUsageTracker creates a new AI usage tracker
func NewUsageTracker(db *sql.DB) *UsageTracker {
	return &UsageTracker{db: db}
}

// TrackUsage records AI model usage in the database
func (t *UsageTracker) TrackUsage(usage *ModelUsage) error {
	query := `
		INSERT INTO model_usage (
			prompt_id, trigger_kind, model,
			prompt_tokens, completion_tokens, total_tokens,
			cost, duration_ms, success, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := t.db.Exec(query,
		usage.PromptID, usage.TriggerKind, usage.Model,
		usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens,
		usage.Cost, usage.DurationMs, usage.Success, usage.ErrorMessage,
	)

	return err
}

// GetUsageStats returns usage statistics for a given time period
func (t *UsageTracker) GetUsageStats(since time.Time) (*UsageStats, error) {
	query := `
		SELECT
			COUNT(*) as total_requests,
			COUNT(CASE WHEN success = 1 THEN 1 END) as successful_requests,
			COALESCE(SUM(COALESCE(total_tokens, 0)), 0) as total_tokens,
			COALESCE(SUM(COALESCE(cost, 0)), 0) as total_cost,
			COUNT(DISTINCT model) as unique_models
		FROM model_usage
		WHERE created_at >= ?`

	var stats UsageStats
	err := t.db.QueryRow(query, since.UTC().Format("2006-01-02 15:04:05")).Scan(
		&stats.TotalRequests, &stats.SuccessfulRequests,
		&stats.TotalTokens, &stats.TotalCost, &stats.UniqueModels,
	)

	if err != nil {
		return nil, err
	}

	if stats.TotalRequests > 0 {
		stats.SuccessRate = float64(stats.SuccessfulRequests) / float64(stats.TotalRequests)
	}

	return &stats, nil
}

// GetModelBreakdown returns usage breakdown by model
func (t *UsageTracker) GetModelBreakdown(since time.Time) ([]ModelBreakdown, error) {
	query := `
		SELECT
			model,
			COUNT(*) as request_count,
			SUM(COALESCE(total_tokens, 0)) as total_tokens,
			SUM(COALESCE(cost, 0)) as total_cost,
			AVG(duration_ms) as avg_duration_ms
		FROM model_usage
		WHERE created_at >= ? AND success = 1
		GROUP BY model
		ORDER BY total_cost DESC`

	rows, err := t.db.Query(query, since.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var breakdown []ModelBreakdown
	for rows.Next() {
		var mb ModelBreakdown
		err := rows.Scan(&mb.Model, &mb.RequestCount, &mb.TotalTokens, &mb.TotalCost, &mb.AvgDurationMs)
		if err != nil {
			continue
		}
		breakdown = append(breakdown, mb)
	}

	return breakdown, rows.Err()
}

// GetTimeSeriesData returns daily aggregated cost and request counts
func (t *UsageTracker) GetTimeSeriesData(days int) ([]TimeSeriesPoint, error) {
	query := `
		SELECT
			DATE(created_at) as date,
			COUNT(*) as requests,
			COALESCE(SUM(COALESCE(cost, 0)), 0) as cost
		FROM model_usage
		WHERE created_at >= datetime('now', '-' || ? || ' days')
		GROUP BY DATE(created_at)
		ORDER BY date ASC`

	rows, err := t.db.Query(query, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []TimeSeriesPoint
	for rows.Next() {
		var point TimeSeriesPoint
		err := rows.Scan(&point.Date, &point.Requests, &point.Cost)
		if err != nil {
			continue
		}
		points = append(points, point)
	}

	return points, rows.Err()
}

// UsageStats represents aggregated usage statistics
type UsageStats struct {
	TotalRequests      int     `json:"total_requests"`
	SuccessfulRequests int     `json:"successful_requests"`
	SuccessRate        float64 `json:"success_rate"`
	TotalTokens        int     `json:"total_tokens"`
	TotalCost          float64 `json:"total_cost"`
	UniqueModels       int     `json:"unique_models"`
}

// TimeSeriesPoint represents a single data point in time-series
type TimeSeriesPoint struct {
	Date     string  `json:"date"`
	Requests int     `json:"requests"`
	Cost     float64 `json:"cost"`
}

// ModelBreakdown represents usage statistics for a specific model
type ModelBreakdown struct {
	Model         string   `json:"model"`
	RequestCount  int      `json:"request_count"`
	TotalTokens   int      `json:"total_tokens"`
	TotalCost     float64  `json:"total_cost"`
	AvgDurationMs *float64 `json:"avg_duration_ms,omitempty"`
}
