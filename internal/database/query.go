package database

import (
	"database/sql"
	"time"
)

const selectRemovals = `
	SELECT id, run_id, timestamp, action, root, path, file_name,
	       object_type, size, mode, reason, error_message
	FROM removals
`

// GetRecent returns the N most recent history rows
func (h *HistoryDB) GetRecent(limit int) ([]Removal, error) {
	return h.queryRemovals(selectRemovals+`
	ORDER BY timestamp DESC, id DESC
	LIMIT ?`, limit)
}

// GetByRun returns every row of one cleaner run in insertion order
func (h *HistoryDB) GetByRun(runID string) ([]Removal, error) {
	return h.queryRemovals(selectRemovals+`
	WHERE run_id = ?
	ORDER BY id ASC`, runID)
}

// GetByAction returns rows filtered by action
func (h *HistoryDB) GetByAction(action string) ([]Removal, error) {
	return h.queryRemovals(selectRemovals+`
	WHERE action = ?
	ORDER BY timestamp DESC, id DESC`, action)
}

// GetByPath returns rows whose path matches a SQL LIKE pattern
func (h *HistoryDB) GetByPath(pathPattern string) ([]Removal, error) {
	return h.queryRemovals(selectRemovals+`
	WHERE path LIKE ?
	ORDER BY timestamp DESC, id DESC`, pathPattern)
}

// GetLargest returns the N largest deleted files
func (h *HistoryDB) GetLargest(limit int) ([]Removal, error) {
	return h.queryRemovals(selectRemovals+`
	WHERE action = 'DELETE'
	ORDER BY size DESC
	LIMIT ?`, limit)
}

// Stats holds aggregated statistics
type Stats struct {
	Runs         int            `json:"runs"`
	TotalDeleted int            `json:"total_deleted"`
	TotalPruned  int            `json:"total_pruned"`
	TotalDryRun  int            `json:"total_dry_run"`
	TotalErrors  int            `json:"total_errors"`
	BytesFreed   int64          `json:"bytes_freed"`
	ByMode       map[string]int `json:"by_mode"`
	StartDate    time.Time      `json:"start_date"`
	EndDate      time.Time      `json:"end_date"`
}

// GetStats returns statistics for the last N days
func (h *HistoryDB) GetStats(days int) (*Stats, error) {
	now := time.Now()
	since := now.AddDate(0, 0, -days)

	stats := &Stats{
		StartDate: since,
		EndDate:   now,
		ByMode:    make(map[string]int),
	}

	err := h.db.QueryRow(`
		SELECT
			COUNT(DISTINCT run_id),
			COUNT(CASE WHEN action = 'DELETE' THEN 1 END),
			COUNT(CASE WHEN action = 'PRUNE' THEN 1 END),
			COUNT(CASE WHEN action = 'DRY_RUN' THEN 1 END),
			COUNT(CASE WHEN action = 'ERROR' THEN 1 END),
			COALESCE(SUM(CASE WHEN action = 'DELETE' THEN size END), 0)
		FROM removals
		WHERE timestamp >= ?
	`, since).Scan(&stats.Runs, &stats.TotalDeleted, &stats.TotalPruned,
		&stats.TotalDryRun, &stats.TotalErrors, &stats.BytesFreed)
	if err != nil {
		return nil, err
	}

	rows, err := h.db.Query(`
		SELECT mode, COUNT(*)
		FROM removals
		WHERE action = 'DELETE' AND timestamp >= ?
		GROUP BY mode
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var mode sql.NullString
		var count int
		if err := rows.Scan(&mode, &count); err != nil {
			return nil, err
		}
		stats.ByMode[mode.String] = count
	}

	return stats, rows.Err()
}

// DeleteOldRecords removes rows older than the given number of days
func (h *HistoryDB) DeleteOldRecords(olderThanDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	result, err := h.db.Exec(`DELETE FROM removals WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// queryRemovals executes a query and scans the rows
func (h *HistoryDB) queryRemovals(query string, args ...interface{}) ([]Removal, error) {
	rows, err := h.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Removal
	for rows.Next() {
		var r Removal
		var fileName, mode, reason, errMsg sql.NullString

		err := rows.Scan(
			&r.ID, &r.RunID, &r.Timestamp, &r.Action, &r.Root, &r.Path, &fileName,
			&r.ObjectType, &r.Size, &mode, &reason, &errMsg,
		)
		if err != nil {
			return nil, err
		}

		r.FileName = fileName.String
		r.Mode = mode.String
		r.Reason = reason.String
		r.ErrorMessage = errMsg.String

		records = append(records, r)
	}

	return records, rows.Err()
}
