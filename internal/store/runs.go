package store

import "database/sql"

// InsertRun records the start of a pipeline run.
func (db *DB) InsertRun(runID, userID string) error {
	_, err := db.conn.Exec(
		`INSERT INTO runs (id, user_id, status) VALUES (?, ?, 'running')`,
		runID, userID,
	)
	return err
}

// UpdateRunProgress records the current stage and percent of a running run.
func (db *DB) UpdateRunProgress(runID, stage string, percent int) error {
	_, err := db.conn.Exec(
		`UPDATE runs SET stage = ?, percent = ? WHERE id = ?`,
		stage, percent, runID,
	)
	return err
}

// FinishRun marks a run complete or failed.
func (db *DB) FinishRun(runID, status string, runErr *string) error {
	_, err := db.conn.Exec(
		`UPDATE runs SET status = ?, error = ?, finished_at = datetime('now'),
		 percent = CASE WHEN ? = 'complete' THEN 100 ELSE percent END
		 WHERE id = ?`,
		status, runErr, status, runID,
	)
	return err
}

// GetRun returns a run by ID, or nil if unknown.
func (db *DB) GetRun(runID string) (*Run, error) {
	row := db.conn.QueryRow(
		`SELECT id, user_id, status, stage, percent, error, started_at, finished_at
		FROM runs WHERE id = ?`, runID,
	)
	var r Run
	if err := row.Scan(&r.ID, &r.UserID, &r.Status, &r.Stage, &r.Percent,
		&r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

// GetRecentRuns returns the most recent runs for a user, newest first.
func (db *DB) GetRecentRuns(userID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.conn.Query(
		`SELECT id, user_id, status, stage, percent, error, started_at, finished_at
		FROM runs WHERE user_id = ? ORDER BY started_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.UserID, &r.Status, &r.Stage, &r.Percent,
			&r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
