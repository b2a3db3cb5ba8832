package store

import "database/sql"

// SaveDashboard stores a completed dashboard payload for a run.
func (db *DB) SaveDashboard(runID, userID, payload string) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO dashboards (run_id, user_id, payload) VALUES (?, ?, ?)`,
		runID, userID, payload,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetLatestDashboard returns the newest dashboard for a user, or nil.
func (db *DB) GetLatestDashboard(userID string) (*DashboardRow, error) {
	row := db.conn.QueryRow(
		`SELECT id, run_id, user_id, payload, generated_at
		FROM dashboards WHERE user_id = ?
		ORDER BY generated_at DESC, id DESC LIMIT 1`, userID,
	)
	return scanDashboard(row)
}

// GetDashboardByRun returns the dashboard a run produced, or nil.
func (db *DB) GetDashboardByRun(runID string) (*DashboardRow, error) {
	row := db.conn.QueryRow(
		`SELECT id, run_id, user_id, payload, generated_at
		FROM dashboards WHERE run_id = ? LIMIT 1`, runID,
	)
	return scanDashboard(row)
}

func scanDashboard(row *sql.Row) (*DashboardRow, error) {
	var d DashboardRow
	if err := row.Scan(&d.ID, &d.RunID, &d.UserID, &d.Payload, &d.GeneratedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}
