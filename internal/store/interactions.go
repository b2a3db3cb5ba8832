package store

import "fmt"

// InsertInteraction inserts an interaction. Returns the ID on success, 0 if
// it duplicates an already-ingested event.
func (db *DB) InsertInteraction(userID, category, action, subject string, source *string, occurredAt string) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT OR IGNORE INTO interactions (user_id, category, action, subject, source, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID, category, action, subject, source, occurredAt,
	)
	if err != nil {
		return 0, err
	}
	if n, err := result.RowsAffected(); err != nil || n == 0 {
		return 0, err
	}
	return result.LastInsertId()
}

// GetInteractions returns interactions for a user within the last daysBack
// days, newest first.
func (db *DB) GetInteractions(userID string, daysBack int) ([]Interaction, error) {
	rows, err := db.conn.Query(
		`SELECT id, user_id, category, action, subject, source, occurred_at, ingested_at
		FROM interactions
		WHERE user_id = ? AND occurred_at >= date('now', ?)
		ORDER BY occurred_at DESC`,
		userID, sqlDaysBack(daysBack),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var in Interaction
		if err := rows.Scan(&in.ID, &in.UserID, &in.Category, &in.Action,
			&in.Subject, &in.Source, &in.OccurredAt, &in.IngestedAt); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// CountInteractionsByCategory returns per-category counts for a user,
// largest first. Used by the pattern-detection fallback.
func (db *DB) CountInteractionsByCategory(userID string, daysBack int) (map[string]int, error) {
	rows, err := db.conn.Query(
		`SELECT category, COUNT(*) FROM interactions
		WHERE user_id = ? AND occurred_at >= date('now', ?)
		GROUP BY category ORDER BY COUNT(*) DESC`,
		userID, sqlDaysBack(daysBack),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, err
		}
		counts[cat] = n
	}
	return counts, rows.Err()
}

// sqlDaysBack builds a sqlite date modifier, e.g. "-30 days".
func sqlDaysBack(days int) string {
	if days <= 0 {
		days = 30
	}
	return fmt.Sprintf("-%d days", days)
}
