package store

import (
	"database/sql"
	"time"
)

// Judgment paths.
const (
	PathClassifier = "classifier"
	PathMatcher    = "matcher"
)

// Judgment is one scored request kept for history.
type Judgment struct {
	ID             string    `json:"id"`
	Path           string    `json:"path"`
	ActionCode     *int      `json:"action_code,omitempty"`
	ActionLabel    string    `json:"action_label"`
	PredictedLabel string    `json:"predicted_label,omitempty"`
	Judgment       int       `json:"judgment"`
	Confidence     *float64  `json:"confidence,omitempty"`
	Distance       *float64  `json:"distance,omitempty"`
	Cosine         *float64  `json:"cosine,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// JudgmentRepository records and lists judgments.
type JudgmentRepository struct {
	db *sql.DB
}

// Judgments returns the judgment repository for this store.
func (s *Store) Judgments() *JudgmentRepository {
	return &JudgmentRepository{db: s.db}
}

// Create inserts a judgment. CreatedAt is set when zero.
func (r *JudgmentRepository) Create(j *Judgment) error {
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}
	_, err := r.db.Exec(
		`INSERT INTO judgments (id, path, action_code, action_label, predicted_label, judgment, confidence, distance, cosine, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Path, j.ActionCode, j.ActionLabel, j.PredictedLabel, j.Judgment,
		j.Confidence, j.Distance, j.Cosine, j.Reason, j.CreatedAt,
	)
	return err
}

// Recent returns up to limit judgments, newest first. A non-empty label
// restricts the result to that action.
func (r *JudgmentRepository) Recent(label string, limit int) ([]Judgment, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, path, action_code, action_label, predicted_label, judgment, confidence, distance, cosine, reason, created_at
		FROM judgments`
	args := []any{}
	if label != "" {
		query += ` WHERE action_label = ?`
		args = append(args, label)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Judgment
	for rows.Next() {
		var (
			j                          Judgment
			code                       sql.NullInt64
			confidence, distance, cosv sql.NullFloat64
		)
		if err := rows.Scan(&j.ID, &j.Path, &code, &j.ActionLabel, &j.PredictedLabel, &j.Judgment,
			&confidence, &distance, &cosv, &j.Reason, &j.CreatedAt); err != nil {
			return nil, err
		}
		if code.Valid {
			v := int(code.Int64)
			j.ActionCode = &v
		}
		j.Confidence = nullFloat(confidence)
		j.Distance = nullFloat(distance)
		j.Cosine = nullFloat(cosv)
		out = append(out, j)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// Count returns the number of stored judgments for label, or all when empty.
func (r *JudgmentRepository) Count(label string) (int, error) {
	var n int
	var err error
	if label == "" {
		err = r.db.QueryRow(`SELECT COUNT(*) FROM judgments`).Scan(&n)
	} else {
		err = r.db.QueryRow(`SELECT COUNT(*) FROM judgments WHERE action_label = ?`, label).Scan(&n)
	}
	return n, err
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
