package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/heungbuja/motionjudge/internal/action"
)

// Action represents one catalog entry stored in the database.
type Action struct {
	Code      int       `json:"code"`
	Label     string    `json:"label"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ActionRepository provides CRUD operations for the action catalog.
type ActionRepository struct {
	db *sql.DB
}

// Actions returns the action repository for this store.
func (s *Store) Actions() *ActionRepository {
	return &ActionRepository{db: s.db}
}

// Seed inserts the given actions, leaving existing codes untouched.
func (r *ActionRepository) Seed(actions []action.Action) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO actions (code, label, name, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, a := range actions {
		if _, err := stmt.Exec(a.Code, action.Normalize(a.Label), a.Name, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Upsert inserts an action or replaces the label and name of an existing code.
func (r *ActionRepository) Upsert(a *Action) error {
	a.Label = action.Normalize(a.Label)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := r.db.Exec(
		`INSERT INTO actions (code, label, name, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(code) DO UPDATE SET label = excluded.label, name = excluded.name`,
		a.Code, a.Label, a.Name, a.CreatedAt,
	)
	return err
}

// GetByCode retrieves an action by its code.
func (r *ActionRepository) GetByCode(code int) (*Action, error) {
	return r.getOne(`SELECT code, label, name, created_at FROM actions WHERE code = ?`, code)
}

// GetByLabel retrieves an action by its label, matched case-insensitively.
func (r *ActionRepository) GetByLabel(label string) (*Action, error) {
	return r.getOne(`SELECT code, label, name, created_at FROM actions WHERE label = ?`, action.Normalize(label))
}

func (r *ActionRepository) getOne(query string, arg any) (*Action, error) {
	a := &Action{}
	err := r.db.QueryRow(query, arg).Scan(&a.Code, &a.Label, &a.Name, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// List retrieves all actions ordered by code.
func (r *ActionRepository) List() ([]Action, error) {
	rows, err := r.db.Query(`SELECT code, label, name, created_at FROM actions ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []Action
	for rows.Next() {
		var a Action
		if err := rows.Scan(&a.Code, &a.Label, &a.Name, &a.CreatedAt); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return actions, nil
}

// Delete removes an action by code.
func (r *ActionRepository) Delete(code int) error {
	result, err := r.db.Exec(`DELETE FROM actions WHERE code = ?`, code)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// Catalog builds the in-memory lookup table from the stored actions.
func (r *ActionRepository) Catalog() (*action.Catalog, error) {
	stored, err := r.List()
	if err != nil {
		return nil, err
	}
	entries := make([]action.Action, len(stored))
	for i, a := range stored {
		entries[i] = action.Action{Code: a.Code, Label: a.Label, Name: a.Name}
	}
	return action.NewCatalog(entries), nil
}
