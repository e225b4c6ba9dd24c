package timing

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math"
)

// Migrations holds the schema of the analyses table.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory of Migrations.
const MigrationsDir = "migrations"

// SQLStore implements Store on PostgreSQL or SQLite.
// Queries stick to the SQL both dialects accept; $N placeholders appear in order.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a database-backed store. The schema must already be migrated.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Save(ctx context.Context, a *Analysis) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analyses (id, name, created_at, entry_count, matched_count, interval_count, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.Name, a.CreatedAt.UTC(), len(a.Entries), a.MatchedCount(), len(a.Results), string(payload))
	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Analysis, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM analyses WHERE id = $1`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrAnalysisNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return decodeAnalysis(payload)
}

func (s *SQLStore) List(ctx context.Context, query ListQuery) ([]*Analysis, int, error) {
	where := ""
	args := make([]interface{}, 0, 3)
	argNum := 1

	if query.Name != "" {
		where = fmt.Sprintf(" WHERE name = $%d", argNum)
		args = append(args, query.Name)
		argNum++
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM analyses"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count analyses: %w", err)
	}

	q := "SELECT payload FROM analyses" + where + " ORDER BY created_at DESC, id DESC"
	// SQLite only accepts OFFSET after a LIMIT.
	if query.Limit > 0 || query.Offset > 0 {
		limit := query.Limit
		if limit <= 0 {
			limit = math.MaxInt32
		}
		q += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
		args = append(args, limit, query.Offset)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	var results []*Analysis
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, 0, fmt.Errorf("failed to scan analysis: %w", err)
		}
		a, err := decodeAnalysis(payload)
		if err != nil {
			return nil, 0, err
		}
		results = append(results, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list analyses: %w", err)
	}

	return results, total, nil
}

func decodeAnalysis(payload string) (*Analysis, error) {
	var a Analysis
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return nil, fmt.Errorf("failed to decode analysis: %w", err)
	}
	return &a, nil
}
