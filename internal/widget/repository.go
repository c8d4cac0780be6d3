package widget

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CurrentVersion is the version of the persisted dashboard layout.
// State stored under any other version is discarded on load.
const CurrentVersion = 1

// State is the persisted dashboard: ordered widget configs plus metadata.
type State struct {
	Version         int
	CurrentTemplate string
	LastUpdated     time.Time
	Widgets         []Config
}

// Repository defines the interface for widget persistence operations.
// Only configuration is stored; acquisition results never reach it.
//
// Every write also stamps the dashboard state row with CurrentVersion
// and the write time.
type Repository interface {
	// Load returns the stored dashboard. An empty database yields a zero State.
	Load(ctx context.Context) (*State, error)

	// Insert appends a widget after the existing ones.
	// Returns ErrWidgetExists if the ID is taken.
	Insert(ctx context.Context, cfg Config) error

	// Update replaces the stored configuration of a widget.
	// Returns ErrWidgetNotFound if the widget does not exist.
	Update(ctx context.Context, cfg Config) error

	// Delete removes a widget by ID.
	// Returns ErrWidgetNotFound if the widget does not exist.
	Delete(ctx context.Context, id string) error

	// SaveOrder rewrites widget positions to match ids.
	SaveOrder(ctx context.Context, ids []string) error

	// ReplaceAll atomically replaces every widget and the current template.
	ReplaceAll(ctx context.Context, cfgs []Config, template string) error

	// SetTemplate records the template the dashboard was built from.
	SetTemplate(ctx context.Context, template string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

const selectWidgets = `
	SELECT id, name, api_url, refresh_interval, display_mode,
		selected_fields, use_websocket, ws_url
	FROM widgets
	ORDER BY position, created_at`

// Load returns the stored dashboard.
func (r *SQLiteRepository) Load(ctx context.Context) (*State, error) {
	state := &State{}

	var lastUpdated string
	err := r.db.QueryRowContext(ctx,
		`SELECT version, current_template, last_updated FROM dashboard_state WHERE id = 1`,
	).Scan(&state.Version, &state.CurrentTemplate, &lastUpdated)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("querying dashboard state: %w", err)
	default:
		state.LastUpdated, _ = time.Parse(time.RFC3339Nano, lastUpdated) //nolint:errcheck // zero on bad timestamp
	}

	rows, err := r.db.QueryContext(ctx, selectWidgets)
	if err != nil {
		return nil, fmt.Errorf("querying widgets: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only query

	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		state.Widgets = append(state.Widgets, *cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating widgets: %w", err)
	}
	return state, nil
}

// Insert appends a widget after the existing ones.
func (r *SQLiteRepository) Insert(ctx context.Context, cfg Config) error {
	return r.withTx(ctx, func(tx *sql.Tx, now string) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM widgets WHERE id = ?`, cfg.ID).Scan(&exists); err != nil {
			return fmt.Errorf("checking widget: %w", err)
		}
		if exists > 0 {
			return ErrWidgetExists
		}
		return insertWidget(ctx, tx, cfg, -1, now)
	})
}

// Update replaces the stored configuration of a widget.
func (r *SQLiteRepository) Update(ctx context.Context, cfg Config) error {
	fields, err := encodeFields(cfg.SelectedFields)
	if err != nil {
		return err
	}
	return r.withTx(ctx, func(tx *sql.Tx, now string) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE widgets SET
				name = ?, api_url = ?, refresh_interval = ?, display_mode = ?,
				selected_fields = ?, use_websocket = ?, ws_url = ?, updated_at = ?
			WHERE id = ?`,
			cfg.Name, cfg.APIURL, cfg.RefreshInterval, string(cfg.DisplayMode),
			fields, boolToInt(cfg.UseWebSocket), cfg.WSURL, now, cfg.ID,
		)
		if err != nil {
			return fmt.Errorf("updating widget: %w", err)
		}
		return expectOneRow(res)
	})
}

// Delete removes a widget by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	return r.withTx(ctx, func(tx *sql.Tx, _ string) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM widgets WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("deleting widget: %w", err)
		}
		return expectOneRow(res)
	})
}

// SaveOrder rewrites widget positions to match ids.
func (r *SQLiteRepository) SaveOrder(ctx context.Context, ids []string) error {
	return r.withTx(ctx, func(tx *sql.Tx, _ string) error {
		stmt, err := tx.PrepareContext(ctx, `UPDATE widgets SET position = ? WHERE id = ?`)
		if err != nil {
			return fmt.Errorf("preparing reorder: %w", err)
		}
		defer stmt.Close() //nolint:errcheck // closed with the transaction

		for i, id := range ids {
			if _, err := stmt.ExecContext(ctx, i, id); err != nil {
				return fmt.Errorf("reordering widget %s: %w", id, err)
			}
		}
		return nil
	})
}

// ReplaceAll atomically replaces every widget and the current template.
func (r *SQLiteRepository) ReplaceAll(ctx context.Context, cfgs []Config, template string) error {
	return r.withTx(ctx, func(tx *sql.Tx, now string) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM widgets`); err != nil {
			return fmt.Errorf("clearing widgets: %w", err)
		}
		for i, cfg := range cfgs {
			if err := insertWidget(ctx, tx, cfg, i, now); err != nil {
				return err
			}
		}
		return setTemplate(ctx, tx, template)
	})
}

// SetTemplate records the template the dashboard was built from.
func (r *SQLiteRepository) SetTemplate(ctx context.Context, template string) error {
	return r.withTx(ctx, func(tx *sql.Tx, _ string) error {
		return setTemplate(ctx, tx, template)
	})
}

// withTx runs fn in a transaction and stamps the state row before committing.
func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sql.Tx, now string) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := r.now().UTC().Format(time.RFC3339Nano)
	if err := fn(tx, now); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO dashboard_state (id, version, current_template, last_updated)
		VALUES (1, ?, '', ?)
		ON CONFLICT(id) DO UPDATE SET
			version = excluded.version,
			last_updated = excluded.last_updated`,
		CurrentVersion, now,
	); err != nil {
		return fmt.Errorf("stamping dashboard state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// insertWidget inserts cfg at position, or after the last widget when position is negative.
func insertWidget(ctx context.Context, tx *sql.Tx, cfg Config, position int, now string) error {
	fields, err := encodeFields(cfg.SelectedFields)
	if err != nil {
		return err
	}

	if position < 0 {
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position) + 1, 0) FROM widgets`,
		).Scan(&position); err != nil {
			return fmt.Errorf("finding widget position: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO widgets (
			id, position, name, api_url, refresh_interval, display_mode,
			selected_fields, use_websocket, ws_url, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.ID, position, cfg.Name, cfg.APIURL, cfg.RefreshInterval, string(cfg.DisplayMode),
		fields, boolToInt(cfg.UseWebSocket), cfg.WSURL, now, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrWidgetExists
		}
		return fmt.Errorf("inserting widget: %w", err)
	}
	return nil
}

func setTemplate(ctx context.Context, tx *sql.Tx, template string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO dashboard_state (id, version, current_template, last_updated)
		VALUES (1, ?, ?, '')
		ON CONFLICT(id) DO UPDATE SET current_template = excluded.current_template`,
		CurrentVersion, template,
	)
	if err != nil {
		return fmt.Errorf("saving current template: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (*Config, error) {
	var (
		cfg          Config
		displayMode  string
		fields       string
		useWebSocket int
	)
	if err := row.Scan(
		&cfg.ID, &cfg.Name, &cfg.APIURL, &cfg.RefreshInterval, &displayMode,
		&fields, &useWebSocket, &cfg.WSURL,
	); err != nil {
		return nil, fmt.Errorf("scanning widget: %w", err)
	}
	cfg.DisplayMode = DisplayMode(displayMode)
	cfg.UseWebSocket = useWebSocket != 0
	if err := json.Unmarshal([]byte(fields), &cfg.SelectedFields); err != nil {
		return nil, fmt.Errorf("decoding selected fields of %s: %w", cfg.ID, err)
	}
	if cfg.SelectedFields == nil {
		cfg.SelectedFields = []string{}
	}
	return &cfg, nil
}

func encodeFields(fields []string) (string, error) {
	if fields == nil {
		fields = []string{}
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encoding selected fields: %w", err)
	}
	return string(b), nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrWidgetNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
