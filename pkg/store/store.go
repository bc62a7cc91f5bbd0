package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sceneforge/pkg/db"
	"sceneforge/pkg/model"
)

// SceneStore defines the persistence interface for scene records.
type SceneStore interface {
	// Upsert atomically creates or replaces the record keyed by sceneId.
	Upsert(ctx context.Context, rec *model.SceneRecord) error

	// UpdateStatusAndAssets partially updates status/assets and updatedAt.
	// The write is a no-op when the stored status is already ready, so a
	// late retry can never clobber a completed render.
	UpdateStatusAndAssets(ctx context.Context, sceneID string, status model.SceneStatus, assets *model.SceneAssets) error

	// FindBySceneID returns the record, or (nil, nil) when not found.
	FindBySceneID(ctx context.Context, sceneID string) (*model.SceneRecord, error)

	// ListByPlayer returns a player's most recent scenes, newest first.
	ListByPlayer(ctx context.Context, playerID string, limit int) ([]*model.SceneRecord, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}

// SQLiteStore implements SceneStore.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(db *db.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Upsert(ctx context.Context, rec *model.SceneRecord) error {
	sceneJSON, err := marshalColumn(rec.Scene)
	if err != nil {
		return fmt.Errorf("marshal scene: %w", err)
	}
	promptsJSON, err := marshalColumn(rec.Prompts)
	if err != nil {
		return fmt.Errorf("marshal prompts: %w", err)
	}
	assetsJSON, err := marshalColumn(rec.Assets)
	if err != nil {
		return fmt.Errorf("marshal assets: %w", err)
	}
	contextJSON, err := marshalColumn(rec.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	query := `INSERT OR REPLACE INTO scenes (
		scene_id, player_id, turn, genre, status, scene, prompts, assets, context,
		pre_generated_key, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		rec.SceneID, rec.PlayerID, rec.Turn, rec.Genre, string(rec.Status),
		sceneJSON, promptsJSON, assetsJSON, contextJSON,
		rec.PreGeneratedKey, createdAt, updatedAt,
	)
	return err
}

func (s *SQLiteStore) UpdateStatusAndAssets(ctx context.Context, sceneID string, status model.SceneStatus, assets *model.SceneAssets) error {
	assetsJSON, err := marshalColumn(assets)
	if err != nil {
		return fmt.Errorf("marshal assets: %w", err)
	}

	// Ready is terminal: the conditional WHERE keeps a stale retry from
	// overwriting fresher assets.
	if assets != nil {
		_, err = s.db.ExecContext(ctx,
			`UPDATE scenes SET status = ?, assets = ?, updated_at = ? WHERE scene_id = ? AND status <> ?`,
			string(status), assetsJSON, time.Now().UTC(), sceneID, string(model.StatusReady))
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE scenes SET status = ?, updated_at = ? WHERE scene_id = ? AND status <> ?`,
		string(status), time.Now().UTC(), sceneID, string(model.StatusReady))
	return err
}

func (s *SQLiteStore) FindBySceneID(ctx context.Context, sceneID string) (*model.SceneRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT scene_id, player_id, turn, genre, status, scene, prompts, assets, context, pre_generated_key, created_at, updated_at
		 FROM scenes WHERE scene_id = ?`, sceneID)

	rec, err := scanRecord(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) ListByPlayer(ctx context.Context, playerID string, limit int) ([]*model.SceneRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT scene_id, player_id, turn, genre, status, scene, prompts, assets, context, pre_generated_key, created_at, updated_at
		 FROM scenes WHERE player_id = ? ORDER BY created_at DESC LIMIT ?`, playerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*model.SceneRecord
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

func scanRecord(scan func(dest ...any) error) (*model.SceneRecord, error) {
	var rec model.SceneRecord
	var status string
	var sceneJSON, promptsJSON, assetsJSON, contextJSON sql.NullString
	var playerID, genre, preKey sql.NullString
	var updatedAt sql.NullTime

	err := scan(
		&rec.SceneID, &playerID, &rec.Turn, &genre, &status,
		&sceneJSON, &promptsJSON, &assetsJSON, &contextJSON,
		&preKey, &rec.CreatedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = model.SceneStatus(status)
	rec.PlayerID = playerID.String
	rec.Genre = genre.String
	rec.PreGeneratedKey = preKey.String
	if updatedAt.Valid {
		rec.UpdatedAt = updatedAt.Time
	}

	if err := unmarshalColumn(sceneJSON, &rec.Scene); err != nil {
		return nil, fmt.Errorf("unmarshal scene: %w", err)
	}
	if err := unmarshalColumn(promptsJSON, &rec.Prompts); err != nil {
		return nil, fmt.Errorf("unmarshal prompts: %w", err)
	}
	if err := unmarshalColumn(assetsJSON, &rec.Assets); err != nil {
		return nil, fmt.Errorf("unmarshal assets: %w", err)
	}
	if err := unmarshalColumn(contextJSON, &rec.Context); err != nil {
		return nil, fmt.Errorf("unmarshal context: %w", err)
	}

	// Keep the embedded descriptor in sync with the authoritative columns;
	// a retry transition only touches the columns.
	if rec.Scene != nil {
		rec.Scene.Status = rec.Status
		rec.Scene.Assets = rec.Assets
	}

	return &rec, nil
}

func marshalColumn(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	// Typed nil pointers marshal to "null"; store NULL instead.
	switch t := v.(type) {
	case *model.SceneDescriptor:
		if t == nil {
			return sql.NullString{}, nil
		}
	case *model.ScenePrompts:
		if t == nil {
			return sql.NullString{}, nil
		}
	case *model.SceneAssets:
		if t == nil {
			return sql.NullString{}, nil
		}
	case *model.RenderRequest:
		if t == nil {
			return sql.NullString{}, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalColumn[T any](col sql.NullString, target **T) error {
	if !col.Valid || col.String == "" || col.String == "null" {
		return nil
	}
	var v T
	if err := json.Unmarshal([]byte(col.String), &v); err != nil {
		return err
	}
	*target = &v
	return nil
}
