package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrPlayerNotFound is returned by Get for an unknown UUID.
var ErrPlayerNotFound = errors.New("player not found")

// Defaults for a freshly created profile.
const (
	DefaultHealth = 20
	DefaultSpawnY = 64
)

// Position is a player's location and view angles.
type Position struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Yaw   float32 `json:"yaw"`
	Pitch float32 `json:"pitch"`
}

// Player is a persisted player profile.
type Player struct {
	UUID      uuid.UUID `json:"uuid"`
	Username  string    `json:"username"`
	EntityID  int32     `json:"entity_id"` // runtime only, not stored
	Level     int       `json:"level"`
	LastLogin time.Time `json:"last_login"`
	Position  Position  `json:"position"`
	Health    float32   `json:"health"`
	Online    bool      `json:"online"`
}

// NewPlayer returns the default profile for a player seen for the first time.
func NewPlayer(id uuid.UUID) *Player {
	return &Player{
		UUID:     id,
		Health:   DefaultHealth,
		Position: Position{Y: DefaultSpawnY},
	}
}

// PlayerStore persists player profiles in SQLite.
type PlayerStore struct {
	db *Database
}

// NewPlayerStore opens the database at dbPath and migrates the schema.
func NewPlayerStore(dbPath string) (*PlayerStore, error) {
	database, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	store := &PlayerStore{db: database}
	if err := store.migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate player database: %w", err)
	}
	return store, nil
}

// DB returns the underlying database.
func (s *PlayerStore) DB() *Database {
	return s.db
}

// Close closes the database.
func (s *PlayerStore) Close() error {
	return s.db.Close()
}

func (s *PlayerStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS players (
			uuid TEXT PRIMARY KEY,
			username TEXT NOT NULL DEFAULT '',
			level INTEGER NOT NULL DEFAULT 0,
			last_login INTEGER NOT NULL DEFAULT 0,
			x REAL NOT NULL DEFAULT 0,
			y REAL NOT NULL DEFAULT 64,
			z REAL NOT NULL DEFAULT 0,
			yaw REAL NOT NULL DEFAULT 0,
			pitch REAL NOT NULL DEFAULT 0,
			health REAL NOT NULL DEFAULT 20,
			online INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_players_username ON players(username);
		CREATE INDEX IF NOT EXISTS idx_players_online ON players(online);
	`
	_, err := s.db.Exec(schema)
	return err
}

const playerColumns = `uuid, username, level, last_login, x, y, z, yaw, pitch, health, online`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPlayer(row rowScanner) (*Player, error) {
	var (
		p          Player
		id         string
		lastLogin  int64
		yaw, pitch float64
		health     float64
		online     int
	)
	err := row.Scan(&id, &p.Username, &p.Level, &lastLogin,
		&p.Position.X, &p.Position.Y, &p.Position.Z, &yaw, &pitch, &health, &online)
	if err != nil {
		return nil, err
	}

	p.UUID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid stored uuid %q: %w", id, err)
	}
	if lastLogin > 0 {
		p.LastLogin = time.UnixMilli(lastLogin).UTC()
	}
	p.Position.Yaw = float32(yaw)
	p.Position.Pitch = float32(pitch)
	p.Health = float32(health)
	p.Online = online != 0
	return &p, nil
}

// Get returns the stored profile for id.
func (s *PlayerStore) Get(ctx context.Context, id uuid.UUID) (*Player, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+playerColumns+` FROM players WHERE uuid = ?`, id.String())
	p, err := scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load player %s: %w", id, err)
	}
	return p, nil
}

// LoadOrCreate returns the stored profile for id, inserting the default
// profile first when none exists.
func (s *PlayerStore) LoadOrCreate(ctx context.Context, id uuid.UUID) (*Player, error) {
	p, err := s.Get(ctx, id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrPlayerNotFound) {
		return nil, err
	}

	p = NewPlayer(id)
	if err := s.Save(ctx, p); err != nil {
		return nil, err
	}
	log.Debug().Str("uuid", id.String()).Msg("created player profile")
	return p, nil
}

// Save inserts or updates every persisted field of p.
func (s *PlayerStore) Save(ctx context.Context, p *Player) error {
	var lastLogin int64
	if !p.LastLogin.IsZero() {
		lastLogin = p.LastLogin.UnixMilli()
	}
	online := 0
	if p.Online {
		online = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO players (`+playerColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(uuid) DO UPDATE SET
			username = excluded.username,
			level = excluded.level,
			last_login = excluded.last_login,
			x = excluded.x,
			y = excluded.y,
			z = excluded.z,
			yaw = excluded.yaw,
			pitch = excluded.pitch,
			health = excluded.health,
			online = excluded.online,
			updated_at = CURRENT_TIMESTAMP`,
		p.UUID.String(), p.Username, p.Level, lastLogin,
		p.Position.X, p.Position.Y, p.Position.Z,
		float64(p.Position.Yaw), float64(p.Position.Pitch),
		float64(p.Health), online,
	)
	if err != nil {
		return fmt.Errorf("failed to save player %s: %w", p.UUID, err)
	}
	return nil
}

// List returns every stored profile ordered by username.
func (s *PlayerStore) List(ctx context.Context) ([]*Player, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+playerColumns+` FROM players ORDER BY username, uuid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	defer rows.Close()

	var players []*Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// CountOnline returns how many stored profiles are flagged online.
func (s *PlayerStore) CountOnline(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM players WHERE online = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count online players: %w", err)
	}
	return n, nil
}

// ResetOnline clears every online flag. It runs at startup so profiles
// left online by a crash are corrected.
func (s *PlayerStore) ResetOnline(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE players SET online = 0 WHERE online = 1`)
	if err != nil {
		return 0, fmt.Errorf("failed to reset online flags: %w", err)
	}
	return res.RowsAffected()
}
