// Package database is the optional persistence collaborator: user accounts
// with bcrypt-hashed passwords and finished-game score archival, backed by
// SQLite. The server functions fully without it (authentication disabled).
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

var (
	// ErrUserNotFound indicates no account exists for the nickname.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists indicates the nickname is already registered.
	ErrUserExists = errors.New("user already exists")
)

// User is a registered account.
type User struct {
	ID           int64
	Nickname     string // canonical case as registered
	PasswordHash string // bcrypt hash; empty for passwordless name reservations
	CreatedAt    time.Time
	Wins         int
	Losses       int
}

// DB wraps the SQLite store.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and
// initializes the schema.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time; WAL lets readers proceed alongside it.
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		nickname TEXT NOT NULL,
		nickname_lower TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		wins INTEGER NOT NULL DEFAULT 0,
		losses INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS game_scores (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		game_name TEXT NOT NULL,
		winner TEXT NOT NULL,
		players TEXT NOT NULL,
		finished_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_game_scores_winner ON game_scores(winner);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// CreateUser registers a new account. The nickname's case is preserved as
// canonical; uniqueness is case-insensitive. An empty password stores an
// empty hash: the name is reserved in its canonical case without a secret.
func (db *DB) CreateUser(nickname, password string) (int64, error) {
	var stored string
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return 0, fmt.Errorf("failed to hash password: %w", err)
		}
		stored = string(hash)
	}

	result, err := db.conn.Exec(
		`INSERT INTO users (nickname, nickname_lower, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		nickname, strings.ToLower(nickname), stored, time.Now().UnixMilli(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return 0, ErrUserExists
		}
		return 0, err
	}
	return result.LastInsertId()
}

// GetUserByNickname looks up an account case-insensitively, returning the
// canonical record.
func (db *DB) GetUserByNickname(nickname string) (*User, error) {
	var u User
	var createdAt int64
	err := db.conn.QueryRow(
		`SELECT id, nickname, password_hash, created_at, wins, losses FROM users WHERE nickname_lower = ?`,
		strings.ToLower(nickname),
	).Scan(&u.ID, &u.Nickname, &u.PasswordHash, &createdAt, &u.Wins, &u.Losses)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = time.UnixMilli(createdAt)
	return &u, nil
}

// Authenticate verifies password against the stored hash. Returns the
// canonical user on success and ErrUserNotFound for unknown nicknames.
func (db *DB) Authenticate(nickname, password string) (*User, error) {
	var hash string
	err := db.conn.QueryRow(
		`SELECT password_hash FROM users WHERE nickname_lower = ?`,
		strings.ToLower(nickname),
	).Scan(&hash)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, nil // wrong password: no user, no error
	}
	return db.GetUserByNickname(nickname)
}

// RecordGameScore archives a finished game.
func (db *DB) RecordGameScore(gameName, winner string, players []string) error {
	_, err := db.conn.Exec(
		`INSERT INTO game_scores (game_name, winner, players, finished_at) VALUES (?, ?, ?, ?)`,
		gameName, winner, strings.Join(players, " "), time.Now().UnixMilli(),
	)
	return err
}

// AddWin increments the winner's tally; unknown nicknames are ignored
// (guests have no account row).
func (db *DB) AddWin(nickname string) error {
	_, err := db.conn.Exec(
		`UPDATE users SET wins = wins + 1 WHERE nickname_lower = ?`, strings.ToLower(nickname))
	return err
}

// AddLoss increments the loss tally.
func (db *DB) AddLoss(nickname string) error {
	_, err := db.conn.Exec(
		`UPDATE users SET losses = losses + 1 WHERE nickname_lower = ?`, strings.ToLower(nickname))
	return err
}
