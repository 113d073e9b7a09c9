package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/gamevault/backend/internal/models"
)

// GameStore is the read-only catalog lookup this service needs; catalog CRUD
// is owned elsewhere.
type GameStore struct {
	db *sqlx.DB
}

func NewGameStore(db *sqlx.DB) *GameStore {
	return &GameStore{db: db}
}

// FindBySlug loads a game by its URL slug.
func (s *GameStore) FindBySlug(ctx context.Context, slug string) (*models.Game, error) {
	var game models.Game
	err := s.db.GetContext(ctx, &game, `SELECT * FROM games WHERE slug=$1`, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find game by slug: %w", err)
	}
	return &game, nil
}

// FindByID loads a game by primary key.
func (s *GameStore) FindByID(ctx context.Context, id int) (*models.Game, error) {
	var game models.Game
	err := s.db.GetContext(ctx, &game, `SELECT * FROM games WHERE id=$1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find game by id: %w", err)
	}
	return &game, nil
}
