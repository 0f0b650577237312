package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmehdipour/zoohub/internal/model"
	"github.com/jmoiron/sqlx"
)

type ProducersRepository interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*model.Producer, error)
}

type ProducersRepositoryImpl struct {
	db *sqlx.DB
}

func NewProducersRepository(db *sqlx.DB) *ProducersRepositoryImpl {
	return &ProducersRepositoryImpl{db: db}
}

var _ ProducersRepository = (*ProducersRepositoryImpl)(nil)

func (r *ProducersRepositoryImpl) GetByAPIKey(ctx context.Context, apiKey string) (*model.Producer, error) {
	var p model.Producer
	err := r.db.GetContext(ctx, &p, `
		SELECT id, name, api_key, status, rate_limit_rps, created_at, updated_at
		  FROM producers
		 WHERE api_key = ? LIMIT 1
	`, apiKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
