// Package redis checkpoints pass progress so the job-tracking service can
// report on a running pass without touching the relational store.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"scraping_service/internal/config"
	"scraping_service/internal/models"
	"scraping_service/internal/storage"
)

type Storage struct {
	client *redis.Client
	ttl    time.Duration
}

func New(ctx context.Context, cfg config.Redis) (*Storage, error) {
	const op = "storage.redis.New"

	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.Db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{client: client, ttl: cfg.ProgressTTL}, nil
}

func (s *Storage) Close() error {
	return s.client.Close()
}

func progressKey(sessionID string) string {
	return "pass:" + sessionID
}

// SaveProgress overwrites the checkpoint for a session.
func (s *Storage) SaveProgress(ctx context.Context, p models.PassProgress) error {
	const op = "storage.redis.SaveProgress"

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.client.Set(ctx, progressKey(p.SessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Progress returns the latest checkpoint for a session.
func (s *Storage) Progress(ctx context.Context, sessionID string) (models.PassProgress, error) {
	const op = "storage.redis.Progress"

	data, err := s.client.Get(ctx, progressKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.PassProgress{}, storage.ErrProgressNotFound
	}
	if err != nil {
		return models.PassProgress{}, fmt.Errorf("%s: %w", op, err)
	}

	var p models.PassProgress
	if err := json.Unmarshal(data, &p); err != nil {
		return models.PassProgress{}, fmt.Errorf("%s: %w", op, err)
	}

	return p, nil
}
