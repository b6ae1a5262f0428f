package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/campusdir/directory-api/internal/models"
)

// ErrStagingNotFound is returned when a staged mutation is missing or its TTL
// has elapsed.
var ErrStagingNotFound = errors.New("staged mutation not found")

const stagingKeyPrefix = "staged:"

// StagingStore holds staged privileged mutations in Redis between the staging
// and PIN-confirmation phases. Records live server-side; the client only round
// trips a signed reference, never the mutation fields.
type StagingStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStagingStore creates a staging store with the configured record TTL.
func NewStagingStore(client *redis.Client, ttl time.Duration) *StagingStore {
	return &StagingStore{client: client, ttl: ttl}
}

// Put stores a staged mutation under its identifier.
func (s *StagingStore) Put(ctx context.Context, mutation *models.StagedMutation) error {
	payload, err := json.Marshal(mutation)
	if err != nil {
		return fmt.Errorf("encode staged mutation: %w", err)
	}
	if err := s.client.Set(ctx, stagingKeyPrefix+mutation.ID, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("store staged mutation: %w", err)
	}
	return nil
}

// Get loads a staged mutation by identifier.
func (s *StagingStore) Get(ctx context.Context, id string) (*models.StagedMutation, error) {
	payload, err := s.client.Get(ctx, stagingKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStagingNotFound
		}
		return nil, fmt.Errorf("load staged mutation: %w", err)
	}
	var mutation models.StagedMutation
	if err := json.Unmarshal(payload, &mutation); err != nil {
		return nil, fmt.Errorf("decode staged mutation: %w", err)
	}
	return &mutation, nil
}

// Delete removes a staged mutation once executed or abandoned.
func (s *StagingStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, stagingKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("delete staged mutation: %w", err)
	}
	return nil
}

// TTL exposes the configured staging window, used when minting transfer tokens.
func (s *StagingStore) TTL() time.Duration {
	return s.ttl
}
