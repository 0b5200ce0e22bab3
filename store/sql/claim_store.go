package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-commercebot/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	claimStatusProcessing = "processing"
	claimStatusRetryReady = "retry_ready"
	claimStatusComplete   = "complete"
)

// ClaimStore is the durable idempotency claim store for inbound event
// processing. Each processed update holds one row keyed by its claim key.
type ClaimStore struct {
	db   *bun.DB
	repo repository.Repository[*inboundClaimRecord]
}

func NewClaimStore(db *bun.DB) (*ClaimStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*inboundClaimRecord](db, inboundClaimHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid inbound claim repository wiring: %w", err)
		}
	}
	return &ClaimStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *ClaimStore) Claim(ctx context.Context, key string, lease time.Duration) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, fmt.Errorf("sqlstore: claim store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, core.BadInputError{Reason: "claim key is required"}
	}
	if lease <= 0 {
		lease = 30 * time.Second
	}
	now := time.Now().UTC()
	leaseUntil := now.Add(lease)

	record := &inboundClaimRecord{
		ID:         uuid.NewString(),
		ClaimKey:   key,
		Status:     claimStatusProcessing,
		LeaseUntil: &leaseUntil,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if !isUniqueViolation(err) {
			return "", false, err
		}
		return s.reclaim(ctx, key, leaseUntil, now)
	}
	return record.ID, true, nil
}

func (s *ClaimStore) reclaim(ctx context.Context, key string, leaseUntil, now time.Time) (string, bool, error) {
	existing := &inboundClaimRecord{}
	err := s.db.NewSelect().
		Model(existing).
		Where("?TableAlias.claim_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}

	switch existing.Status {
	case claimStatusComplete:
		return "", false, nil
	case claimStatusProcessing:
		if existing.LeaseUntil != nil && now.Before(*existing.LeaseUntil) {
			return "", false, nil
		}
	case claimStatusRetryReady:
		if existing.RetryAt != nil && now.Before(*existing.RetryAt) {
			return "", false, nil
		}
	}

	claimID := uuid.NewString()
	result, err := s.db.NewUpdate().
		Model((*inboundClaimRecord)(nil)).
		Set("id = ?", claimID).
		Set("status = ?", claimStatusProcessing).
		Set("lease_until = ?", leaseUntil).
		Set("retry_at = NULL").
		Set("updated_at = ?", now).
		Where("claim_key = ?", key).
		Where("id = ?", existing.ID).
		Exec(ctx)
	if err != nil {
		return "", false, err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return "", false, nil
	}
	return claimID, true, nil
}

func (s *ClaimStore) Complete(ctx context.Context, claimID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: claim store is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return nil
	}
	_, err := s.db.NewUpdate().
		Model((*inboundClaimRecord)(nil)).
		Set("status = ?", claimStatusComplete).
		Set("lease_until = NULL").
		Set("retry_at = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", claimID).
		Where("status = ?", claimStatusProcessing).
		Exec(ctx)
	return err
}

func (s *ClaimStore) Fail(ctx context.Context, claimID string, cause error, retryAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: claim store is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return nil
	}
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}
	_, err := s.db.NewUpdate().
		Model((*inboundClaimRecord)(nil)).
		Set("status = ?", claimStatusRetryReady).
		Set("last_error = ?", lastError).
		Set("lease_until = NULL").
		Set("retry_at = ?", retryAt.UTC()).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", claimID).
		Where("status = ?", claimStatusProcessing).
		Exec(ctx)
	return err
}

var _ core.IdempotencyClaimStore = (*ClaimStore)(nil)
