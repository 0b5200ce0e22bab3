package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type webhookDeliveryRecord struct {
	bun.BaseModel `bun:"table:bot_webhook_deliveries,alias:bwd"`

	ID            string     `bun:"id,pk"`
	ClaimID       string     `bun:"claim_id,notnull"`
	Source        string     `bun:"source,notnull,unique:ux_bot_webhook_deliveries_source_delivery"`
	DeliveryID    string     `bun:"delivery_id,notnull,unique:ux_bot_webhook_deliveries_source_delivery"`
	Status        string     `bun:"status,notnull"`
	Attempts      int        `bun:"attempts,notnull"`
	Payload       []byte     `bun:"payload"`
	LeaseUntil    *time.Time `bun:"lease_until,nullzero"`
	NextAttemptAt *time.Time `bun:"next_attempt_at,nullzero"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type inboundClaimRecord struct {
	bun.BaseModel `bun:"table:bot_inbound_claims,alias:bic"`

	ID         string     `bun:"id,pk"`
	ClaimKey   string     `bun:"claim_key,notnull,unique:ux_bot_inbound_claims_key"`
	Status     string     `bun:"status,notnull"`
	LastError  string     `bun:"last_error"`
	LeaseUntil *time.Time `bun:"lease_until,nullzero"`
	RetryAt    *time.Time `bun:"retry_at,nullzero"`
	CreatedAt  time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
