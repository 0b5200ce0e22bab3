// Package identity maps inbound senders to durable customer records in the
// backend store, deduplicating across webhook deliveries through the
// conversation session.
package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-commercebot/core"
)

type Config struct {
	Backend  core.Backend
	Sessions core.SessionStore
	Logger   core.Logger
}

type Resolver struct {
	backend  core.Backend
	sessions core.SessionStore
	logger   core.Logger
}

func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("identity: backend client is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("identity: session store is required")
	}
	return &Resolver{
		backend:  cfg.Backend,
		sessions: cfg.Sessions,
		logger:   cfg.Logger,
	}, nil
}

// Resolve returns the customer for a conversation, creating one on first
// contact. The session cache is the dedup fast path: once a conversation
// holds a customer id no further backend calls are made. A creation
// conflict (the natural key already exists) is reconciled by fetching the
// existing record instead of failing; every other backend failure
// propagates as-is.
//
// Raced duplicate natural keys are not auto-merged: callers that learn a
// real phone later must issue an update, not a second create.
func (r *Resolver) Resolve(ctx context.Context, conversationID int64, profile core.SenderProfile) (core.Customer, error) {
	if r == nil || r.backend == nil || r.sessions == nil {
		return core.Customer{}, fmt.Errorf("identity: resolver is not configured")
	}

	var resolved core.Customer
	err := r.sessions.Do(ctx, conversationID, func(session *core.Session) error {
		if session.Customer != nil && session.CustomerID != 0 {
			resolved = *session.Customer
			return nil
		}

		customer, err := r.resolveRemote(ctx, conversationID, profile)
		if err != nil {
			return err
		}
		session.CustomerID = customer.ID
		cached := customer
		session.Customer = &cached
		resolved = customer
		return nil
	})
	if err != nil {
		return core.Customer{}, err
	}
	return resolved, nil
}

// UpdatePhone replaces the customer's natural key with a shared contact
// number and refreshes the session cache.
func (r *Resolver) UpdatePhone(ctx context.Context, conversationID int64, phone string) (core.Customer, error) {
	if r == nil || r.backend == nil || r.sessions == nil {
		return core.Customer{}, fmt.Errorf("identity: resolver is not configured")
	}
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return core.Customer{}, core.BadInputError{Reason: "phone number is required"}
	}

	var updated core.Customer
	err := r.sessions.Do(ctx, conversationID, func(session *core.Session) error {
		if session.CustomerID == 0 {
			return core.BadInputError{Reason: "no resolved customer for conversation"}
		}
		customer, err := r.backend.UpdateCustomerPhone(ctx, session.CustomerID, phone)
		if err != nil {
			return fmt.Errorf("identity: update customer phone: %w", err)
		}
		cached := customer
		session.Customer = &cached
		updated = customer
		return nil
	})
	if err != nil {
		return core.Customer{}, err
	}
	return updated, nil
}

func (r *Resolver) resolveRemote(ctx context.Context, conversationID int64, profile core.SenderProfile) (core.Customer, error) {
	naturalKey := profile.NaturalKey(conversationID)
	candidate := core.Customer{
		DisplayName: profile.DisplayName(),
		Phone:       naturalKey,
		StoreLabel:  fmt.Sprintf("Client-%d", conversationID),
	}

	created, err := r.backend.CreateCustomer(ctx, candidate)
	if err == nil {
		return created, nil
	}
	if !core.IsBackendConflict(err) {
		return core.Customer{}, fmt.Errorf("identity: create customer: %w", err)
	}

	r.logDebug(ctx, "customer natural key already registered, fetching existing record",
		"conversation_id", conversationID, "natural_key", naturalKey)
	existing, fetchErr := r.backend.CustomerByPhone(ctx, naturalKey)
	if fetchErr != nil {
		return core.Customer{}, fmt.Errorf("identity: fetch customer after conflict: %w", fetchErr)
	}
	return existing, nil
}

func (r *Resolver) logDebug(ctx context.Context, message string, args ...any) {
	if r == nil || r.logger == nil {
		return
	}
	logger := r.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Debug(message, args...)
}
