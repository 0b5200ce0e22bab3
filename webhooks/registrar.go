package webhooks

import (
	"context"
	"strings"

	"github.com/goliatone/go-commercebot/core"
)

// Registrar points the transport's webhook at this deployment once at
// startup.
type Registrar struct {
	Transport core.Transport
	PublicURL string
	Token     string
	Logger    core.Logger
}

// Register computes the public webhook URL and registers it.
func (r Registrar) Register(ctx context.Context) error {
	if r.Transport == nil {
		return core.ConfigMissingError{Field: "transport"}
	}
	publicURL := strings.TrimRight(strings.TrimSpace(r.PublicURL), "/")
	if publicURL == "" {
		return core.ConfigMissingError{Field: "public_url"}
	}
	token := strings.TrimSpace(r.Token)
	if token == "" {
		return core.ConfigMissingError{Field: "bot_token"}
	}

	url := publicURL + "/webhook/" + token
	if err := r.Transport.RegisterWebhook(ctx, url); err != nil {
		return err
	}
	if r.Logger != nil {
		r.Logger.Info("webhook registered", "url", publicURL+"/webhook/***")
	}
	return nil
}
