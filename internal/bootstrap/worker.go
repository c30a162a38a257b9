package bootstrap

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"

	"support_server/adapter/in/worker"
	"support_server/adapter/out/gmail"
	"support_server/config"
)

// NewWorker builds the mailbox poller on top of the shared dependencies.
func NewWorker(ctx context.Context, cfg *config.Config, deps *Dependencies) (*worker.Poller, error) {
	var token oauth2.Token
	if err := json.Unmarshal([]byte(cfg.GoogleTokenJSON), &token); err != nil {
		return nil, fmt.Errorf("invalid GOOGLE_TOKEN_JSON: %w", err)
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		Endpoint:     google.Endpoint,
		Scopes: []string{
			gmailapi.GmailModifyScope,
			gmailapi.GmailComposeScope,
		},
	}

	source, err := gmail.NewProvider(ctx, &token, oauthCfg)
	if err != nil {
		return nil, fmt.Errorf("gmail provider init failed: %w", err)
	}
	deps.Log.Info().Str("mailbox", source.Email()).Msg("connected to support mailbox")

	return worker.NewPoller(
		source,
		deps.Gate,
		deps.Router,
		deps.Loop,
		deps.Composer,
		deps.Store,
		deps.Sink,
		worker.Config{
			Interval:       cfg.PollInterval,
			Workers:        cfg.PollWorkers,
			ListLimit:      cfg.PollListLimit,
			MessageTimeout: cfg.MessageTimeout,
		},
		deps.Log,
	), nil
}
