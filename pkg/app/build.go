package app

import (
	"context"
	"fmt"

	"github.com/roomkeeper/roomkeeper/pkg/claim"
	"github.com/roomkeeper/roomkeeper/pkg/claim/sqlitestore"
	"github.com/roomkeeper/roomkeeper/pkg/config"
	"github.com/roomkeeper/roomkeeper/pkg/identity"
	"github.com/roomkeeper/roomkeeper/pkg/logging"
	"github.com/roomkeeper/roomkeeper/pkg/notify"
)

// notifyQueueSize bounds pending notifications before new ones are dropped.
const notifyQueueSize = 128

// NewSink builds the notification sink for cfg. With Telegram credentials it
// is an ordered async Telegram sink, otherwise messages go to the log.
func NewSink(cfg *config.Config, logger *logging.Logger) notify.Sink {
	tg := notify.NewTelegram(cfg.Notify.TelegramToken, cfg.Notify.ChatID, cfg.AccountName,
		notify.WithBaseURL(cfg.Notify.APIBaseURL),
		notify.WithTimeout(cfg.Notify.Timeout),
		notify.WithLogger(logger),
	)
	if !tg.Enabled() {
		logger.Warnf("telegram credentials not set, notifications go to the log only")
		return notify.LogSink{Logger: logger}
	}
	return notify.NewAsync(tg, notifyQueueSize, logger)
}

// NewProvider builds the identity client for the claim section.
func NewProvider(cfg *config.Config, logger *logging.Logger) (*identity.Client, error) {
	if cfg.Claim.APIBaseURL == "" {
		return nil, fmt.Errorf("claim API base URL is not set")
	}
	signer, err := identity.NewEthSigner(cfg.Claim.PrivateKey)
	if err != nil {
		return nil, err
	}
	transport, err := identity.NewHTTPTransport(cfg.Claim.APIBaseURL, 0)
	if err != nil {
		return nil, err
	}
	return identity.NewClient(transport, signer, identity.OptionsFromConfig(cfg.Claim), logger), nil
}

// NewStateStore opens the SQLite store when a state path is configured.
func NewStateStore(ctx context.Context, cfg *config.Config) (claim.StateStore, error) {
	if cfg.Claim.StatePath == "" {
		return claim.NewMemoryStore(), nil
	}
	store, err := sqlitestore.Open(ctx, cfg.Claim.StatePath)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// ClaimOnce authenticates and claims a single time, outside the schedule.
func ClaimOnce(ctx context.Context, cfg *config.Config, sink notify.Sink, logger *logging.Logger) (identity.Result, error) {
	provider, err := NewProvider(cfg, logger)
	if err != nil {
		return identity.Result{}, err
	}
	if err := provider.Authenticate(ctx); err != nil {
		if sink != nil {
			sink.Send(ctx, notify.ClaimAuthFailed())
		}
		return identity.Result{}, fmt.Errorf("authentication failed: %w", err)
	}

	res := provider.ClaimQuest(ctx)
	if sink != nil {
		if res.Success {
			sink.Send(ctx, notify.QuestClaimed(res.Message, res.Points))
		} else {
			sink.Send(ctx, notify.QuestFailed(res.Message))
		}
	}
	return res, nil
}
