package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhouzirui/bamboo-onboard/backend/internal/config"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/identity"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/logger"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/store"
)

type rootOptions struct {
	identityPath string
	logLevel     string
}

// NewRootCommand builds the command tree reading from in and writing to out.
func NewRootCommand(in io.Reader, out io.Writer) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "onboardctl",
		Short:         "Bamboo onboarding chat tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(in)
	root.SetOut(out)

	root.PersistentFlags().StringVar(&opts.identityPath, "identity", "", "identity file (default is <user config dir>/onboardctl/identity.json)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		newChatCommand(opts),
		newMigrateCommand(opts),
		newTranscriptCommand(opts),
		newResetCommand(opts),
	)
	return root
}

func (o *rootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(logger.Config{Level: o.logLevel, Format: "console"})
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func (o *rootOptions) identityStore() (*identity.FileStore, error) {
	path := o.identityPath
	if path == "" {
		var err error
		if path, err = identity.DefaultFilePath(); err != nil {
			return nil, err
		}
	}
	return identity.OpenFileStore(path)
}

// resolveIdentity fills in whatever the flags left empty from the identity file.
func (o *rootOptions) resolveIdentity(deviceID, conversationKey string) (identity.Identity, error) {
	if deviceID != "" && conversationKey != "" {
		return identity.Identity{DeviceID: deviceID, ConversationKey: conversationKey}, nil
	}

	ids, err := o.identityStore()
	if err != nil {
		return identity.Identity{}, err
	}
	if deviceID != "" {
		if err := ids.Set(identity.DeviceKey, deviceID); err != nil {
			return identity.Identity{}, err
		}
	}
	return identity.Resolve(ids, conversationKey)
}

func (o *rootOptions) openGateway(ctx context.Context) (*store.Gateway, func() error, error) {
	cfg, log, err := o.load()
	if err != nil {
		return nil, nil, err
	}
	repo, closeFn, err := store.Open(ctx, cfg.Store, log)
	if err != nil {
		return nil, nil, err
	}
	return store.NewGateway(repo, log, nil), closeFn, nil
}
