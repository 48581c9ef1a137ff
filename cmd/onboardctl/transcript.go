package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newTranscriptCommand(opts *rootOptions) *cobra.Command {
	var deviceID, conversationKey string

	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Print a stored conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			ident, err := opts.resolveIdentity(deviceID, conversationKey)
			if err != nil {
				return err
			}

			gw, closeFn, err := opts.openGateway(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			conv := gw.FindConversation(cmd.Context(), ident.DeviceID, ident.ConversationKey)
			if conv == nil {
				return errors.New("no conversation found")
			}
			messages, ok := gw.LoadMessages(cmd.Context(), conv.ID)
			if !ok {
				return errors.New("could not load messages")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "conversation %s (started %s)\n", conv.ID, conv.StartedAt.Format("2006-01-02 15:04"))
			for _, m := range messages {
				fmt.Fprintf(out, "[%s] %s: %s\n", m.Timestamp.Format("15:04:05"), m.Role, m.Text)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&deviceID, "device", "", "device id (default is the local identity)")
	cmd.Flags().StringVar(&conversationKey, "id", "", "conversation key (default is the device's own conversation)")
	return cmd
}

func newResetCommand(opts *rootOptions) *cobra.Command {
	var deviceID, conversationKey string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the stored messages of a conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			ident, err := opts.resolveIdentity(deviceID, conversationKey)
			if err != nil {
				return err
			}

			gw, closeFn, err := opts.openGateway(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			conv := gw.FindConversation(cmd.Context(), ident.DeviceID, ident.ConversationKey)
			if conv == nil {
				return errors.New("no conversation found")
			}
			if !gw.DeleteConversationMessages(cmd.Context(), conv.ID) {
				return errors.New("could not delete messages")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared conversation %s\n", conv.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&deviceID, "device", "", "device id (default is the local identity)")
	cmd.Flags().StringVar(&conversationKey, "id", "", "conversation key (default is the device's own conversation)")
	return cmd
}
