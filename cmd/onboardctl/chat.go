package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/bamboo-onboard/backend/internal/bootstrap"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/model/chat"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/service/onboarding"
)

func newChatCommand(opts *rootOptions) *cobra.Command {
	var conversationKey string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the onboarding assistant in the terminal",
		Long: `Starts an onboarding conversation in the terminal.

Type an answer and press enter. "/reset" starts over and "/quit" leaves.
The device id is kept in the identity file, so running chat again resumes
the same conversation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ident, err := opts.resolveIdentity("", conversationKey)
			if err != nil {
				return err
			}

			app, err := bootstrap.New(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer app.Close()

			session, err := app.Sessions.Open(cmd.Context(), ident)
			if err != nil {
				return err
			}
			return runChat(cmd, session)
		},
	}

	cmd.Flags().StringVar(&conversationKey, "id", "", "conversation key (default is the device's own conversation)")
	return cmd
}

func runChat(cmd *cobra.Command, session *onboarding.Session) error {
	out := cmd.OutOrStdout()

	// The greeting (or the restored transcript) is complete once Wait returns;
	// everything after arrives as events.
	session.Wait()
	for _, m := range session.Messages() {
		printMessage(out, m)
	}

	events, unsubscribe := session.Subscribe()
	var printer sync.WaitGroup
	printer.Add(1)
	go func() {
		defer printer.Done()
		for ev := range events {
			printEvent(out, ev)
		}
	}()
	defer func() {
		unsubscribe()
		printer.Wait()
	}()

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			session.Wait()
			return nil
		case "/reset":
			if err := session.Reset(cmd.Context()); err != nil {
				return err
			}
		default:
			if _, err := session.Send(cmd.Context(), line); err != nil {
				return err
			}
		}
		if cmd.Context().Err() != nil {
			break
		}
	}

	session.Wait()
	return scanner.Err()
}

func printEvent(w io.Writer, ev onboarding.Event) {
	switch ev.Type {
	case onboarding.EventReset:
		fmt.Fprintln(w, "--- conversation restarted ---")
	case onboarding.EventMessage:
		if ev.Message != nil && ev.Message.Role != chat.RoleUser {
			printMessage(w, *ev.Message)
		}
	}
}

func printMessage(w io.Writer, m chat.Message) {
	switch {
	case m.Widget():
		fmt.Fprintln(w, "bamboo> [book a call with our team]")
	case m.Role == chat.RoleUser:
		fmt.Fprintf(w, "you> %s\n", m.Text)
	default:
		fmt.Fprintf(w, "bamboo> %s\n", m.Text)
	}
}
