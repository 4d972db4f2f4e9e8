package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MaestroError/laragent"
	"github.com/MaestroError/laragent/pkg/message"
	"github.com/spf13/cobra"
)

func buildSendCmd() *cobra.Command {
	var agentName, chatName, userID string
	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Send a single message and print the assistant's reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			agent, err := buildAgent(ctx, configPath)
			if err != nil {
				return err
			}
			identity := message.SessionIdentity{AgentName: agentName, ChatName: chatName, UserID: userID}
			reply, err := agent.Respond(ctx, identity, args[0], nil)
			if err != nil {
				return err
			}
			fmt.Println(replyText(reply))
			return nil
		},
	}
	cmd.Flags().StringVar(&agentName, "agent", "laragent-demo", "Agent name for session scoping")
	cmd.Flags().StringVar(&chatName, "chat", "default", "Chat name for session scoping")
	cmd.Flags().StringVar(&userID, "user", "cli", "User ID for session scoping")
	return cmd
}

func buildChatCmd() *cobra.Command {
	var agentName, chatName, userID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Run an interactive REPL against the configured provider chain, streaming tokens as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			agent, err := buildAgent(ctx, configPath)
			if err != nil {
				return err
			}
			identity := message.SessionIdentity{AgentName: agentName, ChatName: chatName, UserID: userID}
			return runChatLoop(ctx, agent, identity, os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&agentName, "agent", "laragent-demo", "Agent name for session scoping")
	cmd.Flags().StringVar(&chatName, "chat", "default", "Chat name for session scoping")
	cmd.Flags().StringVar(&userID, "user", "cli", "User ID for session scoping")
	return cmd
}

// runChatLoop reads lines from r, sends each as a turn, and prints streamed
// text deltas as they arrive until r is exhausted or ctx is cancelled.
func runChatLoop(ctx context.Context, agent *laragent.Agent, identity message.SessionIdentity, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	fmt.Fprint(w, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Fprint(w, "> ")
			continue
		}
		if line == "/exit" || line == "/quit" {
			return nil
		}

		for ev := range agent.RespondStreamed(ctx, identity, line, nil) {
			switch {
			case ev.Err != nil:
				fmt.Fprintln(w, "error:", ev.Err)
			case ev.TextDelta != "":
				fmt.Fprint(w, ev.TextDelta)
			case ev.ToolResult != nil:
				fmt.Fprintf(w, "\n[tool %s -> %s]\n", ev.ToolResult.ToolName, ev.ToolResult.Result)
			case ev.Final != nil:
				fmt.Fprintln(w)
			}
		}
		fmt.Fprint(w, "> ")
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func replyText(m message.Message) string {
	if a, ok := m.(*message.AssistantMessage); ok {
		return a.Text
	}
	return ""
}
