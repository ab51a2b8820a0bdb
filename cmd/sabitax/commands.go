package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sabitax/sabitax/internal/config"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a tax question",
	Long: `Ask a question about Nigerian tax law and print the cited answer.

Examples:
  sabitax ask "What is the CIT rate for large companies?"
  sabitax ask --role tax_lawyer "Which sections govern VAT registration?"
  sabitax ask --session 8f14e45f "What about the filing deadline?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		session, _ := cmd.Flags().GetString("session")
		role, _ := cmd.Flags().GetString("role")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{"message": question}
		if session != "" {
			req["session_id"] = session
		}
		if role != "" {
			req["role"] = role
		}

		resp, err := client.post(cmd.Context(), "/chat", req)
		if err != nil {
			return err
		}

		var result struct {
			Response  string `json:"response"`
			SessionID string `json:"session_id"`
			Sources   []struct {
				Citation   string `json:"citation"`
				SourceFile string `json:"source_file"`
				Page       int    `json:"page"`
			} `json:"sources"`
			UsedRetrieval bool   `json:"used_retrieval"`
			Language      string `json:"language"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Response)
		fmt.Println()
		printStatus("Session", "%s", result.SessionID)
		if result.Language != "English" {
			printStatus("Language", "%s", result.Language)
		}
		if !result.UsedRetrieval {
			printStatus("Sources", "none (answered without retrieval)")
		}
		return nil
	},
}

func init() {
	askCmd.Flags().String("session", "", "session ID to continue a conversation")
	askCmd.Flags().String("role", "", "role lens: tax_lawyer, taxpayer, or company")
}

// --- reindex ---

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the legislation corpus index",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Rebuilding corpus index...")
		resp, err := client.post(cmd.Context(), "/reload-documents", nil)
		if err != nil {
			return err
		}

		var result struct {
			Message  string `json:"message"`
			Passages int    `json:"passages"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Indexed %d passages", result.Passages)
		return nil
	},
}

// --- sessions ---

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recent conversation sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/sessions")
		if err != nil {
			return err
		}

		var sessions []struct {
			SessionID    string `json:"session_id"`
			Title        string `json:"title"`
			MessageCount int    `json:"message_count"`
			LastActivity string `json:"last_activity"`
		}
		if err := decodeJSON(resp, &sessions); err != nil {
			return err
		}

		if len(sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		for _, s := range sessions {
			fmt.Printf("%s  %s  %s (%d messages)\n",
				paint(ansiCyan, shortID(s.SessionID)),
				s.LastActivity,
				truncateLine(s.Title, 60),
				s.MessageCount,
			)
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show the full history of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/sessions/"+url.PathEscape(args[0])+"/history")
		if err != nil {
			return err
		}

		var history struct {
			SessionID string `json:"session_id"`
			Messages  []struct {
				Role      string `json:"role"`
				Content   string `json:"content"`
				CreatedAt string `json:"created_at"`
			} `json:"messages"`
		}
		if err := decodeJSON(resp, &history); err != nil {
			return err
		}

		if len(history.Messages) == 0 {
			fmt.Println("No messages in this session.")
			return nil
		}

		for _, m := range history.Messages {
			label := m.Role
			if label == "user" {
				label = paint(ansiBold, "you")
			} else {
				label = paint(ansiCyan, "sabitax")
			}
			fmt.Printf("%s  %s\n%s\n\n", label, m.CreatedAt, m.Content)
		}
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsShowCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", paint(ansiBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
