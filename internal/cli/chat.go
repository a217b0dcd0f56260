package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the agent in the terminal",
	Long: `Start an interactive conversation in the terminal. Type a question and
the agent will query your activities, run scripts, and answer. Type "clear"
to start over, "help" for commands, or "exit" to leave.`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, l, zl, err := loadConfigAndLogger(false)
	if err != nil {
		return err
	}
	defer l.Close()

	app, err := newApp(cfg, zl)
	if err != nil {
		return err
	}
	defer app.Close()

	const sessionKey = "cli"
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Paceline ready. Ask about your training, or type \"help\".")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch strings.ToLower(line) {
		case "exit", "quit":
			return nil
		case "clear":
			app.sessions.Clear(sessionKey)
			fmt.Fprintln(out, "Conversation cleared.")
			continue
		case "help":
			fmt.Fprintln(out, "Ask a question about your activities, or:")
			fmt.Fprintln(out, "  clear  start a fresh conversation")
			fmt.Fprintln(out, "  exit   leave")
			continue
		}

		sess, err := app.sessions.GetOrCreate(sessionKey)
		if err != nil {
			return err
		}

		answer, err := sess.Ask(context.Background(), line, func(status string) {
			fmt.Fprintln(out, "  "+status)
		})
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}

		fmt.Fprintln(out, answer)
		if cost := sess.CostString(); cost != "" {
			fmt.Fprintln(out, cost)
		}
	}

	return scanner.Err()
}
