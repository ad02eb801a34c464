package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillhq/quill/internal/agent/chatstore"
	"github.com/quillhq/quill/internal/logging"
	"github.com/quillhq/quill/internal/suggest"
)

// DraftCmd creates the draft command: one-shot suggestions in the terminal
func DraftCmd() *cobra.Command {
	var count int
	var showContext bool

	cmd := &cobra.Command{
		Use:   "draft <conversation>",
		Short: "Draft reply suggestions for a conversation",
		Long: `Read the tail of a conversation straight from the messenger's store
and print reply suggestions, without the overlay.

The conversation can be a contact name as it appears in the window
title, a phone number, or a chat identifier.

Examples:
  quill draft "John Appleseed"
  quill draft +15551234567 --count 5
  quill draft work-group --context`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runDraft(args[0], count, showContext)
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 0, "number of suggestions (default from config)")
	cmd.Flags().BoolVar(&showContext, "context", false, "print the conversation context first")

	return cmd
}

func runDraft(ref string, count int, showContext bool) {
	if !verbose {
		logging.Disable()
	}

	c := hostConfig()
	if count > 0 {
		c.Suggestions.MaxCount = count
	}

	reader := chatstore.NewReader(c.Messenger.StorePath, c.Messenger.ContextDepth)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	convo, err := reader.Read(ctx, ref)
	if err != nil {
		switch {
		case errors.Is(err, chatstore.ErrPermission):
			fmt.Fprintln(os.Stderr, "\033[31mError: no permission to read the message store.\033[0m")
			fmt.Fprintln(os.Stderr, "On macOS, grant Full Disk Access to your terminal and try again.")
		case errors.Is(err, chatstore.ErrNotFound):
			fmt.Fprintf(os.Stderr, "\033[31mError: no conversation matching %q.\033[0m\n", ref)
		case errors.Is(err, chatstore.ErrUnavailable):
			fmt.Fprintln(os.Stderr, "\033[31mError: the message store is busy, try again in a moment.\033[0m")
		default:
			fmt.Fprintf(os.Stderr, "\033[31mError: %v\033[0m\n", err)
		}
		os.Exit(1)
	}

	if showContext {
		fmt.Println(convo.Transcript())
		fmt.Println()
	}

	var replies []string
	engine, err := suggest.NewEngine(c)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\033[33mWarning: %v (using canned replies)\033[0m\n", err)
		replies = suggest.Fallback()
	} else {
		replies = engine.Generate(ctx, convo.Transcript())
	}
	if count > 0 && count < len(replies) {
		replies = replies[:count]
	}

	for i, r := range replies {
		fmt.Printf("  %d. %s\n", i+1, r)
	}
}
