package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quillhq/quill/internal/agent"
	"github.com/quillhq/quill/internal/logging"
)

// AgentCmd creates the hidden agent command. The host launches this as a
// child process with stdout/stderr redirected to agent.log; it is not
// meant to be run by hand.
func AgentCmd() *cobra.Command {
	var hubPort int
	var hubToken string

	cmd := &cobra.Command{
		Use:    "agent",
		Short:  "Run the overlay agent process (launched by the host)",
		Hidden: true,
		Run: func(cmd *cobra.Command, args []string) {
			if hubPort == 0 || hubToken == "" {
				fmt.Fprintln(os.Stderr, "agent: --hub-port and --hub-token are required (did you mean to run 'quill'?)")
				os.Exit(1)
			}
			if err := runAgentProcess(hubPort, hubToken); err != nil {
				logging.Errorf("[agent] exit: %v", err)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().IntVar(&hubPort, "hub-port", 0, "hub control channel port")
	cmd.Flags().StringVar(&hubToken, "hub-token", "", "hub session token")

	return cmd
}

func runAgentProcess(port int, token string) error {
	c := hostConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The host kills us with SIGTERM if the shutdown notice gets lost
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	logging.Infof("[agent] pid %d, hub port %d", os.Getpid(), port)

	return runOverlayAgent(ctx, agent.Options{
		HubPort:  port,
		HubToken: token,
		Config:   c,
	})
}
