//go:build !desktop

package cli

import (
	"context"

	"github.com/quillhq/quill/internal/agent"
)

// runOverlayAgent runs the agent with the headless renderer. Builds with
// -tags desktop replace this with a real webview window.
func runOverlayAgent(ctx context.Context, opts agent.Options) error {
	rt, err := agent.New(opts)
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}
