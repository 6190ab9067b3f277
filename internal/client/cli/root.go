package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/ghosttalk/ghosttalk-client/internal/client/storage"
)

func (a *App) getStatus() string {
	s := ""
	if u := a.controller.User(); u != nil {
		s = u.DisplayName + " "
	}
	if a.Mode != "" {
		s = s + string(a.Mode)
	}
	if room := a.activeRoom(); room != "" {
		s = s + " #" + room
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

// maybeShowOnboarding prints the first-run walkthrough. It runs when the
// durable hasSeenOnboarding flag is unset, or when forceOnboarding was set
// (a support escape hatch); the force flag is consumed on use.
func (a *App) maybeShowOnboarding(ctx context.Context) {
	force, _ := a.durable.Get(ctx, storage.KeyForceOnboarding)
	seen, _ := a.durable.Get(ctx, storage.KeyHasSeenOnboarding)
	if seen == "true" && force != "true" {
		return
	}

	printlnFn("Welcome to GhostTalk!")
	printlnFn("  1. 'register' to create an account, or 'login' if you have one")
	printlnFn("  2. 'join <room>' to enter a chat room")
	printlnFn("  3. 'say <text>' to talk; 'help' lists everything else")

	if err := a.durable.Set(ctx, storage.KeyHasSeenOnboarding, "true"); err != nil {
		a.log.Warn(ctx, "failed to persist onboarding flag", "err", err)
	}
	_ = a.durable.Delete(ctx, storage.KeyForceOnboarding)
}

// Root runs the interactive loop until EOF or an exit command.
func (a *App) Root(ctx context.Context) {
	printlnFn("GhostTalk client (type 'help' for commands)")
	a.maybeShowOnboarding(ctx)
	a.wireGlobalEvents(ctx)

	watcherCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.StartOnlineStatusWatcher(watcherCtx, a.config.OnlineCheckInterval)

	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.getStatus, scanner)
}
