package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Verify(ctx context.Context, token string) error
	VerifyMagic(ctx context.Context, token string) error
	Verify2FA(ctx context.Context, userID, code string) error
	Join(ctx context.Context, roomID string) error
	Leave(ctx context.Context, roomID string) error
	Say(ctx context.Context, text string) error
	Typing(ctx context.Context) error
	Status(ctx context.Context) error
	Whoami(ctx context.Context) error
}

// runREPL starts a simple read-eval-print loop for the GhostTalk client.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Prompt & Commands
//
// The prompt shows the current status (from statusFn) and accepts commands:
//
//	Not logged in:
//	  - help             — show available commands
//	  - register         — create an account
//	  - login            — authenticate
//	  - verify <token>   — complete session verification
//	  - verify magic <token>       — complete a magic-link login
//	  - verify 2fa <user> <code>   — complete a two-factor login
//	  - status           — session and connection state
//	  - exit | quit      — leave the program
//
//	Logged in:
//	  - help             — show available commands
//	  - join <room>      — join a chat room
//	  - leave <room>     — leave a chat room
//	  - say <text>       — post to the active room
//	  - typing           — send a typing signal
//	  - verify <token>   — complete session verification
//	  - whoami           — show the current identity
//	  - status           — session and connection state
//	  - logout           — log out
//	  - exit | quit      — leave the program
//
// Any errors returned by command handlers are ignored here; handlers should
// log their own errors. This keeps the REPL loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("gt %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: join, leave, say, typing, verify, whoami, status, logout, exit")
			} else {
				printlnFn("Available commands: register, login, verify, status, exit")
			}

		case "register":
			_ = a.Register(ctx)

		case "login":
			_ = a.Login(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "verify":
			// verify <token> | verify magic <token> | verify 2fa <user> <code>
			switch {
			case len(args) >= 2 && args[0] == "magic":
				_ = a.VerifyMagic(ctx, args[1])
			case len(args) >= 3 && args[0] == "2fa":
				_ = a.Verify2FA(ctx, args[1], args[2])
			case len(args) == 1:
				_ = a.Verify(ctx, args[0])
			default:
				printlnFn("Usage: verify <token> | verify magic <token> | verify 2fa <user> <code>")
			}

		case "join":
			if len(args) == 0 {
				printlnFn("Usage: join <room>")
				continue
			}
			_ = a.Join(ctx, args[0])

		case "leave":
			if len(args) == 0 {
				printlnFn("Usage: leave <room>")
				continue
			}
			_ = a.Leave(ctx, args[0])

		case "say":
			if len(args) == 0 {
				printlnFn("Usage: say <text>")
				continue
			}
			_ = a.Say(ctx, strings.Join(args, " "))

		case "typing":
			_ = a.Typing(ctx)

		case "whoami":
			_ = a.Whoami(ctx)

		case "status":
			_ = a.Status(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
