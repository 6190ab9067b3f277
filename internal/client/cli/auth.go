package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/ghosttalk/ghosttalk-client/internal/client/api"
	"github.com/ghosttalk/ghosttalk-client/internal/common"
)

// getSimpleText, getPassword and getConfirm are indirections used to
// facilitate testing. They point to interactive input helpers and can be
// swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword
var getConfirm = GetConfirm

// Register prompts for the sign-up fields and creates an account. GhostTalk
// registration never issues a token; on success the user is told to log in.
//
// The password byte slice is securely wiped before returning.
func (a *App) Register(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}
	name, err := getSimpleText(a.reader, "Enter display name", os.Stdout)
	if err != nil {
		return err
	}
	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	res := a.controller.Register(ctx, api.RegisterRequest{
		Email:    email,
		Name:     name,
		Password: string(password),
	})
	if !res.Success {
		printlnFn("Registration failed:", res.Message)
		return nil
	}

	printlnFn("Account created, you can log in now.")
	return nil
}

// Login prompts for credentials and authenticates. With "remember me" the
// session survives restarts for up to a week; without it the token lives in
// the per-run scope only.
//
// A backend that wants the email verified first comes back as a
// NeedsVerification result; the user completes it with the verify command.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}
	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	rememberMe, err := getConfirm(a.reader, "Stay logged in on this device?", os.Stdout)
	if err != nil {
		return err
	}

	res := a.controller.Login(ctx, email, string(password), rememberMe)
	switch {
	case res.NeedsVerification:
		printlnFn("Check your inbox: this login needs verification ('verify <token>').")
	case !res.Success:
		printlnFn("Login failed:", res.Message)
	default:
		printlnFn("Logged in.")
	}
	return nil
}

// Logout tears the session down locally even when the backend is
// unreachable, then drops any room subscriptions.
func (a *App) Logout(ctx context.Context) error {
	a.leaveAllRooms()
	a.controller.Logout(ctx)
	printlnFn("Logged out.")
	return nil
}

// Verify completes the email-link session verification with the token from
// the emailed URL.
func (a *App) Verify(ctx context.Context, verificationToken string) error {
	res := a.controller.VerifySession(ctx, verificationToken)
	if !res.Success {
		printlnFn("Verification failed:", res.Message)
		return nil
	}
	printlnFn("Session verified.")
	return nil
}

// VerifyMagic completes a magic-link login with the token from the emailed
// URL. It issues a session on success, like a password login.
func (a *App) VerifyMagic(ctx context.Context, linkToken string) error {
	rememberMe, err := getConfirm(a.reader, "Stay logged in on this device?", os.Stdout)
	if err != nil {
		return err
	}

	res := a.controller.VerifyMagicLink(ctx, linkToken, rememberMe)
	if !res.Success {
		printlnFn("Magic-link login failed:", res.Message)
		return nil
	}
	printlnFn("Logged in.")
	return nil
}

// Verify2FA completes a two-factor login with the one-time code.
func (a *App) Verify2FA(ctx context.Context, userID, code string) error {
	rememberMe, err := getConfirm(a.reader, "Stay logged in on this device?", os.Stdout)
	if err != nil {
		return err
	}

	res := a.controller.Verify2FA(ctx, userID, code, rememberMe)
	if !res.Success {
		printlnFn("Two-factor login failed:", res.Message)
		return nil
	}
	printlnFn("Logged in.")
	return nil
}

// Whoami prints the current identity.
func (a *App) Whoami(ctx context.Context) error {
	u := a.controller.User()
	if u == nil {
		printlnFn("Not logged in.")
		return nil
	}
	printlnFn(fmt.Sprintf("%s <%s> (%s tier)", u.DisplayName, u.Email, u.ProTier))
	return nil
}

// Status prints the session and transport state.
func (a *App) Status(ctx context.Context) error {
	printlnFn("session:  ", string(a.controller.Status()))
	printlnFn("gate:     ", string(a.controller.Gate(ctx)))
	printlnFn("realtime: ", string(a.transport.State()))
	printlnFn("mode:     ", string(a.Mode))
	return nil
}
