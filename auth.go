package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/SunnyJalendra/minidrive-go/internal/api"
	"github.com/SunnyJalendra/minidrive-go/internal/session"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login [email]",
		Short: "Sign in and save the session token",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLogin,
	}
}

func newSignupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signup [email]",
		Short: "Create an account and sign in",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSignup,
	}

	cmd.Flags().String("admin-code", "", "admin enrollment code")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved session token",
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the authenticated user from the saved session",
		RunE:  runWhoami,
	}
}

// promptCredentials collects the email (from args or stdin) and the
// password (without echo).
func promptCredentials(args []string) (string, string, error) {
	email := ""
	if len(args) > 0 {
		email = args[0]
	}

	if email == "" {
		fmt.Fprint(os.Stderr, "Email: ")

		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return "", "", fmt.Errorf("reading email: %w", err)
		}

		email = strings.TrimSpace(line)
	}

	if email == "" {
		return "", "", fmt.Errorf("email is required")
	}

	fmt.Fprint(os.Stderr, "Password: ")

	pw, err := readPassword(int(os.Stdin.Fd()))

	fmt.Fprintln(os.Stderr)

	if err != nil {
		return "", "", fmt.Errorf("reading password: %w", err)
	}

	return email, string(pw), nil
}

// saveSession persists the credentials from a successful login or signup.
func saveSession(env *appEnv, creds *api.Credentials) error {
	meta := map[string]string{
		session.MetaUserID:  creds.User.ID,
		session.MetaEmail:   creds.User.Email,
		session.MetaIsAdmin: strconv.FormatBool(creds.User.IsAdmin),
	}

	return env.sess.Set(creds.Token, meta)
}

func runLogin(_ *cobra.Command, args []string) error {
	env, err := buildEnv()
	if err != nil {
		return err
	}

	email, password, err := promptCredentials(args)
	if err != nil {
		return err
	}

	creds, err := env.client.Login(context.Background(), email, password)
	if err != nil {
		return err
	}

	if err := saveSession(env, creds); err != nil {
		return err
	}

	statusf("Logged in as %s.\n", creds.User.Email)

	return nil
}

func runSignup(cmd *cobra.Command, args []string) error {
	env, err := buildEnv()
	if err != nil {
		return err
	}

	email, password, err := promptCredentials(args)
	if err != nil {
		return err
	}

	adminCode, _ := cmd.Flags().GetString("admin-code")

	creds, err := env.client.Signup(context.Background(), email, password, adminCode)
	if err != nil {
		return err
	}

	if err := saveSession(env, creds); err != nil {
		return err
	}

	statusf("Account created. Logged in as %s.\n", creds.User.Email)

	return nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	env, err := buildEnv()
	if err != nil {
		return err
	}

	// Explicit logout wants no "session expired" noise.
	env.sess.SetOnClear(nil)

	if err := env.sess.Clear(); err != nil {
		return err
	}

	statusf("Logged out.\n")

	return nil
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	IsAdmin   bool   `json:"is_admin"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

func runWhoami(_ *cobra.Command, _ []string) error {
	env, err := buildEnv()
	if err != nil {
		return err
	}

	if err := env.requireSession(); err != nil {
		return err
	}

	out := whoamiOutput{}

	// Token claims are the primary identity source; the metadata cached at
	// login time covers tokens that are not decodable JWTs.
	if claims, ok := env.sess.Claims(); ok {
		out.ID = claims.UserID
		out.Email = claims.Email
		out.IsAdmin = claims.IsAdmin

		if !claims.ExpiresAt.IsZero() {
			out.ExpiresAt = claims.ExpiresAt.Format(time.RFC3339)
		}

		if claims.Expired(time.Now()) {
			fmt.Fprintln(os.Stderr, "Warning: saved session has expired; the next request will require a fresh login.")
		}
	} else {
		meta := env.sess.Meta()
		out.ID = meta[session.MetaUserID]
		out.Email = meta[session.MetaEmail]
		out.IsAdmin = meta[session.MetaIsAdmin] == "true"
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	}

	fmt.Printf("User:  %s\n", out.Email)
	fmt.Printf("ID:    %s\n", out.ID)

	if out.IsAdmin {
		fmt.Println("Role:  admin")
	}

	if out.ExpiresAt != "" {
		fmt.Printf("Token expires: %s\n", out.ExpiresAt)
	}

	return nil
}
