package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxdigest/internal/gateway"
	"github.com/teemow/inboxdigest/internal/session"
)

// credentialFlags holds --email and --password.
type credentialFlags struct {
	email    string
	password string
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.email, "email", "", "Account email (prompted when empty)")
	cmd.Flags().StringVar(&f.password, "password", "", "Account password (read from stdin when empty)")
}

// resolve fills missing credentials from in, one value per line.
func (f *credentialFlags) resolve(in io.Reader, prompt io.Writer) (gateway.Credentials, error) {
	reader := bufio.NewReader(in)
	email, password := strings.TrimSpace(f.email), f.password

	if email == "" {
		fmt.Fprint(prompt, "Email: ")
		line, err := readLine(reader)
		if err != nil {
			return gateway.Credentials{}, fmt.Errorf("failed to read email: %w", err)
		}
		email = line
	}
	if password == "" {
		fmt.Fprint(prompt, "Password: ")
		line, err := readLine(reader)
		if err != nil {
			return gateway.Credentials{}, fmt.Errorf("failed to read password: %w", err)
		}
		password = line
	}

	if email == "" || password == "" {
		return gateway.Credentials{}, errors.New("email and password are required")
	}
	return gateway.Credentials{Email: email, Password: password}, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLoginCmd(opts *globalOptions) *cobra.Command {
	creds := &credentialFlags{}
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the summarization backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthenticate(cmd, opts, creds, false)
		},
	}
	creds.register(cmd)
	return cmd
}

func newSignupCmd(opts *globalOptions) *cobra.Command {
	creds := &credentialFlags{}
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthenticate(cmd, opts, creds, true)
		},
	}
	creds.register(cmd)
	return cmd
}

func runAuthenticate(cmd *cobra.Command, opts *globalOptions, creds *credentialFlags, signup bool) error {
	a, err := opts.newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	c, err := creds.resolve(cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	var resp gateway.AuthResponse
	if signup {
		resp, err = a.sc.Gateway().Signup(ctx, c)
	} else {
		resp, err = a.sc.Gateway().Login(ctx, c)
	}
	if err != nil {
		return err
	}
	if err := a.sc.Session().SaveSession(ctx, resp.Token, resp.User); err != nil {
		return err
	}

	return a.printer.Result(resp.User, func() {
		a.printer.Success("Signed in as %s", resp.User.Email)
		if !resp.User.OnboardingCompleted {
			a.printer.Info("Connect a Gmail or Outlook account in the web app to start summarizing.")
		}
	})
}

func newLogoutCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear session state",
		Long: `Sign out and clear all local state except the summary and digest caches,
which survive so a later login can reuse them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.sc.Session().Logout(cmd.Context()); err != nil {
				return err
			}
			return a.printer.Result(map[string]bool{"loggedOut": true}, func() {
				a.printer.Success("Logged out")
			})
		},
	}
}

// statusReport is the JSON form of the status command.
type statusReport struct {
	LoggedIn   bool                `json:"loggedIn"`
	User       *session.User       `json:"user,omitempty"`
	ExpiresAt  *time.Time          `json:"expiresAt,omitempty"`
	Providers  *gateway.AuthStatus `json:"providers,omitempty"`
	LastLogout *time.Time          `json:"lastLogout,omitempty"`
}

func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session and connected mail providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			guard := a.sc.Session()

			var report statusReport
			if t, ok, err := guard.LastLogout(ctx); err == nil && ok {
				report.LastLogout = &t
			}

			report.LoggedIn = guard.LoggedIn(ctx)
			if report.LoggedIn {
				if report.User, err = guard.CurrentUser(ctx); err != nil {
					return err
				}
				if claims, err := guard.Claims(ctx); err == nil && !claims.ExpiresAt.IsZero() {
					report.ExpiresAt = &claims.ExpiresAt
				}
				status, err := a.sc.Gateway().AuthStatus(ctx)
				if err != nil {
					return a.sessionError(ctx, err)
				}
				report.Providers = &status
			}

			return a.printer.Result(report, func() { printStatus(a, report) })
		},
	}
}

func printStatus(a *app, r statusReport) {
	p := a.printer
	if !r.LoggedIn {
		p.Warning("Not logged in")
		if r.LastLogout != nil {
			p.Print("Last logout: %s", r.LastLogout.Local().Format(time.RFC1123))
		}
		return
	}

	if r.User != nil {
		p.Print("User:      %s", p.Bold(r.User.Email))
	}
	if r.ExpiresAt != nil {
		p.Print("Expires:   %s", r.ExpiresAt.Local().Format(time.RFC1123))
	}
	if r.Providers != nil {
		p.Print("Gmail:     %s", p.Check(r.Providers.IsGoogleConnected))
		p.Print("Outlook:   %s", p.Check(r.Providers.IsO365Connected))
		if !r.Providers.Connected() {
			p.Info("No mail provider connected yet.")
		}
	}
}
