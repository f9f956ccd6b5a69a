package cli

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"trade-journal/internal/broker"
	"trade-journal/internal/errors"
	"trade-journal/internal/models"
)

// addAuthCommands adds broker session commands.
func addAuthCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Kite Connect session management",
		Long: `Manage the Kite Connect session used for live quotes and the
contract master download.

Kite access tokens expire every morning at 06:00 IST; log in again after that.`,
	}

	cmd.AddCommand(newAuthURLCmd(app))
	cmd.AddCommand(newLoginCmd(app))
	cmd.AddCommand(newAuthStatusCmd(app))
	cmd.AddCommand(newLogoutCmd(app))
	cmd.AddCommand(newTOTPCmd(app))

	rootCmd.AddCommand(cmd)
}

func requireKite(app *App, output *Output) error {
	if app.Kite == nil {
		output.Error("Broker not configured. Add api_key and api_secret to credentials.toml")
		return errors.ErrBrokerUnavailable
	}
	return nil
}

func newAuthURLCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "url",
		Short: "Print the Kite login URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := requireKite(app, output); err != nil {
				return err
			}
			loginURL, err := app.Kite.LoginURL()
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"login_url": loginURL})
			}
			output.Println(loginURL)

			if open, _ := cmd.Flags().GetBool("open"); open {
				if err := openURL(loginURL); err != nil {
					output.Warning("Could not open browser automatically")
				}
			}
			return nil
		},
	}
	cmd.Flags().Bool("open", false, "open the URL in a browser")
	return cmd
}

func newLoginCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "login [request-token-or-redirect-url]",
		Short: "Log in to Kite Connect",
		Long: `Exchange a Kite request token for an access token.

Without an argument the login page is opened and the request token (or the
whole redirect URL) is read from stdin.`,
		Example: `  journal auth login
  journal auth login 'https://127.0.0.1/?request_token=XXXXXX&status=success'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := requireKite(app, output); err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			input := ""
			if len(args) == 1 {
				input = args[0]
			} else {
				loginURL, err := app.Kite.LoginURL()
				if err != nil {
					return err
				}
				output.Info("Opening Kite login page...")
				output.Println()
				output.Bold("Login URL:")
				output.Println(loginURL)
				output.Println()
				if err := openURL(loginURL); err != nil {
					output.Warning("Could not open browser automatically")
				}

				output.Info("After logging in, you'll be redirected to a URL like:")
				output.Dim("  https://your-redirect-url.com/?request_token=XXXXXX&status=success")
				output.Println()
				output.Bold("Paste the redirect URL or request_token here:")

				reader := bufio.NewReader(os.Stdin)
				fmt.Print("> ")
				line, _ := reader.ReadString('\n')
				input = strings.TrimSpace(line)
			}

			profile, err := app.Kite.ExchangeToken(ctx, input)
			if err != nil {
				output.Error("Login failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(profile)
			}
			output.Success("✓ Login successful!")
			printProfile(output, profile)
			return nil
		},
	}
}

func printProfile(output *Output, p *broker.Profile) {
	output.Println()
	output.Bold("Account Info")
	output.Printf("  User ID:    %s\n", p.UserID)
	output.Printf("  Name:       %s\n", p.UserName)
	if p.Email != "" {
		output.Printf("  Email:      %s\n", p.Email)
	}
	output.Printf("  Exchanges:  %s\n", strings.Join(p.Exchanges, ", "))
	output.Println()

	expiry := sessionExpiry(time.Now())
	output.Bold("Session")
	output.Printf("  Expires:    %s (%s remaining)\n",
		expiry.Format("02 Jan 2006, 03:04 PM"),
		formatDuration(time.Until(expiry)))
}

// sessionExpiry returns the next 06:00 IST after now.
func sessionExpiry(now time.Time) time.Time {
	now = now.In(models.IST)
	expiry := time.Date(now.Year(), now.Month(), now.Day(), 6, 0, 0, 0, models.IST)
	if !now.Before(expiry) {
		expiry = expiry.AddDate(0, 0, 1)
	}
	return expiry
}

func openURL(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform")
	}
	return cmd.Start()
}

func newAuthStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check authentication status",
		Long:  "Display whether a Kite session exists and when it expires.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			var status broker.AuthStatus
			if app.Kite != nil {
				status = app.Kite.Status(ctx)
			} else {
				status = broker.AuthStatus{CheckedAt: time.Now()}
			}

			if output.IsJSON() {
				return output.JSON(status)
			}

			switch {
			case !status.Configured:
				output.Warning("Broker not configured")
				output.Info("Add api_key and api_secret to credentials.toml")
				return nil
			case status.Valid:
				output.Success("✓ Authenticated as %s", status.UserID)
			case status.HasToken:
				output.Warning("Session could not be verified: %s", status.Error)
				return nil
			default:
				output.Warning("Not authenticated")
				if status.Error != "" {
					output.Dim("%s", status.Error)
				}
				output.Println()
				output.Info("Run 'journal auth login' to authenticate")
				return nil
			}

			expiry := sessionExpiry(time.Now())
			output.Printf("  Session expires: %s (%s remaining)\n",
				expiry.Format("02 Jan 15:04"),
				formatDuration(time.Until(expiry)))

			if app.Master != nil {
				if last := app.Master.LastRefresh(); !last.IsZero() {
					output.Printf("  Master refreshed: %s\n", FormatDateTime(last))
				}
			}
			return nil
		},
	}
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out of Kite Connect",
		Long:  "Invalidate the current session and clear the stored access token.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Kite == nil {
				output.Warning("No active session found.")
				return nil
			}
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			if err := app.Kite.Logout(ctx); err != nil {
				output.Error("Logout failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"success":   true,
					"timestamp": time.Now().Format(time.RFC3339),
				})
			}
			output.Success("✓ Logged out successfully!")
			output.Dim("Session token has been cleared.")
			return nil
		},
	}
}

func newTOTPCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:         "totp",
		Short:       "Print the current Kite TOTP code",
		Annotations: map[string]string{annotationSetup: setupConfig},
		Long: `Print the two-factor code for the Kite login page, generated from
totp_secret in credentials.toml.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			secret := app.Config.Credentials.Kite.TOTPSecret
			if secret == "" {
				output.Error("totp_secret is not set in credentials.toml")
				return errors.NewValidationError("totp_secret", "", "not configured")
			}

			now := time.Now()
			code, err := broker.GenerateTOTP(secret, now)
			if err != nil {
				output.Error("Failed to generate TOTP: %v", err)
				return err
			}
			remaining := broker.TOTPRemaining(now)

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"code":              code,
					"remaining_seconds": remaining,
				})
			}
			output.Printf("%s  %s\n", output.Green(code), output.DimText(fmt.Sprintf("(%ds left)", remaining)))
			return nil
		},
	}
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
