package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/drivetidy/drivetidy/internal/provider/gdrive"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize drivetidy to access Google Drive",
	Long: `Open the Google consent page, paste back the authorization code and
save the resulting token to drive.token_file.

Requires an OAuth client credentials file (drive.credentials_file)
downloaded from the Google Cloud console.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return newCommandApp(cmd).RunAuth(cmd.Context())
	},
}

// RunAuth runs the OAuth consent flow and saves the token.
func (a *App) RunAuth(ctx context.Context) error {
	cfg, err := gdrive.OAuthConfig(a.Config.Drive.CredentialsFile)
	if err != nil {
		return err
	}

	reader := bufio.NewReader(a.In)
	tok, err := gdrive.Authorize(ctx, cfg, func(authURL string) (string, error) {
		fmt.Fprintln(a.Out, "Open this URL in your browser and authorize access:")
		fmt.Fprintln(a.Out)
		fmt.Fprintln(a.Out, "  "+linkStyle.Render(authURL))
		fmt.Fprintln(a.Out)
		fmt.Fprint(a.Out, "Authorization code: ")
		code, err := reader.ReadString('\n')
		if err != nil && code == "" {
			return "", err
		}
		return strings.TrimSpace(code), nil
	})
	if err != nil {
		return err
	}

	if a.DryRun {
		fmt.Fprintln(a.Out, "[DRY-RUN] Token not saved.")
		return nil
	}
	if err := gdrive.SaveToken(a.Config.Drive.TokenFile, tok); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "✓ Token saved to %s\n", a.Config.Drive.TokenFile)
	return nil
}
