package auth

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
)

// OAuthConfig loads the app's client secret (credentials.json) with read-only Gmail scope.
func OAuthConfig(credentialsFile, redirectURL string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	cfg, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	if redirectURL != "" {
		cfg.RedirectURL = redirectURL
	}
	return cfg, nil
}

// ConsentURL is the link the user opens to grant mailbox access.
// Offline access plus forced consent guarantees a refresh token.
func ConsentURL(cfg *oauth2.Config, state string) string {
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ConnectInteractive prints the consent URL, reads the authorization code
// pasted by the user and exchanges it for a token.
func ConnectInteractive(ctx context.Context, cfg *oauth2.Config, state string, in io.Reader, out io.Writer) (*oauth2.Token, error) {
	fmt.Fprintf(out, "\n---------------------------------------------------------\n")
	fmt.Fprintf(out, "OPEN THIS LINK TO AUTHORIZE GMAIL ACCESS:\n%v\n", ConsentURL(cfg, state))
	fmt.Fprintf(out, "---------------------------------------------------------\n")
	fmt.Fprintf(out, "After logging in, Google will give you a code (or check the URL bar localhost callback).\n")
	fmt.Fprintf(out, "Paste the code here: ")

	var authCode string
	if _, err := fmt.Fscan(in, &authCode); err != nil {
		return nil, fmt.Errorf("unable to read authorization code: %w", err)
	}

	tok, err := cfg.Exchange(ctx, strings.TrimSpace(authCode))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	return tok, nil
}
