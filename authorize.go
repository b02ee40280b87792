package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/samaker/samaker/internal/gcloud"
)

func newAuthorizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "authorize",
		Short: "Authorize access to your Google account",
		Long: `Print a consent URL, then exchange the pasted authorization code for a
stored access/refresh token pair. The code is single-use: if the exchange
fails, run authorize again for a fresh code.`,
		RunE: runAuthorize,
	}
}

func runAuthorize(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	if err := resolvedCfg.ValidateGoogle(); err != nil {
		return err
	}

	authURL := gcloud.AuthorizeURL(resolvedCfg.ClientID, resolvedCfg.ClientSecret)

	// Prompts must always be visible, even with --quiet.
	fmt.Fprintf(os.Stderr, "Visit the link below and paste the authorization code:\n\n%s\n\n", authURL)
	fmt.Fprint(os.Stderr, "Enter authorization code: ")

	code, err := readAuthCode(cmd.InOrStdin())
	if err != nil {
		return err
	}

	if _, err := gcloud.Exchange(cmd.Context(), resolvedCfg.ClientID, resolvedCfg.ClientSecret,
		code, resolvedCfg.TokenPath, logger); err != nil {
		return err
	}

	statusf("Authorization successful. Token saved to %s", resolvedCfg.TokenPath)

	return nil
}

// readAuthCode reads one line from in and trims surrounding whitespace.
func readAuthCode(in io.Reader) (string, error) {
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("reading authorization code: %w", err)
		}

		return "", fmt.Errorf("no authorization code entered")
	}

	code := strings.TrimSpace(scanner.Text())
	if code == "" {
		return "", fmt.Errorf("no authorization code entered")
	}

	return code, nil
}
