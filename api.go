package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samaker/samaker/internal/gcloud"
)

// newAPIClient validates the Google config, loads the stored credential,
// and builds the API client. Shared by every command that talks to Google.
func newAPIClient(ctx context.Context, logger *slog.Logger) (*gcloud.Client, error) {
	if err := resolvedCfg.ValidateGoogle(); err != nil {
		return nil, err
	}

	ts, err := gcloud.TokenSourceFromPath(ctx, resolvedCfg.TokenPath,
		resolvedCfg.ClientID, resolvedCfg.ClientSecret, logger)
	if err != nil {
		if errors.Is(err, gcloud.ErrNotAuthorized) {
			return nil, fmt.Errorf("not authorized, run 'samaker authorize' first")
		}

		return nil, err
	}

	return gcloud.NewClient(gcloud.DefaultIAMBaseURL, gcloud.DefaultDriveBaseURL,
		resolvedCfg.ProjectName, defaultHTTPClient(), ts, logger), nil
}
