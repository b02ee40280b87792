package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/samaker/samaker/internal/gcloud"
)

// ErrDriveNotFound is returned when no team drive matches the requested name.
var ErrDriveNotFound = errors.New("provision: team drive not found")

// DriveAPI is the slice of the cloud client the sharing workflow needs.
type DriveAPI interface {
	TeamDrives(ctx context.Context) ([]gcloud.TeamDrive, error)
	GrantTeamDriveAccess(ctx context.Context, driveID, email string) error
}

// ShareError reports a partially completed sharing run: which identities
// were granted access before the failure and which are still pending.
type ShareError struct {
	Drive   string
	Granted []string
	Pending []string
	Err     error
}

func (e *ShareError) Error() string {
	return fmt.Sprintf(
		"provision: sharing %q failed after %d of %d grants (pending: %s): %v",
		e.Drive, len(e.Granted), len(e.Granted)+len(e.Pending),
		strings.Join(e.Pending, ", "), e.Err,
	)
}

func (e *ShareError) Unwrap() error {
	return e.Err
}

// ShareTeamDrive grants every service account identity under
// <baseDir>/<keyPrefix>/ access to the team drive named driveName. The drive
// is resolved by exact name; when several drives share the name, the first
// in list order wins (names are not unique server-side). Identities are
// granted sequentially in ascending key order; the first failure aborts with
// a ShareError carrying the granted/pending split. Individual grants are
// idempotent, so rerunning after a partial failure is safe.
func ShareTeamDrive(ctx context.Context, api DriveAPI, driveName, keyPrefix, baseDir string, logger *slog.Logger) ([]string, error) {
	dir := filepath.Join(baseDir, keyPrefix)

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("provision: key directory %s: %w", dir, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("provision: key path %s is not a directory", dir)
	}

	emails, err := AccountEmails(dir)
	if err != nil {
		return nil, err
	}

	if len(emails) == 0 {
		return nil, fmt.Errorf("provision: no service account keys found in %s", dir)
	}

	driveID, err := resolveDriveID(ctx, api, driveName)
	if err != nil {
		return nil, err
	}

	logger.Info("sharing team drive",
		slog.String("drive", driveName),
		slog.String("drive_id", driveID),
		slog.Int("identities", len(emails)),
	)

	for i, email := range emails {
		if err := api.GrantTeamDriveAccess(ctx, driveID, email); err != nil {
			return emails[:i], &ShareError{
				Drive:   driveName,
				Granted: emails[:i],
				Pending: emails[i:],
				Err:     err,
			}
		}

		logger.Info("granted team drive access",
			slog.String("drive", driveName),
			slog.String("email", email),
		)
	}

	return emails, nil
}

// resolveDriveID finds the drive with the given name. First exact match in
// list order wins.
func resolveDriveID(ctx context.Context, api DriveAPI, name string) (string, error) {
	drives, err := api.TeamDrives(ctx)
	if err != nil {
		return "", fmt.Errorf("provision: listing team drives: %w", err)
	}

	for _, d := range drives {
		if d.Name == name {
			return d.ID, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrDriveNotFound, name)
}
