package provision

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/samaker/samaker/internal/gcloud"
)

// accountNameWidth is the zero-padding width of the numeric suffix in
// generated account names (svc + 42 -> svc000042).
const accountNameWidth = 6

// AccountAPI is the slice of the cloud client the provisioner needs.
// Defined at the consumer so tests can substitute a fake.
type AccountAPI interface {
	CreateServiceAccount(ctx context.Context, name string) (*gcloud.ServiceAccount, error)
	CreateServiceAccountKey(ctx context.Context, email string) (*gcloud.ServiceAccountKey, error)
}

// Recorder receives a record of every fully provisioned account. The ledger
// implements it; a nil Recorder disables recording.
type Recorder interface {
	RecordAccount(ctx context.Context, account ProvisionedAccount) error
}

// ProvisionedAccount describes one completed account/key pair.
type ProvisionedAccount struct {
	Prefix   string
	Sequence int
	Name     string
	Email    string
	UniqueID string
	KeyPath  string
}

// Provisioner runs the batch provisioning workflow.
type Provisioner struct {
	api      AccountAPI
	recorder Recorder
	logger   *slog.Logger
}

// NewProvisioner creates a Provisioner. recorder may be nil.
func NewProvisioner(api AccountAPI, recorder Recorder, logger *slog.Logger) *Provisioner {
	return &Provisioner{api: api, recorder: recorder, logger: logger}
}

// Run provisions amount accounts named prefix + zero-padded sequence number,
// one key each, resuming after the highest existing key file in
// <baseDir>/<prefix>/. Steps run strictly sequentially and the batch aborts
// on the first failure; accounts created before the failure keep their key
// files, and the next run resumes after them. Returns the accounts that were
// fully provisioned, including on error.
func (p *Provisioner) Run(ctx context.Context, prefix string, amount int, baseDir string) ([]ProvisionedAccount, error) {
	if amount < 1 {
		return nil, fmt.Errorf("provision: amount must be at least 1, got %d", amount)
	}

	dir := filepath.Join(baseDir, prefix)

	start, err := ResolveStart(dir, 0)
	if err != nil {
		return nil, err
	}

	p.logger.Info("starting provisioning batch",
		slog.String("prefix", prefix),
		slog.Int("amount", amount),
		slog.Int("start", start),
		slog.String("dir", dir),
	)

	created := make([]ProvisionedAccount, 0, amount)

	for seq := start; seq < start+amount; seq++ {
		record, err := p.provisionOne(ctx, prefix, seq, dir)
		if err != nil {
			return created, err
		}

		created = append(created, *record)
	}

	p.logger.Info("provisioning batch complete",
		slog.String("prefix", prefix),
		slog.Int("created", len(created)),
	)

	return created, nil
}

// provisionOne creates a single account, its key, and the numbered key file.
func (p *Provisioner) provisionOne(ctx context.Context, prefix string, seq int, dir string) (*ProvisionedAccount, error) {
	name := fmt.Sprintf("%s%0*d", prefix, accountNameWidth, seq)

	account, err := p.api.CreateServiceAccount(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("provision: creating account %q: %w", name, err)
	}

	key, err := p.api.CreateServiceAccountKey(ctx, account.Email)
	if err != nil {
		return nil, fmt.Errorf("provision: creating key for %q: %w", account.Email, err)
	}

	keyPath := filepath.Join(dir, fmt.Sprintf("%d%s", seq, keyFileExt))
	if err := WriteKey(keyPath, key.Raw); err != nil {
		return nil, err
	}

	p.logger.Info("provisioned account",
		slog.Int("sequence", seq),
		slog.String("email", account.Email),
		slog.String("key_path", keyPath),
	)

	record := ProvisionedAccount{
		Prefix:   prefix,
		Sequence: seq,
		Name:     name,
		Email:    account.Email,
		UniqueID: account.UniqueID,
		KeyPath:  keyPath,
	}

	if p.recorder != nil {
		// The key file on disk is the source of truth for numbering; a
		// ledger write failure must not abort the batch.
		if recErr := p.recorder.RecordAccount(ctx, record); recErr != nil {
			p.logger.Warn("failed to record provisioned account",
				slog.String("email", account.Email),
				slog.String("error", recErr.Error()),
			)
		}
	}

	return &record, nil
}
