package provision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samaker/samaker/internal/gcloud"
)

// fakeAccountAPI is an in-memory AccountAPI. failCreateAt / failKeyAt make
// the Nth call (1-based) of the respective operation fail.
type fakeAccountAPI struct {
	createdNames []string
	keyedEmails  []string
	failCreateAt int
	failKeyAt    int
}

func (f *fakeAccountAPI) CreateServiceAccount(_ context.Context, name string) (*gcloud.ServiceAccount, error) {
	if f.failCreateAt > 0 && len(f.createdNames)+1 == f.failCreateAt {
		return nil, errors.New("quota exceeded")
	}

	f.createdNames = append(f.createdNames, name)

	return &gcloud.ServiceAccount{
		Name:        "projects/p/serviceAccounts/" + name + "@p.iam.gserviceaccount.com",
		UniqueID:    fmt.Sprintf("uid-%s", name),
		Email:       name + "@p.iam.gserviceaccount.com",
		DisplayName: name,
	}, nil
}

func (f *fakeAccountAPI) CreateServiceAccountKey(_ context.Context, email string) (*gcloud.ServiceAccountKey, error) {
	if f.failKeyAt > 0 && len(f.keyedEmails)+1 == f.failKeyAt {
		return nil, errors.New("key creation denied")
	}

	f.keyedEmails = append(f.keyedEmails, email)

	creds, _ := json.Marshal(map[string]string{"client_email": email})
	data := base64.StdEncoding.EncodeToString(creds)
	raw, _ := json.Marshal(map[string]string{
		"name":           "projects/p/serviceAccounts/" + email + "/keys/k",
		"privateKeyData": data,
	})

	return &gcloud.ServiceAccountKey{
		Name:           "projects/p/serviceAccounts/" + email + "/keys/k",
		PrivateKeyData: data,
		Raw:            raw,
	}, nil
}

// recordingRecorder captures RecordAccount calls. failing makes every call
// return an error.
type recordingRecorder struct {
	records []ProvisionedAccount
	failing bool
}

func (r *recordingRecorder) RecordAccount(_ context.Context, account ProvisionedAccount) error {
	if r.failing {
		return errors.New("ledger unavailable")
	}

	r.records = append(r.records, account)

	return nil
}

func keyFiles(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}

	return names
}

func TestRun_FullSuccess(t *testing.T) {
	base := t.TempDir()
	api := &fakeAccountAPI{}
	p := NewProvisioner(api, nil, slog.Default())

	created, err := p.Run(context.Background(), "svc", 3, base)
	require.NoError(t, err)
	require.Len(t, created, 3)

	assert.Equal(t, []string{"svc000000", "svc000001", "svc000002"}, api.createdNames)
	assert.ElementsMatch(t, []string{"0.json", "1.json", "2.json"},
		keyFiles(t, filepath.Join(base, "svc")))

	assert.Equal(t, 0, created[0].Sequence)
	assert.Equal(t, "svc000000@p.iam.gserviceaccount.com", created[0].Email)
	assert.Equal(t, "uid-svc000000", created[0].UniqueID)
	assert.Equal(t, filepath.Join(base, "svc", "0.json"), created[0].KeyPath)
}

func TestRun_ResumesAfterExistingKeys(t *testing.T) {
	base := t.TempDir()
	api := &fakeAccountAPI{}
	p := NewProvisioner(api, nil, slog.Default())

	_, err := p.Run(context.Background(), "svc", 3, base)
	require.NoError(t, err)

	// Second invocation appends after the existing key files.
	created, err := p.Run(context.Background(), "svc", 2, base)
	require.NoError(t, err)
	require.Len(t, created, 2)

	assert.Equal(t, "svc000003", created[0].Name)
	assert.Equal(t, "svc000004", created[1].Name)
	assert.ElementsMatch(t, []string{"0.json", "1.json", "2.json", "3.json", "4.json"},
		keyFiles(t, filepath.Join(base, "svc")))
}

func TestRun_AbortsOnCreateFailure(t *testing.T) {
	base := t.TempDir()
	api := &fakeAccountAPI{failCreateAt: 2}
	p := NewProvisioner(api, nil, slog.Default())

	created, err := p.Run(context.Background(), "svc", 3, base)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "svc000001")

	// Accounts up to the failure keep their key files; nothing beyond exists.
	require.Len(t, created, 1)
	assert.ElementsMatch(t, []string{"0.json"}, keyFiles(t, filepath.Join(base, "svc")))
}

func TestRun_AbortsOnKeyFailure(t *testing.T) {
	base := t.TempDir()
	api := &fakeAccountAPI{failKeyAt: 1}
	p := NewProvisioner(api, nil, slog.Default())

	created, err := p.Run(context.Background(), "svc", 2, base)
	require.Error(t, err)
	assert.Empty(t, created)

	// The account was created remotely but no key file was written; the next
	// run resumes at 0 only if no file exists, and none does.
	assert.Empty(t, keyFiles(t, filepath.Join(base, "svc")))
}

func TestRun_FailureThenResume(t *testing.T) {
	base := t.TempDir()

	failing := &fakeAccountAPI{failCreateAt: 3}
	p := NewProvisioner(failing, nil, slog.Default())

	_, err := p.Run(context.Background(), "svc", 3, base)
	require.Error(t, err)
	assert.ElementsMatch(t, []string{"0.json", "1.json"}, keyFiles(t, filepath.Join(base, "svc")))

	// Rerun with a healthy API resumes after the last persisted key.
	healthy := &fakeAccountAPI{}
	p = NewProvisioner(healthy, nil, slog.Default())

	created, err := p.Run(context.Background(), "svc", 2, base)
	require.NoError(t, err)
	assert.Equal(t, "svc000002", created[0].Name)
	assert.Equal(t, "svc000003", created[1].Name)
}

func TestRun_AmountValidation(t *testing.T) {
	p := NewProvisioner(&fakeAccountAPI{}, nil, slog.Default())

	_, err := p.Run(context.Background(), "svc", 0, t.TempDir())
	require.Error(t, err)
}

func TestRun_RecordsProvisionedAccounts(t *testing.T) {
	base := t.TempDir()
	recorder := &recordingRecorder{}
	p := NewProvisioner(&fakeAccountAPI{}, recorder, slog.Default())

	_, err := p.Run(context.Background(), "svc", 2, base)
	require.NoError(t, err)

	require.Len(t, recorder.records, 2)
	assert.Equal(t, "svc000000", recorder.records[0].Name)
	assert.Equal(t, 1, recorder.records[1].Sequence)
}

func TestRun_RecorderFailureDoesNotAbort(t *testing.T) {
	base := t.TempDir()
	recorder := &recordingRecorder{failing: true}
	p := NewProvisioner(&fakeAccountAPI{}, recorder, slog.Default())

	created, err := p.Run(context.Background(), "svc", 2, base)
	require.NoError(t, err)
	assert.Len(t, created, 2)
	assert.ElementsMatch(t, []string{"0.json", "1.json"}, keyFiles(t, filepath.Join(base, "svc")))
}

func TestRun_KeyFileEmbedsIdentity(t *testing.T) {
	base := t.TempDir()
	p := NewProvisioner(&fakeAccountAPI{}, nil, slog.Default())

	_, err := p.Run(context.Background(), "svc", 1, base)
	require.NoError(t, err)

	email, err := AccountEmail(filepath.Join(base, "svc", "0.json"))
	require.NoError(t, err)
	assert.Equal(t, "svc000000@p.iam.gserviceaccount.com", email)
}
