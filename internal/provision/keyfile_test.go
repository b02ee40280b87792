package provision

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keyRawFor builds a createKey-style payload whose privateKeyData embeds the
// given account email, the way the IAM API returns it.
func keyRawFor(t *testing.T, email string) json.RawMessage {
	t.Helper()

	creds, err := json.Marshal(map[string]string{
		"type":         "service_account",
		"client_email": email,
	})
	require.NoError(t, err)

	payload, err := json.Marshal(map[string]string{
		"name":           "projects/p/serviceAccounts/" + email + "/keys/k",
		"privateKeyType": "TYPE_GOOGLE_CREDENTIALS_FILE",
		"privateKeyData": base64.StdEncoding.EncodeToString(creds),
	})
	require.NoError(t, err)

	return payload
}

// writeTestKey writes a numbered key file for email into dir.
func writeTestKey(t *testing.T, dir string, seq int, email string) {
	t.Helper()
	require.NoError(t, WriteKey(filepath.Join(dir, fmt.Sprintf("%d.json", seq)), keyRawFor(t, email)))
}

func TestWriteKey_VerbatimPrettyPrinted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.json")
	raw := keyRawFor(t, "svc@p.iam.gserviceaccount.com")

	require.NoError(t, WriteKey(path, raw))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// Content matches the payload verbatim, just reformatted.
	assert.JSONEq(t, string(raw), string(data))
	assert.Contains(t, string(data), "\n  \"")
}

func TestWriteKey_Permissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0.json")

	require.NoError(t, WriteKey(path, keyRawFor(t, "svc@p.iam.gserviceaccount.com")))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(KeyPerms), info.Mode().Perm())
}

func TestWriteKey_NoStrayTempFiles(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, WriteKey(filepath.Join(dir, "0.json"), keyRawFor(t, "svc@p.iam.gserviceaccount.com")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "0.json", entries[0].Name())
}

func TestWriteKey_InvalidPayload(t *testing.T) {
	err := WriteKey(filepath.Join(t.TempDir(), "0.json"), json.RawMessage("{not json"))
	require.Error(t, err)
}

func TestAccountEmail_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeTestKey(t, dir, 0, "svc000000@p.iam.gserviceaccount.com")

	email, err := AccountEmail(filepath.Join(dir, "0.json"))
	require.NoError(t, err)
	assert.Equal(t, "svc000000@p.iam.gserviceaccount.com", email)
}

func TestAccountEmail_MissingPrivateKeyData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name": "k"}`), 0o600))

	_, err := AccountEmail(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "privateKeyData")
}

func TestAccountEmail_BadBase64(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"privateKeyData": "!!!not-base64!!!"}`), 0o600))

	_, err := AccountEmail(path)
	require.Error(t, err)
}

func TestAccountEmail_MissingClientEmail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0.json")
	encoded := base64.StdEncoding.EncodeToString([]byte(`{"type": "service_account"}`))
	require.NoError(t, os.WriteFile(path,
		[]byte(fmt.Sprintf(`{"privateKeyData": %q}`, encoded)), 0o600))

	_, err := AccountEmail(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client_email")
}

func TestAccountEmails_NumericOrder(t *testing.T) {
	dir := t.TempDir()

	// 2 and 10 sort numerically, not lexically.
	writeTestKey(t, dir, 10, "svc000010@p.iam.gserviceaccount.com")
	writeTestKey(t, dir, 2, "svc000002@p.iam.gserviceaccount.com")
	writeTestKey(t, dir, 0, "svc000000@p.iam.gserviceaccount.com")
	touch(t, dir, "notes.txt")

	emails, err := AccountEmails(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"svc000000@p.iam.gserviceaccount.com",
		"svc000002@p.iam.gserviceaccount.com",
		"svc000010@p.iam.gserviceaccount.com",
	}, emails)
}

func TestAccountEmails_ZeroPaddedName(t *testing.T) {
	dir := t.TempDir()

	// A zero-padded key file placed out of band must be read under its real
	// name, not a reconstructed one.
	require.NoError(t, WriteKey(filepath.Join(dir, "007.json"),
		keyRawFor(t, "svc000007@p.iam.gserviceaccount.com")))
	writeTestKey(t, dir, 2, "svc000002@p.iam.gserviceaccount.com")

	emails, err := AccountEmails(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"svc000002@p.iam.gserviceaccount.com",
		"svc000007@p.iam.gserviceaccount.com",
	}, emails)
}

func TestAccountEmails_PaddedDuplicateSequence(t *testing.T) {
	dir := t.TempDir()

	// 007.json and 7.json parse to the same sequence; both identities are
	// kept, in deterministic name order.
	require.NoError(t, WriteKey(filepath.Join(dir, "007.json"),
		keyRawFor(t, "padded@p.iam.gserviceaccount.com")))
	writeTestKey(t, dir, 7, "plain@p.iam.gserviceaccount.com")

	emails, err := AccountEmails(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"padded@p.iam.gserviceaccount.com",
		"plain@p.iam.gserviceaccount.com",
	}, emails)
}

func TestAccountEmails_MalformedKeyFails(t *testing.T) {
	dir := t.TempDir()

	writeTestKey(t, dir, 0, "svc000000@p.iam.gserviceaccount.com")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.json"), []byte("{}"), 0o600))

	// Sharing with a partial identity set would silently skip accounts.
	_, err := AccountEmails(dir)
	require.Error(t, err)
}

func TestAccountEmails_MissingDirectory(t *testing.T) {
	_, err := AccountEmails(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}
