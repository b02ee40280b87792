package provision

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// KeyPerms restricts key files to owner-only read/write. Key files hold
// private key material.
const KeyPerms = 0o600

// WriteKey persists a key payload verbatim, pretty-printed, to path. The
// write is atomic (temp + rename in the same directory) so an interrupted
// run never leaves a truncated key file to confuse the numbering resolver.
func WriteKey(path string, payload json.RawMessage) error {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, payload, "", "  "); err != nil {
		return fmt.Errorf("provision: formatting key payload: %w", err)
	}

	pretty.WriteByte('\n')

	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".key-*.tmp")
	if err != nil {
		return fmt.Errorf("provision: creating temp key file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, KeyPerms); err != nil {
		tmp.Close()
		return fmt.Errorf("provision: setting key file permissions: %w", err)
	}

	if _, err := tmp.Write(pretty.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("provision: writing key file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("provision: syncing key file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("provision: closing key file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("provision: renaming key file: %w", err)
	}

	success = true

	return nil
}

// keyPayload is the subset of a stored key file needed to recover the
// account identity. privateKeyData is base64-encoded Google credentials
// JSON, which carries the service account email as client_email.
type keyPayload struct {
	PrivateKeyData string `json:"privateKeyData"`
}

type keyCredentials struct {
	ClientEmail string `json:"client_email"`
}

// AccountEmail extracts the service account email embedded in a key file.
func AccountEmail(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("provision: reading key file %s: %w", path, err)
	}

	var payload keyPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("provision: decoding key file %s: %w", path, err)
	}

	if payload.PrivateKeyData == "" {
		return "", fmt.Errorf("provision: key file %s has no privateKeyData", path)
	}

	decoded, err := base64.StdEncoding.DecodeString(payload.PrivateKeyData)
	if err != nil {
		return "", fmt.Errorf("provision: decoding key material in %s: %w", path, err)
	}

	var creds keyCredentials
	if err := json.Unmarshal(decoded, &creds); err != nil {
		return "", fmt.Errorf("provision: decoding credentials in %s: %w", path, err)
	}

	if creds.ClientEmail == "" {
		return "", fmt.Errorf("provision: key file %s has no client_email", path)
	}

	return creds.ClientEmail, nil
}

// AccountEmails derives the service account identities from every numbered
// key file in dir, in ascending sequence order. A single unreadable or
// malformed key file fails the whole derivation; sharing with a partial
// identity set would silently skip accounts.
func AccountEmails(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("provision: reading key directory %s: %w", dir, err)
	}

	type keyEntry struct {
		seq  int
		name string
	}

	var keys []keyEntry

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if seq, ok := sequenceFromName(entry.Name()); ok {
			keys = append(keys, keyEntry{seq: seq, name: entry.Name()})
		}
	}

	// Sort by parsed sequence but open the actual entry names. Names are the
	// tie-break so a zero-padded duplicate like 007.json orders
	// deterministically next to 7.json instead of shadowing it.
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].seq != keys[j].seq {
			return keys[i].seq < keys[j].seq
		}

		return keys[i].name < keys[j].name
	})

	emails := make([]string, 0, len(keys))

	for _, key := range keys {
		email, err := AccountEmail(filepath.Join(dir, key.name))
		if err != nil {
			return nil, err
		}

		emails = append(emails, email)
	}

	return emails, nil
}
