package gcloud

import "encoding/json"

// ServiceAccount is a normalized IAM service account. Email and UniqueID are
// server-assigned; Email identifies the account in all later operations.
type ServiceAccount struct {
	Name        string
	ProjectID   string
	UniqueID    string
	Email       string
	DisplayName string
}

// ServiceAccountKey is a normalized service account key. PrivateKeyData is
// the base64-encoded key material as returned by the API. Raw preserves the
// verbatim response body, which is what gets written to the key file.
type ServiceAccountKey struct {
	Name           string
	PrivateKeyType string
	PrivateKeyData string
	Raw            json.RawMessage
}

// TeamDrive is a shared drive. Names are not unique server-side; only ID is.
type TeamDrive struct {
	ID   string
	Name string
}
