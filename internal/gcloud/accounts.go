package gcloud

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// accountResponse mirrors the IAM API serviceAccount JSON resource.
// Unexported; callers use ServiceAccount via toServiceAccount().
type accountResponse struct {
	Name        string `json:"name"`
	ProjectID   string `json:"projectId"`
	UniqueID    string `json:"uniqueId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

func (a *accountResponse) toServiceAccount() ServiceAccount {
	return ServiceAccount{
		Name:        a.Name,
		ProjectID:   a.ProjectID,
		UniqueID:    a.UniqueID,
		Email:       a.Email,
		DisplayName: a.DisplayName,
	}
}

// accountsListResponse wraps the accounts array from the list endpoint.
type accountsListResponse struct {
	Accounts []accountResponse `json:"accounts"`
}

// keyResponse mirrors the IAM API serviceAccountKey JSON resource.
type keyResponse struct {
	Name           string `json:"name"`
	PrivateKeyType string `json:"privateKeyType"`
	PrivateKeyData string `json:"privateKeyData"`
}

// createAccountRequest is the IAM create body. The accountId becomes the
// local part of the account email and must be unique within the project.
type createAccountRequest struct {
	AccountID      string               `json:"accountId"`
	ServiceAccount createAccountDetails `json:"serviceAccount"`
}

type createAccountDetails struct {
	DisplayName string `json:"displayName"`
}

// CreateServiceAccount creates a service account named accountID in the
// client's project. The server assigns the email and uniqueId; a response
// missing either is ErrInvalidResponse. A name collision surfaces as
// ErrConflict, fatal to the run, never retried.
func (c *Client) CreateServiceAccount(ctx context.Context, accountID string) (*ServiceAccount, error) {
	c.logger.Info("creating service account",
		slog.String("account_id", accountID),
		slog.String("project", c.project),
	)

	body, err := json.Marshal(createAccountRequest{
		AccountID:      accountID,
		ServiceAccount: createAccountDetails{DisplayName: accountID},
	})
	if err != nil {
		return nil, fmt.Errorf("gcloud: encoding create account request: %w", err)
	}

	url := fmt.Sprintf("%s/projects/%s/serviceAccounts", c.iamBase, c.project)

	resp, err := c.do(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ar accountResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, fmt.Errorf("gcloud: decoding account response: %w", err)
	}

	if ar.Email == "" || ar.UniqueID == "" {
		return nil, fmt.Errorf("%w: created account %q missing email or uniqueId", ErrInvalidResponse, accountID)
	}

	account := ar.toServiceAccount()

	c.logger.Info("created service account",
		slog.String("email", account.Email),
		slog.String("unique_id", account.UniqueID),
	)

	return &account, nil
}

// CreateServiceAccountKey creates a new key for the account identified by
// email. The response must carry privateKeyData; its absence is
// ErrInvalidResponse even on HTTP 200. The verbatim response body is kept in
// Raw for key-file persistence.
func (c *Client) CreateServiceAccountKey(ctx context.Context, email string) (*ServiceAccountKey, error) {
	c.logger.Info("creating service account key",
		slog.String("email", email),
	)

	url := fmt.Sprintf("%s/projects/%s/serviceAccounts/%s/keys", c.iamBase, c.project, email)

	resp, err := c.do(ctx, http.MethodPost, url, []byte("{}"))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gcloud: reading key response: %w", err)
	}

	var kr keyResponse
	if err := json.Unmarshal(raw, &kr); err != nil {
		return nil, fmt.Errorf("gcloud: decoding key response: %w", err)
	}

	if kr.PrivateKeyData == "" {
		return nil, fmt.Errorf("%w: key for %q missing privateKeyData", ErrInvalidResponse, email)
	}

	c.logger.Info("created service account key",
		slog.String("email", email),
		slog.String("key_name", kr.Name),
	)

	return &ServiceAccountKey{
		Name:           kr.Name,
		PrivateKeyType: kr.PrivateKeyType,
		PrivateKeyData: kr.PrivateKeyData,
		Raw:            json.RawMessage(raw),
	}, nil
}

// listPageSize is the page size requested from list endpoints.
const listPageSize = 100

// ServiceAccounts lists the service accounts in the client's project.
func (c *Client) ServiceAccounts(ctx context.Context) ([]ServiceAccount, error) {
	c.logger.Info("listing service accounts",
		slog.String("project", c.project),
	)

	url := fmt.Sprintf("%s/projects/%s/serviceAccounts?pageSize=%d", c.iamBase, c.project, listPageSize)

	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var alr accountsListResponse
	if err := json.NewDecoder(resp.Body).Decode(&alr); err != nil {
		return nil, fmt.Errorf("gcloud: decoding accounts response: %w", err)
	}

	accounts := make([]ServiceAccount, 0, len(alr.Accounts))
	for i := range alr.Accounts {
		accounts = append(accounts, alr.Accounts[i].toServiceAccount())
	}

	c.logger.Info("listed service accounts",
		slog.Int("count", len(accounts)),
	)

	return accounts, nil
}
