package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// scopes: readonly for polling, modify so processed mail can be marked read
var scopes = []string{
	gmail.GmailReadonlyScope,
	gmail.GmailModifyScope,
}

// loadGmailService returns an authenticated Gmail API service.
// credentialsPath points to credentials.json; token.json lives next to it.
func loadGmailService(ctx context.Context, credentialsPath string) (*gmail.Service, error) {
	client, err := oauthClient(ctx, credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("get oauth client: %w", err)
	}
	return gmail.NewService(ctx, option.WithHTTPClient(client))
}

func oauthClient(ctx context.Context, credentialsPath string) (*http.Client, error) {
	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	tokenPath := filepath.Join(filepath.Dir(credentialsPath), "token.json")
	tokenData, err := os.ReadFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(tokenData, &token); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	return config.Client(ctx, &token), nil
}
