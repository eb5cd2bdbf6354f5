package bq

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
)

const credentialScope = "https://www.googleapis.com/auth/cloud-platform"

// ResolveCredentials picks the credential source once at startup. An
// explicit key file must exist and parse; without one, Application Default
// Credentials must resolve. Either failure is fatal to the caller, never
// deferred to the first warehouse call.
func ResolveCredentials(ctx context.Context, keyFile string) (*google.Credentials, error) {
	if keyFile != "" {
		data, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, fmt.Errorf("reading key file %s: %w", keyFile, err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, credentialScope)
		if err != nil {
			return nil, fmt.Errorf("invalid key file %s: %w", keyFile, err)
		}
		return creds, nil
	}
	creds, err := google.FindDefaultCredentials(ctx, credentialScope)
	if err != nil {
		return nil, fmt.Errorf("resolving default credentials: %w", err)
	}
	return creds, nil
}
