package consumer

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// SecretLookup finds a stored secret by realm and username. Implementations
// return an error wrapping ErrCredentialNotFound when nothing matches.
type SecretLookup interface {
	Secret(ctx context.Context, realm, username string) (string, error)
}

// SecretLookupFunc adapts a function to SecretLookup.
type SecretLookupFunc func(ctx context.Context, realm, username string) (string, error)

func (f SecretLookupFunc) Secret(ctx context.Context, realm, username string) (string, error) {
	return f(ctx, realm, username)
}

// StaticCredentials looks up the secret access key stored for accessKeyID in
// realm and returns a provider for the resulting key pair. A missing secret
// is returned immediately and is not retried.
func StaticCredentials(ctx context.Context, lookup SecretLookup, realm, accessKeyID string) (aws.CredentialsProvider, error) {
	secret, err := lookup.Secret(ctx, realm, accessKeyID)
	if err != nil {
		return nil, fmt.Errorf("lookup secret for %s in realm %s: %w", accessKeyID, realm, err)
	}
	if secret == "" {
		return nil, fmt.Errorf("lookup secret for %s in realm %s: %w", accessKeyID, realm, ErrCredentialNotFound)
	}
	return credentials.NewStaticCredentialsProvider(accessKeyID, secret, ""), nil
}
