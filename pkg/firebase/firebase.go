package firebase

import (
	"context"
	"fmt"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// IDTokenVerifier is the part of the Firebase auth client the login flow uses.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// InitFirebase returns the Firebase auth client, or nil when no credentials path is configured.
func InitFirebase(ctx context.Context, credentialsPath string) (*auth.Client, error) {
	if credentialsPath == "" {
		log.Info().Msg("FIREBASE_CREDENTIALS_PATH not set, Firebase login is disabled")
		return nil, nil
	}

	if _, err := os.Stat(credentialsPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("firebase credentials file not found at %s", credentialsPath)
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firebase auth client: %w", err)
	}

	log.Info().Msg("Firebase auth client initialized")
	return authClient, nil
}
