// README: Firebase Admin SDK initialisation: token verifier, user provisioner and FCM client.
package infra

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FirebaseToken holds the verified token data used by downstream middleware.
type FirebaseToken struct {
	UID    string
	Claims map[string]interface{}
}

// TokenVerifier verifies a raw Firebase ID token string and returns token data.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*FirebaseToken, error)
}

// NewUser describes an account created by an administrator.
type NewUser struct {
	Email       string
	Password    string
	DisplayName string
	Claims      map[string]interface{}
}

// UserProvisioner creates auth accounts and attaches role claims.
type UserProvisioner interface {
	CreateUser(ctx context.Context, u NewUser) (string, error)
}

type Firebase struct {
	app  *firebase.App
	auth *auth.Client
}

// NewFirebase initialises the Admin SDK. If credentialsFile is empty,
// application-default credentials / GOOGLE_APPLICATION_CREDENTIALS are used.
func NewFirebase(ctx context.Context, projectID, credentialsFile string) (*Firebase, error) {
	opts := []option.ClientOption{}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase app.Auth: %w", err)
	}
	return &Firebase{app: app, auth: client}, nil
}

// Messaging returns the FCM client used for push delivery.
func (f *Firebase) Messaging(ctx context.Context) (*messaging.Client, error) {
	client, err := f.app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase app.Messaging: %w", err)
	}
	return client, nil
}

func (f *Firebase) VerifyIDToken(ctx context.Context, idToken string) (*FirebaseToken, error) {
	token, err := f.auth.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return &FirebaseToken{UID: token.UID, Claims: token.Claims}, nil
}

// CreateUser creates the account, then sets its custom claims. A claims failure
// deletes the half-created account so the admin can retry.
func (f *Firebase) CreateUser(ctx context.Context, u NewUser) (string, error) {
	params := (&auth.UserToCreate{}).
		Email(u.Email).
		Password(u.Password).
		DisplayName(u.DisplayName)
	rec, err := f.auth.CreateUser(ctx, params)
	if err != nil {
		return "", fmt.Errorf("create auth user: %w", err)
	}
	if len(u.Claims) > 0 {
		if err := f.auth.SetCustomUserClaims(ctx, rec.UID, u.Claims); err != nil {
			_ = f.auth.DeleteUser(ctx, rec.UID)
			return "", fmt.Errorf("set claims for %s: %w", rec.UID, err)
		}
	}
	return rec.UID, nil
}
