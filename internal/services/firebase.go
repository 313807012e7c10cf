package services

import (
	"context"
	"errors"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// AdminClaim is the custom claim that grants access to the admin routes.
const AdminClaim = "checkout_admin"

// FirebaseVerifier checks admin bearer tokens with Firebase Auth.
type FirebaseVerifier struct {
	client *auth.Client
}

// InitFirebase initializes the Firebase Admin SDK from a service account file.
func InitFirebase(ctx context.Context, credPath string) (*FirebaseVerifier, error) {
	opt := option.WithCredentialsFile(credPath)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, err
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, err
	}
	return &FirebaseVerifier{client: client}, nil
}

// VerifyAdmin validates idToken and requires the admin claim. It returns the
// caller's uid.
func (v *FirebaseVerifier) VerifyAdmin(ctx context.Context, idToken string) (string, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return "", err
	}
	if admin, _ := token.Claims[AdminClaim].(bool); !admin {
		return "", errors.New("token lacks the admin claim")
	}
	return token.UID, nil
}
