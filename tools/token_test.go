package tools

import (
	"net/http"
	"testing"
	"time"

	"todogenie-api/api"
)

func TestSignTokenAcceptedByAuth(t *testing.T) {
	secret := []byte("dev-secret")
	token, err := SignToken(secret, "11111111-1111-1111-1111-111111111111", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	auth := api.NewSecretAuth(secret, api.DefaultAudience, "")
	header := make(http.Header)
	header.Set("Authorization", "Bearer "+token)
	userID, err := auth.UserIDFromAuthHeader(header)
	if err != nil {
		t.Fatalf("token rejected: %v", err)
	}
	if userID != "11111111-1111-1111-1111-111111111111" {
		t.Fatalf("unexpected user id %q", userID)
	}
}

func TestDevTokenRequiresSecret(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")
	if _, err := DevToken("user"); err == nil {
		t.Fatalf("expected error without secret")
	}
}
