package main

import (
	"testing"

	"github.com/google/uuid"
)

func TestGenerateTokensDerivesStableUserIDs(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "dev-secret")

	tokens, err := generateTokens(3, "perf-user", 1, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(tokens) != 3 {
		t.Fatalf("expected 3 tokens, got %d", len(tokens))
	}
	if tokens[0] == tokens[1] {
		t.Fatalf("expected distinct tokens per user")
	}

	id := userUUID("perf-user-1")
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("derived id is not a uuid: %v", err)
	}
	if id != userUUID("perf-user-1") {
		t.Fatalf("derived ids must be stable")
	}
}

func TestGenerateTokensRequiresSecret(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")
	if _, err := generateTokens(1, "perf-user", 1, nil); err == nil {
		t.Fatalf("expected error without secret")
	}
}
