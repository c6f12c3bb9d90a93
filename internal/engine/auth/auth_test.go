package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	now := time.Now()
	token, err := IssueToken("s3cret", "alice", "Alice", time.Hour, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := ParseToken(token, "s3cret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "alice" || claims.Name != "Alice" || claims.Issuer != "projectboard" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if _, err := ParseToken(token, "other"); err == nil {
		t.Fatal("expected signature failure with wrong secret")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	token, err := IssueToken("s3cret", "alice", "", time.Minute, time.Now().Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := ParseToken(token, "s3cret"); err == nil {
		t.Fatal("expected expiry failure")
	}
}

func TestIssueRequiresSecretAndSubject(t *testing.T) {
	if _, err := IssueToken("", "alice", "", time.Hour, time.Now()); err == nil {
		t.Fatal("expected missing secret error")
	}
	if _, err := IssueToken("s", " ", "", time.Hour, time.Now()); err == nil {
		t.Fatal("expected missing subject error")
	}
}

func TestForbiddenErrorAs(t *testing.T) {
	err := error(ForbiddenError{Action: "delete api key k1"})
	var fe ForbiddenError
	if !errors.As(err, &fe) || fe.Action != "delete api key k1" {
		t.Fatalf("errors.As failed: %v", err)
	}
}
