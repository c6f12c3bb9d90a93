package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"projectboard/internal/domain"
	"projectboard/internal/engine/auth"
	"projectboard/internal/events"
	"projectboard/internal/repo"
)

const apiKeyPrefix = "pbk_"

// CreateAPIKey mints a key for actorID. The plaintext secret is returned once
// and only its digest is stored.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string) (domain.APIKey, string, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return domain.APIKey{}, "", invalid("actor_id", "required")
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", fmt.Errorf("generate api key: %w", err)
	}
	secret := apiKeyPrefix + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(secret),
		CreatedAt: e.stamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.eventLog().Append(ctx, tx, events.APIKeyCreated, "", events.KindAPIKey, key.ID, actorID, events.EventPayload{"name": key.Name}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, secret, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	return e.Repo.ListAPIKeys(ctx, actorID)
}

// DeleteAPIKey revokes a key. Only the key's owner may revoke it.
func (e Engine) DeleteAPIKey(ctx context.Context, id, actorID string) error {
	key, err := e.Repo.GetAPIKey(ctx, id)
	if err != nil {
		return fmt.Errorf("api key %s: %w", id, err)
	}
	if key.ActorID != actorID {
		return auth.ForbiddenError{Action: "delete api key " + id}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAPIKey(ctx, tx, id); err != nil {
		return err
	}
	if err := e.eventLog().Append(ctx, tx, events.APIKeyDeleted, "", events.KindAPIKey, id, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}
