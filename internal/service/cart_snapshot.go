package service

import (
	"context"
	"fmt"

	"snackorder/internal/apperror"
	"snackorder/internal/model"
	"snackorder/internal/repository"

	"github.com/google/uuid"
)

// CartSnapshot turns selected cart lines into order input and can undo that.
type CartSnapshot interface {
	Resolve(ctx context.Context, userID uuid.UUID, cartItemIDs []uuid.UUID) ([]model.CartItem, error)
	Consume(ctx context.Context, cartItemIDs []uuid.UUID) error
	Revert(ctx context.Context, userID uuid.UUID, productIDs []uuid.UUID) error
}

type cartSnapshot struct {
	cartRepo repository.CartRepository
}

func NewCartSnapshot(cartRepo repository.CartRepository) CartSnapshot {
	return &cartSnapshot{cartRepo: cartRepo}
}

// Resolve returns the caller's live lines for cartItemIDs. Stale, foreign or
// already consumed ids make the whole resolution fail.
func (c *cartSnapshot) Resolve(ctx context.Context, userID uuid.UUID, cartItemIDs []uuid.UUID) ([]model.CartItem, error) {
	ids := uniqueIDs(cartItemIDs)
	if len(ids) == 0 {
		return nil, apperror.InvalidInput("at least one cart item is required")
	}

	items, err := c.cartRepo.FindActiveByIDs(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}
	if len(items) != len(ids) {
		return nil, apperror.New(apperror.KindCartItemsMissing,
			fmt.Sprintf("%d of %d cart items are no longer available", len(ids)-len(items), len(ids)))
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, apperror.InvalidInput("cart item " + item.ID.String() + " has no quantity")
		}
	}
	return items, nil
}

func (c *cartSnapshot) Consume(ctx context.Context, cartItemIDs []uuid.UUID) error {
	if err := c.cartRepo.SoftDelete(ctx, uniqueIDs(cartItemIDs)); err != nil {
		return fmt.Errorf("failed to consume cart items: %w", err)
	}
	return nil
}

func (c *cartSnapshot) Revert(ctx context.Context, userID uuid.UUID, productIDs []uuid.UUID) error {
	ids := uniqueIDs(productIDs)
	if len(ids) == 0 {
		return nil
	}
	if err := c.cartRepo.Restore(ctx, userID, ids); err != nil {
		return fmt.Errorf("failed to restore cart items: %w", err)
	}
	return nil
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
