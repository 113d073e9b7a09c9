package entitlement

import (
	"context"

	"github.com/gamevault/backend/internal/models"
)

// PurchaseChecker is the slice of the transaction store the resolver needs.
type PurchaseChecker interface {
	HasPurchased(ctx context.Context, userID, gameID int) (bool, error)
}

// Resolver decides whether a user may access a priced game. Callers must
// re-evaluate at the point of access; a purchase may complete between the
// checkout-page check and the play action.
type Resolver struct {
	purchases PurchaseChecker
}

func NewResolver(purchases PurchaseChecker) *Resolver {
	return &Resolver{purchases: purchases}
}

// CanAccess reports whether user (nil = anonymous) may access game.
// Free games are open to everyone, the uploader always owns their game, and
// everyone else needs at least one successful purchase.
func (r *Resolver) CanAccess(ctx context.Context, user *models.User, game *models.Game) (bool, error) {
	if game.IsFree() {
		return true, nil
	}

	if user == nil {
		return false, nil
	}

	if user.ID == game.UserID {
		return true, nil
	}

	return r.purchases.HasPurchased(ctx, user.ID, game.ID)
}
