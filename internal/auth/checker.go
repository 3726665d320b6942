package auth

import (
	"context"
	"fmt"
	"log"

	"promptika-bot/internal/database"
)

// AdminChecker decides whether a user may run moderator commands. A user is an
// admin when listed in the compiled-in admin ids or in the admin collection.
type AdminChecker struct {
	staticIDs map[int64]struct{}
	admins    database.AdminRepository
}

// NewAdminChecker creates a new AdminChecker. The repository is required; the
// static id list may be empty.
func NewAdminChecker(staticIDs []int64, admins database.AdminRepository) (*AdminChecker, error) {
	if admins == nil {
		return nil, fmt.Errorf("admin repository cannot be nil")
	}
	set := make(map[int64]struct{}, len(staticIDs))
	for _, id := range staticIDs {
		set[id] = struct{}{}
	}
	return &AdminChecker{staticIDs: set, admins: admins}, nil
}

// IsAdmin checks if a user is an admin. Static ids win without a database
// lookup. A lookup error is logged and treated as non-admin.
func (ac *AdminChecker) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	if _, ok := ac.staticIDs[userID]; ok {
		return true, nil
	}
	isAdmin, err := ac.admins.IsAdmin(ctx, userID)
	if err != nil {
		log.Printf("[AdminCheck User:%d] Error checking admin status: %v. Assuming non-admin.", userID, err)
		return false, fmt.Errorf("failed to check admin status: %w", err)
	}
	return isAdmin, nil
}
