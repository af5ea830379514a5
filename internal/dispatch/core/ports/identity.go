package ports

import "context"

// IIdentity is the boundary to the identity/authorization subsystem.
type IIdentity interface {
	IsActive(ctx context.Context, userId string) (bool, error)
	HasRole(ctx context.Context, userId, role string) (bool, error)
}
