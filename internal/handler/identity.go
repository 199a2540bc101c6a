package handler

import (
	"github.com/weiawesome/autoschool-chat/internal/domain"
	"github.com/weiawesome/autoschool-chat/pkg/jwt"
)

// ClaimFromToken maps validated token claims onto the identity claim.
func ClaimFromToken(claims *jwt.Claims) domain.Claim {
	if claims == nil {
		return domain.Claim{}
	}
	c := domain.Claim{
		UserID: claims.UserID,
		BareID: claims.BareID,
	}
	if claims.User != nil {
		c.UserObjectID = claims.User.ID
		c.UserObjectAltID = claims.User.AltID
	}
	return c
}

// TokenIdentity resolves the caller id of a REST request. An unresolved
// claim yields "" so the auth middleware rejects it.
func TokenIdentity(claims *jwt.Claims) string {
	id := domain.ResolveIdentity(ClaimFromToken(claims), "")
	if !id.Resolved() {
		return ""
	}
	return id.ID
}
