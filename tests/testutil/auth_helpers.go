package testutil

import (
	"strings"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/repairshop-api/middleware"
)

const testIssuer = "https://test.auth0.com/"

// MockValidatedClaims builds the claims EnsureValidToken would store for subject.
func MockValidatedClaims(subject string, scopes []string) *validator.ValidatedClaims {
	return &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{
			Issuer:  testIssuer,
			Subject: subject,
		},
		CustomClaims: &middleware.CustomClaims{
			Scope: strings.Join(scopes, " "),
		},
	}
}

// MockAuthMiddleware authenticates every request as subject, standing in for
// middleware.EnsureValidToken
func MockAuthMiddleware(subject string, scopes []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", subject)
		c.Set("validated_claims", MockValidatedClaims(subject, scopes))
		c.Set("access_token", "test-access-token")
		c.Next()
	}
}
