package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/repairshop-api/config"
	"go.uber.org/zap"
)

// Keys under which EnsureValidToken stores the caller in the gin context.
const (
	ctxUserID      = "user_id"
	ctxClaims      = "validated_claims"
	ctxAccessToken = "access_token"
)

// ScopeReadDiagnostics grants access to the database status route.
const ScopeReadDiagnostics = "read:diagnostics"

const invalidTokenBody = `{"success":false,"error":{"code":"INVALID_TOKEN","message":"Failed to validate JWT."}}`

// CustomClaims are the shop-specific claims of an access token. Role is
// added by an Auth0 post-login action and only read when a profile is created.
type CustomClaims struct {
	Scope string `json:"scope"`
	Role  string `json:"https://repairshop-api/role"`
}

// Validate satisfies validator.CustomClaims; no claim is mandatory.
func (c CustomClaims) Validate(ctx context.Context) error {
	return nil
}

// HasScope reports whether the space separated scope claim contains scope.
func (c CustomClaims) HasScope(scope string) bool {
	for _, s := range strings.Fields(c.Scope) {
		if s == scope {
			return true
		}
	}
	return false
}

func newTokenValidator(cfg *config.Config) (*validator.Validator, error) {
	issuerURL, err := url.Parse("https://" + cfg.Auth0Domain + "/")
	if err != nil {
		return nil, err
	}
	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)

	return validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{cfg.Auth0Audience},
		validator.WithCustomClaims(func() validator.CustomClaims {
			return &CustomClaims{}
		}),
		validator.WithAllowedClockSkew(time.Minute),
	)
}

// EnsureValidToken rejects requests without a valid Auth0 access token. On
// success the subject, claims and raw token are available to later handlers.
func EnsureValidToken(cfg *config.Config, logger *zap.Logger) gin.HandlerFunc {
	tokenValidator, err := newTokenValidator(cfg)
	if err != nil {
		logger.Fatal("Failed to set up the jwt validator", zap.Error(err))
	}

	checker := jwtmiddleware.New(
		tokenValidator.ValidateToken,
		jwtmiddleware.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warn("Rejected access token", zap.String("path", r.URL.Path), zap.Error(err))

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			if _, writeErr := w.Write([]byte(invalidTokenBody)); writeErr != nil {
				logger.Error("Failed to write error response", zap.Error(writeErr))
			}
		}),
	)

	return func(c *gin.Context) {
		validated := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			validated = true
			claims := r.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)

			c.Request = r
			c.Set(ctxUserID, claims.RegisteredClaims.Subject)
			c.Set(ctxClaims, claims)
			c.Set(ctxAccessToken, bearerToken(r))
			c.Next()
		})

		checker.CheckJWT(next).ServeHTTP(c.Writer, c.Request)
		// The error handler already wrote the 401.
		if !validated {
			c.Abort()
		}
	}
}

// GetUserID returns the Auth0 subject of the caller
func GetUserID(c *gin.Context) (string, error) {
	v, exists := c.Get(ctxUserID)
	if !exists {
		return "", &AuthError{Code: "MISSING_USER_ID", Message: "User ID not found in context"}
	}
	id, ok := v.(string)
	if !ok {
		return "", &AuthError{Code: "INVALID_USER_ID", Message: "User ID is not a string"}
	}
	return id, nil
}

// GetAccessToken returns the raw bearer token of the current request, used to
// call the Auth0 userinfo endpoint
func GetAccessToken(c *gin.Context) (string, error) {
	if v, exists := c.Get(ctxAccessToken); exists {
		if s, ok := v.(string); ok && s != "" {
			return s, nil
		}
	}
	if c.Request != nil {
		if s := bearerToken(c.Request); s != "" {
			return s, nil
		}
	}
	return "", &AuthError{Code: "MISSING_TOKEN", Message: "Access token not found in request"}
}

func bearerToken(r *http.Request) string {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// GetClaims returns the validated JWT claims of the caller
func GetClaims(c *gin.Context) (*validator.ValidatedClaims, error) {
	v, exists := c.Get(ctxClaims)
	if !exists {
		return nil, &AuthError{Code: "MISSING_CLAIMS", Message: "Claims not found in context"}
	}
	claims, ok := v.(*validator.ValidatedClaims)
	if !ok {
		return nil, &AuthError{Code: "INVALID_CLAIMS", Message: "Claims are not in the expected format"}
	}
	return claims, nil
}

// RequireScope aborts with 403 unless the token carries scope.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := GetClaims(c)
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "MISSING_CLAIMS", "Could not retrieve token claims")
			return
		}

		custom, ok := claims.CustomClaims.(*CustomClaims)
		if !ok || !custom.HasScope(scope) {
			abortWithError(c, http.StatusForbidden, "INSUFFICIENT_SCOPE", "Insufficient permissions to access this resource")
			return
		}
		c.Next()
	}
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// AuthError represents an authentication error
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}
