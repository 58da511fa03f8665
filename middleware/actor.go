package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/repairshop-api/models"
	"gorm.io/gorm"
)

// LoadActor resolves the token subject to a registered shop user. Phase
// technician stamps record this user's id, so unregistered users are rejected.
func LoadActor(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth0ID, err := GetUserID(c)
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "User not authenticated")
			return
		}

		var user models.User
		if err := db.Where("auth0_id = ?", auth0ID).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				abortWithError(c, http.StatusForbidden, "USER_NOT_REGISTERED", "Create your profile before working on orders")
			} else {
				abortWithError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load user")
			}
			return
		}

		c.Set("actor", &user)
		c.Next()
	}
}

// GetActor returns the user loaded by LoadActor
func GetActor(c *gin.Context) (*models.User, error) {
	v, exists := c.Get("actor")
	if !exists {
		return nil, &AuthError{Code: "MISSING_ACTOR", Message: "Actor not found in context"}
	}
	user, ok := v.(*models.User)
	if !ok {
		return nil, &AuthError{Code: "INVALID_ACTOR", Message: "Actor is not a user"}
	}
	return user, nil
}
