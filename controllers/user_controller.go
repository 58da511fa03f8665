package controllers

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/repairshop-api/config"
	"github.com/kendall-kelly/repairshop-api/middleware"
	"github.com/kendall-kelly/repairshop-api/models"
	"github.com/kendall-kelly/repairshop-api/services"
	"github.com/kendall-kelly/repairshop-api/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	userInfoMu       sync.RWMutex
	userInfoProvider services.UserInfoProvider
)

// SetUserInfoProvider replaces the Auth0 userinfo client, for tests
func SetUserInfoProvider(p services.UserInfoProvider) {
	userInfoMu.Lock()
	defer userInfoMu.Unlock()
	userInfoProvider = p
}

func getUserInfoProvider() services.UserInfoProvider {
	userInfoMu.RLock()
	defer userInfoMu.RUnlock()
	if userInfoProvider != nil {
		return userInfoProvider
	}
	return services.NewAuth0Service(config.GetConfig())
}

// UpdateUserRequest represents the request body for updating a user profile
type UpdateUserRequest struct {
	Name  string `json:"name" binding:"omitempty,max=120"`
	Email string `json:"email" binding:"omitempty,email"`
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")
}

// CreateUser handles POST /api/v1/users - registers the caller as a shop user
// from Auth0's /userinfo endpoint. Technician stamps on orders refer to this user.
func CreateUser(c *gin.Context) {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user ID from token", nil)
		return
	}

	accessToken, err := middleware.GetAccessToken(c)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, "MISSING_TOKEN", "Access token not found", nil)
		return
	}

	userInfo, err := getUserInfoProvider().GetUserInfo(c.Request.Context(), accessToken)
	if err != nil {
		middleware.GetLogger(c).Warn("Auth0 userinfo failed", zap.Error(err))
		if errors.Is(err, services.ErrUserInfoRejected) {
			utils.RespondError(c, http.StatusUnauthorized, "AUTH0_TOKEN_REJECTED", "Auth0 did not accept the access token", nil)
			return
		}
		utils.RespondError(c, http.StatusBadGateway, "AUTH0_ERROR", "Failed to fetch user information from Auth0", nil)
		return
	}

	name := strings.TrimSpace(userInfo.Name)
	if name == "" {
		name = userInfo.Email
	}

	// Only an explicit admin claim grants admin
	role := models.RoleTechnician
	if claims, err := middleware.GetClaims(c); err == nil {
		if cc, ok := claims.CustomClaims.(*middleware.CustomClaims); ok && cc.Role == models.RoleAdmin {
			role = models.RoleAdmin
		}
	}

	user := models.User{
		Auth0ID: auth0ID,
		Name:    name,
		Email:   userInfo.Email,
		Role:    role,
	}
	if err := config.GetDB().Create(&user).Error; err != nil {
		if isUniqueViolation(err) {
			utils.RespondError(c, http.StatusConflict, "USER_EXISTS", "A user with this Auth0 ID or email already exists", nil)
			return
		}
		utils.RespondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create user", nil)
		return
	}

	middleware.GetLogger(c).Info("User registered", zap.String("user_id", user.ID), zap.String("role", user.Role))
	utils.RespondSuccess(c, http.StatusCreated, user)
}

func currentUser(c *gin.Context) (*models.User, bool) {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information", nil)
		return nil, false
	}

	var user models.User
	if err := config.GetDB().Where("auth0_id = ?", auth0ID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.RespondError(c, http.StatusNotFound, "USER_NOT_FOUND", "User profile not found. Please create a profile first.", nil)
			return nil, false
		}
		utils.RespondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load user profile", nil)
		return nil, false
	}
	return &user, true
}

// GetMyProfile handles GET /api/v1/users/me - gets current user's profile
func GetMyProfile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	utils.RespondSuccess(c, http.StatusOK, user)
}

// UpdateMyProfile handles PUT /api/v1/users/me - updates current user's profile
func UpdateMyProfile(c *gin.Context) {
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	user, ok := currentUser(c)
	if !ok {
		return
	}

	updates := make(map[string]interface{})
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Email != "" {
		updates["email"] = req.Email
	}
	if len(updates) == 0 {
		utils.RespondSuccess(c, http.StatusOK, user)
		return
	}

	db := config.GetDB()
	if err := db.Model(user).Updates(updates).Error; err != nil {
		if isUniqueViolation(err) {
			utils.RespondError(c, http.StatusConflict, "EMAIL_EXISTS", "A user with this email already exists", nil)
			return
		}
		utils.RespondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update user profile", nil)
		return
	}

	if err := db.First(user, "id = ?", user.ID).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to fetch updated profile", nil)
		return
	}
	utils.RespondSuccess(c, http.StatusOK, user)
}
