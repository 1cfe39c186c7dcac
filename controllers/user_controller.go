package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ideahub/ideahub/config"
	"github.com/ideahub/ideahub/middleware"
	"github.com/ideahub/ideahub/models"
	"github.com/ideahub/ideahub/utils"
)

// tokenTTL is the fixed lifetime of issued login tokens.
const tokenTTL = 2 * time.Hour

// UserController handles registration, login and profile management.
type UserController struct {
	db  *gorm.DB
	cfg config.AppConfig
}

// NewUserController creates a UserController.
func NewUserController(db *gorm.DB, cfg config.AppConfig) *UserController {
	return &UserController{db: db, cfg: cfg}
}

// Register creates a local account with a bcrypt-hashed password.
func (u *UserController) Register(ctx *gin.Context) {
	type request struct {
		Name       string `json:"name" binding:"required"`
		Email      string `json:"email" binding:"required,email"`
		Password   string `json:"password" binding:"required,min=6"`
		Department string `json:"department"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	var existing models.User
	if err := u.db.Where("email = ?", email).First(&existing).Error; err == nil {
		utils.Error(ctx, http.StatusConflict, 40901, "email already registered")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to hash password")
		return
	}

	user := models.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: hash,
		Department:   strings.TrimSpace(req.Department),
	}

	if err := u.db.Create(&user).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50002, "failed to create user")
		return
	}

	utils.Respond(ctx, http.StatusCreated, 0, "user created successfully", gin.H{"id": user.ID})
}

// Login verifies credentials by email and issues a JWT.
func (u *UserController) Login(ctx *gin.Context) {
	type request struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, "invalid request payload")
		return
	}

	var user models.User
	if err := u.db.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50003, "failed to look up user")
		return
	}

	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid credentials")
		return
	}

	token, err := utils.GenerateToken(u.cfg.JWTSecret, user.ID, user.Name, tokenTTL)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50004, "failed to generate token")
		return
	}

	utils.Success(ctx, gin.H{
		"token":        token,
		"id":           user.ID,
		"name":         user.Name,
		"is_admin":     user.IsAdmin,
		"is_moderator": user.IsModerator,
	})
}

// GetProfile returns a user's profile. The password hash never serializes.
func (u *UserController) GetProfile(ctx *gin.Context) {
	userID, ok := parsePathID(ctx, "userId")
	if !ok {
		utils.Error(ctx, http.StatusNotFound, 40402, "user not found")
		return
	}
	var user models.User
	if err := u.db.First(&user, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40402, "user not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50005, "failed to fetch user")
		return
	}
	utils.Success(ctx, user)
}

// UpdateProfile merges the supplied fields into the target account. Only the
// account owner or a moderator/admin may update it.
func (u *UserController) UpdateProfile(ctx *gin.Context) {
	var req struct {
		Name       string `json:"name"`
		Email      string `json:"email"`
		Password   string `json:"password"`
		Department string `json:"department"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40003, "invalid request payload")
		return
	}

	userID, ok := parsePathID(ctx, "userId")
	if !ok {
		utils.Error(ctx, http.StatusNotFound, 40403, "user not found")
		return
	}
	var user models.User
	if err := u.db.First(&user, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40403, "user not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50006, "failed to fetch user")
		return
	}

	if !canManageUser(ctx, user.ID) {
		utils.Error(ctx, http.StatusForbidden, 40301, "you can only update your own profile")
		return
	}

	if strings.TrimSpace(req.Name) != "" {
		user.Name = strings.TrimSpace(req.Name)
	}
	if strings.TrimSpace(req.Email) != "" {
		user.Email = strings.ToLower(strings.TrimSpace(req.Email))
	}
	if strings.TrimSpace(req.Department) != "" {
		user.Department = strings.TrimSpace(req.Department)
	}
	if req.Password != "" {
		hash, err := utils.HashPassword(req.Password)
		if err != nil {
			utils.Error(ctx, http.StatusInternalServerError, 50007, "failed to hash password")
			return
		}
		user.PasswordHash = hash
	}

	if err := u.db.Save(&user).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50008, "failed to update profile")
		return
	}

	utils.Success(ctx, user)
}

// DeleteProfile hard-deletes an account. Authored posts are intentionally
// left in place; their author snapshot keeps them displayable.
func (u *UserController) DeleteProfile(ctx *gin.Context) {
	userID, ok := parsePathID(ctx, "userId")
	if !ok {
		utils.Error(ctx, http.StatusNotFound, 40404, "user not found")
		return
	}
	var user models.User
	if err := u.db.First(&user, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40404, "user not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50009, "failed to fetch user")
		return
	}

	if !canManageUser(ctx, user.ID) {
		utils.Error(ctx, http.StatusForbidden, 40302, "you can only delete your own profile")
		return
	}

	if err := u.db.Delete(&user).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50010, "failed to delete user")
		return
	}

	utils.Success(ctx, gin.H{"message": "user profile deleted successfully"})
}

// ToggleModerator flips the moderator flag and returns the new value.
func (u *UserController) ToggleModerator(ctx *gin.Context) {
	userID, ok := parsePathID(ctx, "userId")
	if !ok {
		utils.Error(ctx, http.StatusNotFound, 40405, "user not found")
		return
	}
	var user models.User
	if err := u.db.First(&user, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40405, "user not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50011, "failed to fetch user")
		return
	}

	user.IsModerator = !user.IsModerator
	if err := u.db.Save(&user).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50012, "failed to update user")
		return
	}

	utils.Success(ctx, gin.H{"is_moderator": user.IsModerator})
}

// ListUsers returns every account minus password hashes. An empty table is
// reported as not found; existing clients depend on that convention.
func (u *UserController) ListUsers(ctx *gin.Context) {
	var users []models.User
	if err := u.db.Order("created_at ASC").Find(&users).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50013, "failed to retrieve users")
		return
	}
	if len(users) == 0 {
		utils.Error(ctx, http.StatusNotFound, 40406, "no users found")
		return
	}
	utils.Success(ctx, gin.H{"users": users})
}

// canManageUser reports whether the authenticated caller owns the target
// account or holds a moderator/admin role.
func canManageUser(ctx *gin.Context, targetID uint) bool {
	caller, ok := middleware.CurrentUser(ctx)
	if !ok {
		return false
	}
	return caller.ID == targetID || caller.IsModerator || caller.IsAdmin
}
