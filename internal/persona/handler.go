package persona

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"kassenwart/internal/auth"
)

type Handler struct {
	repo      Repository
	jwtSecret string
}

func NewHandler(db *sqlx.DB, jwtSecret string) *Handler {
	return &Handler{
		repo:      NewRepository(db),
		jwtSecret: jwtSecret,
	}
}

// Register godoc
// @Summary      Register new persona
// @Description  Creates a new persona account and returns access & refresh tokens.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      RegisterRequest  true  "Registration data"
// @Success      201      {object}  LoginResponse
// @Failure      400      {object}  gin.H
// @Failure      409      {object}  gin.H
// @Router       /auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	exists, err := h.repo.EmailExists(c.Request.Context(), req.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if exists {
		c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	p, err := h.repo.Create(c.Request.Context(), req.GivenName, req.FamilyName, req.Email, passwordHash, auth.RoleMember)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create persona"})
		return
	}

	accessToken, refreshToken, err := auth.GenerateTokens(p.ID, p.Email, p.Role, h.jwtSecret, h.jwtSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate tokens"})
		return
	}

	c.JSON(http.StatusCreated, LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Persona:      *p,
	})
}

// Login godoc
// @Summary      Login
// @Description  Authenticates a persona by email and password.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      LoginRequest  true  "Credentials"
// @Success      200      {object}  LoginResponse
// @Failure      401      {object}  gin.H
// @Router       /auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.repo.FindByEmail(c.Request.Context(), req.Email)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	if !auth.CheckPassword(p.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	accessToken, refreshToken, err := auth.GenerateTokens(p.ID, p.Email, p.Role, h.jwtSecret, h.jwtSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate tokens"})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Persona:      *p,
	})
}

func (h *Handler) GetMe(c *gin.Context) {
	personaID, ok := auth.GetPersonaID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "persona not authenticated"})
		return
	}

	p, err := h.repo.FindByID(c.Request.Context(), personaID)
	if err != nil {
		if errors.Is(err, ErrPersonaNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "persona not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load persona"})
		return
	}

	c.JSON(http.StatusOK, p)
}

// GetMyBalance returns the caller's balance and membership flags.
func (h *Handler) GetMyBalance(c *gin.Context) {
	personaID, ok := auth.GetPersonaID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "persona not authenticated"})
		return
	}

	p, err := h.repo.FindByID(c.Request.Context(), personaID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load persona"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"persona_id":   p.ID,
		"balance":      p.Balance,
		"is_member":    p.IsMember,
		"trial_member": p.TrialMember,
	})
}
