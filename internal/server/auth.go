package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/floodwatch/internal/auth/domain"
)

type authResponse struct {
	Success   bool                `json:"success"`
	Message   string              `json:"message"`
	User      *authdomain.Summary `json:"user,omitempty"`
	Token     string              `json:"token,omitempty"`
	ExpiresAt *time.Time          `json:"expiresAt,omitempty"`
	// set instead of Token when a second factor is required
	ChallengeID string `json:"challengeId,omitempty"`
}

type dataResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type VerifyLoginRequest struct {
	ChallengeID string `json:"challengeId"`
	Code        string `json:"code"`
}

type TwoFactorRequest struct {
	Enabled bool `json:"enabled"`
}

type RoleRequest struct {
	Role string `json:"role"`
}

func newAuthResponse(message string, result *authdomain.AuthResult) authResponse {
	user := result.Account
	resp := authResponse{
		Success: true,
		Message: message,
		User:    &user,
	}
	if result.ChallengePending() {
		resp.ChallengeID = result.ChallengeID
		return resp
	}
	expiresAt := result.ExpiresAt
	resp.Token = result.Token
	resp.ExpiresAt = &expiresAt
	return resp
}

func (s *Server) Signup(c *gin.Context) {
	var req authdomain.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.authsvc.Signup(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newAuthResponse("Account created", result))
}

func (s *Server) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.authsvc.Login(c.Request.Context(), authdomain.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if result.ChallengePending() {
		resp := newAuthResponse("Verification code sent", result)
		resp.User = nil
		c.JSON(http.StatusAccepted, resp)
		return
	}
	c.JSON(http.StatusOK, newAuthResponse("Login successful", result))
}

func (s *Server) VerifyLogin(c *gin.Context) {
	var req VerifyLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.authsvc.VerifyLogin(c.Request.Context(), authdomain.VerifyLoginRequest{
		ChallengeID: req.ChallengeID,
		Code:        req.Code,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, newAuthResponse("Login successful", result))
}

func (s *Server) Me(c *gin.Context) {
	profile, err := s.authsvc.Profile(c.Request.Context(), currentIdentity(c).AccountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dataResponse{Success: true, Data: profile})
}

func (s *Server) UpdateMe(c *gin.Context) {
	var req authdomain.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	profile, err := s.authsvc.UpdateProfile(c.Request.Context(), currentIdentity(c).AccountID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dataResponse{Success: true, Message: "Profile updated", Data: profile})
}

func (s *Server) ChangePassword(c *gin.Context) {
	var req authdomain.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.authsvc.ChangePassword(c.Request.Context(), currentIdentity(c).AccountID, req); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password changed"})
}

func (s *Server) SetTwoFactor(c *gin.Context) {
	var req TwoFactorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	profile, err := s.authsvc.SetTwoFactor(c.Request.Context(), currentIdentity(c).AccountID, req.Enabled)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dataResponse{Success: true, Message: "Two-factor setting updated", Data: profile})
}

func (s *Server) SetRole(c *gin.Context) {
	target, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, authdomain.ErrAccountNotFound)
		return
	}

	var req RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	profile, err := s.authsvc.SetRole(c.Request.Context(), currentIdentity(c), target, req.Role)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dataResponse{Success: true, Message: "Role updated", Data: profile})
}
