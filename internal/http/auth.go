package http

import (
	"github.com/gin-gonic/gin"

	"khata-ledger-go/internal/auth"
)

// Auth Response Wrapper
type AuthResponse struct {
	Token   string            `json:"token"`
	Session auth.SessionState `json:"session"`
}

// POST /v1/auth/otp/send
func (s *Server) authOtpSend(c *gin.Context) {
	var input struct {
		PhoneNumber string `json:"phoneNumber" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(400, gin.H{"error": "invalid_request"})
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	pending, err := s.auth.Start(ctx, input.PhoneNumber)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(200, pending)
}

// POST /v1/auth/otp/verify
func (s *Server) authOtpVerify(c *gin.Context) {
	var input struct {
		ChallengeID string `json:"challengeId" binding:"required"`
		Code        string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(400, gin.H{"error": "invalid_request"})
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	sess, err := s.auth.Confirm(ctx, input.ChallengeID, input.Code)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(200, AuthResponse{Token: sess.Token, Session: sess.State()})
}

// POST /v1/auth/signout
func (s *Server) authSignOut(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.auth.SignOut(ctx, session(c).Token); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(200, gin.H{"message": "signed out"})
}
