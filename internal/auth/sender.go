package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Sender delivers a one-time code to a phone number.
type Sender interface {
	Send(ctx context.Context, phone, code string) error
}

// LogSender writes the code to the log instead of sending it. Development only.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, phone, code string) error {
	s.logger.Info("OTP generated", zap.String("phone", phone), zap.String("code", code))
	return nil
}

type gatewayRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

type gatewayResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

// GatewaySender posts the code to an HTTP SMS gateway.
type GatewaySender struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

func NewGatewaySender(baseURL, token string, logger *zap.Logger) *GatewaySender {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return &GatewaySender{httpClient: client, logger: logger}
}

func (s *GatewaySender) Send(ctx context.Context, phone, code string) error {
	var result gatewayResponse
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetBody(gatewayRequest{To: phone, Message: fmt.Sprintf("Your Khata verification code is %s", code)}).
		SetResult(&result).
		SetError(&result).
		Post("/messages")
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	if resp.IsError() {
		s.logger.Error("SMS gateway rejected message",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("error", result.Error),
		)
		return fmt.Errorf("sms gateway: status %d: %s", resp.StatusCode(), result.Error)
	}

	s.logger.Info("OTP sent", zap.String("message_id", result.ID))
	return nil
}
