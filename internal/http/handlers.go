package http

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"khata-ledger-go/internal/auth"
	"khata-ledger-go/internal/config"
	"khata-ledger-go/internal/khata"
	"khata-ledger-go/internal/ledger"
	"khata-ledger-go/internal/models"
	"khata-ledger-go/internal/phone"
	"khata-ledger-go/internal/realtime"
	"khata-ledger-go/internal/reminder"
)

//go:embed schemas/*.json
var schemaFS embed.FS

type Deps struct {
	Logger *zap.Logger
	Khata  *khata.Service
	Auth   *auth.Flow
	Views  *realtime.Manager
}

type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	khata   *khata.Service
	auth    *auth.Flow
	views   *realtime.Manager
	schemas map[string]*gojsonschema.Schema
}

func NewServer(cfg *config.Config, deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors(cfg))
	r.Use(logging(deps.Logger))

	s := &Server{
		cfg:     cfg,
		logger:  deps.Logger,
		khata:   deps.Khata,
		auth:    deps.Auth,
		views:   deps.Views,
		schemas: mustLoadSchemas("transaction", "contact", "profile", "wasooli"),
	}

	// Auth
	r.POST("/v1/auth/otp/send", s.authOtpSend)
	r.POST("/v1/auth/otp/verify", s.authOtpVerify)

	// Protected Routes (session token)
	authorized := r.Group("/v1")
	authorized.Use(AuthMiddleware(deps.Auth))
	{
		authorized.POST("/auth/signout", s.authSignOut)

		authorized.GET("/me", s.getProfile)
		authorized.PUT("/me/business", s.setBusinessName)
		authorized.PUT("/me", s.updateProfile)

		authorized.GET("/contacts", s.listContacts)
		authorized.POST("/contacts", s.createContact)
		authorized.GET("/contacts/deleted", s.listDeletedContacts)
		authorized.DELETE("/contacts/:id", s.deleteContact)
		authorized.POST("/contacts/:id/recover", s.recoverContact)
		authorized.GET("/contacts/:id/ledger", s.contactLedger)
		authorized.GET("/contacts/:id/stream", s.streamContact)
		authorized.GET("/contacts/:id/wasooli", s.getWasooli)
		authorized.PUT("/contacts/:id/wasooli", s.setWasooli)

		authorized.GET("/transactions", s.listTransactions)
		authorized.POST("/transactions", s.saveTransaction)
		authorized.PUT("/transactions/:id", s.updateTransaction)

		authorized.GET("/ledger", s.home)
		authorized.GET("/ledger/stream", s.streamHome)
		authorized.GET("/insights", s.getInsights)
	}

	r.GET("/health", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })
	return r
}

func mustLoadSchemas(names ...string) map[string]*gojsonschema.Schema {
	out := make(map[string]*gojsonschema.Schema, len(names))
	for _, name := range names {
		raw, err := schemaFS.ReadFile("schemas/" + name + ".schema.json")
		if err != nil {
			panic(err)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			panic(err)
		}
		out[name] = schema
	}
	return out
}

// bindValid validates the request body against a schema and decodes it into
// v. On failure the response has been written and false is returned.
func (s *Server) bindValid(c *gin.Context, schema string, v any) bool {
	body, err := c.GetRawData()
	if err != nil || len(body) == 0 {
		c.JSON(400, gin.H{"error": "invalid_request"})
		return false
	}

	res, err := s.schemas[schema].Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid_json"})
		return false
	}
	if !res.Valid() {
		d := []string{}
		for _, e := range res.Errors() {
			d = append(d, e.String())
		}
		c.JSON(422, gin.H{"error": "schema_invalid", "details": d})
		return false
	}

	if err := json.Unmarshal(body, v); err != nil {
		c.JSON(400, gin.H{"error": "invalid_request", "details": []string{err.Error()}})
		return false
	}
	return true
}

// writeError maps service errors onto status codes and snake_case codes.
func (s *Server) writeError(c *gin.Context, err error) {
	var partial *khata.PartialWriteError
	switch {
	case errors.As(err, &partial):
		c.JSON(500, gin.H{"error": "partial_write", "transaction_id": partial.TransactionID})
	case errors.Is(err, khata.ErrNoIdentity), errors.Is(err, auth.ErrInvalidToken):
		c.JSON(401, gin.H{"error": "unauthorized"})
	case errors.Is(err, khata.ErrInvalidAmount):
		c.JSON(400, gin.H{"error": "invalid_amount"})
	case errors.Is(err, khata.ErrInvalidContact), errors.Is(err, auth.ErrInvalidPhone):
		c.JSON(400, gin.H{"error": "invalid_phone"})
	case errors.Is(err, khata.ErrInvalidDirection):
		c.JSON(400, gin.H{"error": "invalid_type"})
	case errors.Is(err, khata.ErrInvalidProfile):
		c.JSON(400, gin.H{"error": "invalid_profile", "details": []string{err.Error()}})
	case errors.Is(err, reminder.ErrUnknownPreset), errors.Is(err, reminder.ErrMissingDate):
		c.JSON(400, gin.H{"error": "invalid_reminder"})
	case errors.Is(err, auth.ErrChallengeNotFound):
		c.JSON(400, gin.H{"error": "otp_expired"})
	case errors.Is(err, auth.ErrInvalidCode):
		c.JSON(401, gin.H{"error": "invalid_otp"})
	case errors.Is(err, auth.ErrTooManyAttempts):
		c.JSON(429, gin.H{"error": "too_many_attempts"})
	case errors.Is(err, khata.ErrNotFound):
		c.JSON(404, gin.H{"error": "not_found"})
	default:
		s.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(500, gin.H{"error": "internal_error"})
	}
}

func (s *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), time.Duration(s.cfg.ReqTimeoutSec)*time.Second)
}

// currency is the display currency of the signed-in merchant.
func (s *Server) currency(ctx context.Context, userID string) string {
	p, err := s.khata.Profile(ctx, userID)
	if err != nil {
		return s.cfg.DefaultCurrency
	}
	return p.Currency
}

type rowView struct {
	ledger.Row
	Display         string `json:"display"`
	Label           string `json:"label"`
	FormattedNumber string `json:"formattedNumber"`
}

type homeView struct {
	Active            []rowView `json:"active"`
	Deleted           []rowView `json:"deleted"`
	Receivable        string    `json:"receivable"`
	Payable           string    `json:"payable"`
	ReceivableDisplay string    `json:"receivableDisplay"`
	PayableDisplay    string    `json:"payableDisplay"`
	Skipped           int       `json:"skipped"`
}

func rowsView(rows []ledger.Row, currency string) []rowView {
	out := make([]rowView, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowView{
			Row:             r,
			Display:         ledger.FormatAmount(r.Balance, currency),
			Label:           r.Standing.Label(),
			FormattedNumber: phone.Format(r.Number),
		})
	}
	return out
}

func newHomeView(sum ledger.Summary, currency string) homeView {
	return homeView{
		Active:            rowsView(sum.Active, currency),
		Deleted:           rowsView(sum.Deleted, currency),
		Receivable:        sum.Receivable.String(),
		Payable:           sum.Payable.String(),
		ReceivableDisplay: ledger.FormatAmount(sum.Receivable, currency),
		PayableDisplay:    ledger.FormatAmount(sum.Payable, currency),
		Skipped:           sum.Skipped,
	}
}

type ledgerView struct {
	ledger.ContactLedger
	Display string `json:"display"`
	Label   string `json:"label"`
}

func newLedgerView(l ledger.ContactLedger, currency string) ledgerView {
	return ledgerView{
		ContactLedger: l,
		Display:       ledger.FormatAmount(l.Balance, currency),
		Label:         l.Standing.Label(),
	}
}

// GET /v1/ledger
func (s *Server) home(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	uid := userID(c)

	sum, err := s.khata.Home(ctx, uid)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(200, newHomeView(sum, s.currency(ctx, uid)))
}

// GET /v1/contacts?q=
func (s *Server) listContacts(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	contacts, err := s.khata.Contacts(ctx, userID(c), c.Query("q"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(200, gin.H{"contacts": contacts})
}

// POST /v1/contacts
func (s *Server) createContact(c *gin.Context) {
	var input struct {
		Name   string `json:"name"`
		Number string `json:"number"`
	}
	if !s.bindValid(c, "contact", &input) {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	contact, err := s.khata.CreateContact(ctx, userID(c), input.Name, input.Number)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(201, contact)
}

// GET /v1/contacts/deleted
func (s *Server) listDeletedContacts(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	uid := userID(c)

	rows, err := s.khata.DeletedContacts(ctx, uid)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(200, gin.H{"contacts": rowsView(rows, s.currency(ctx, uid))})
}

// DELETE /v1/contacts/:id
func (s *Server) deleteContact(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.khata.DeleteContact(ctx, userID(c), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(200, gin.H{"message": "contact deleted"})
}

// POST /v1/contacts/:id/recover
func (s *Server) recoverContact(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.khata.RecoverContact(ctx, userID(c), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(200, gin.H{"message": "contact recovered"})
}

// GET /v1/contacts/:id/ledger
func (s *Server) contactLedger(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	uid := userID(c)

	l, err := s.khata.ContactLedger(ctx, uid, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	due, err := s.khata.WasooliDate(ctx, uid, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(200, gin.H{
		"ledger":      newLedgerView(l, s.currency(ctx, uid)),
		"wasooliDate": wasooliView(due, s.khata.Now(), s.khata.Location()),
	})
}

type wasooliResponse struct {
	Date  *time.Time `json:"date"`
	Label string     `json:"label,omitempty"`
}

func wasooliView(due *time.Time, now time.Time, loc *time.Location) wasooliResponse {
	if due == nil {
		return wasooliResponse{}
	}
	return wasooliResponse{Date: due, Label: reminder.Label(now, *due, loc)}
}

// GET /v1/contacts/:id/wasooli
func (s *Server) getWasooli(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	due, err := s.khata.WasooliDate(ctx, userID(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(200, wasooliView(due, s.khata.Now(), s.khata.Location()))
}

// PUT /v1/contacts/:id/wasooli
func (s *Server) setWasooli(c *gin.Context) {
	var input struct {
		Preset reminder.Preset `json:"preset"`
		Date   *time.Time      `json:"date"`
	}
	if !s.bindValid(c, "wasooli", &input) {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	due, err := s.khata.SetWasooliDate(ctx, userID(c), c.Param("id"), input.Preset, input.Date)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(200, wasooliView(due, s.khata.Now(), s.khata.Location()))
}

// GET /v1/transactions?contactId=&from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *Server) listTransactions(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	f := khata.Filter{ContactID: strings.TrimSpace(c.Query("contactId"))}
	loc := s.khata.Location()
	if from := c.Query("from"); from != "" {
		t, err := time.ParseInLocation("2006-01-02", from, loc)
		if err != nil {
			c.JSON(400, gin.H{"error": "invalid_date", "details": []string{"from"}})
			return
		}
		f.From = t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.ParseInLocation("2006-01-02", to, loc)
		if err != nil {
			c.JSON(400, gin.H{"error": "invalid_date", "details": []string{"to"}})
			return
		}
		// Whole day, inclusive.
		f.To = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}

	entries, skipped, err := s.khata.Transactions(ctx, userID(c), f)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(200, gin.H{"transactions": entries, "skipped": skipped})
}

// POST /v1/transactions
func (s *Server) saveTransaction(c *gin.Context) {
	var input khata.TransactionInput
	if !s.bindValid(c, "transaction", &input) {
		return
	}
	input.ID = ""
	s.writeTransaction(c, input, 201)
}

// PUT /v1/transactions/:id
func (s *Server) updateTransaction(c *gin.Context) {
	var input khata.TransactionInput
	if !s.bindValid(c, "transaction", &input) {
		return
	}
	input.ID = c.Param("id")
	s.writeTransaction(c, input, 200)
}

func (s *Server) writeTransaction(c *gin.Context, input khata.TransactionInput, status int) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	tx, err := s.khata.SaveTransaction(ctx, userID(c), input)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(status, tx)
}

// GET /v1/me
func (s *Server) getProfile(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	p, err := s.khata.Profile(ctx, userID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(200, profileResponse(p))
}

func profileResponse(p models.Profile) gin.H {
	return gin.H{
		"user":               p,
		"onboardingComplete": p.OnboardingComplete(),
		"currencies":         models.Currencies,
		"businessTypes":      models.BusinessTypes,
	}
}

// PUT /v1/me/business
func (s *Server) setBusinessName(c *gin.Context) {
	var input struct {
		BusinessName string `json:"businessName"`
	}
	if !s.bindValid(c, "profile", &input) {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	p, err := s.khata.SetBusinessName(ctx, userID(c), input.BusinessName)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.profileChanged(ctx, p.UserID)
	c.JSON(200, profileResponse(p))
}

// PUT /v1/me
func (s *Server) updateProfile(c *gin.Context) {
	var input khata.ProfileUpdate
	if !s.bindValid(c, "profile", &input) {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	p, err := s.khata.UpdateProfile(ctx, userID(c), input)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.profileChanged(ctx, p.UserID)
	c.JSON(200, profileResponse(p))
}

func (s *Server) profileChanged(ctx context.Context, uid string) {
	if err := s.auth.ProfileChanged(ctx, uid); err != nil {
		s.logger.Warn("Failed to refresh sessions after profile change", zap.String("user_id", uid), zap.Error(err))
	}
}

func cors(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", cfg.AllowOrigins)
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, PUT, DELETE, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

func logging(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
