package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"khata-ledger-go/internal/auth"
	"khata-ledger-go/internal/config"
	"khata-ledger-go/internal/feed"
	"khata-ledger-go/internal/khata"
	"khata-ledger-go/internal/kv"
	"khata-ledger-go/internal/realtime"
	"khata-ledger-go/internal/store"
)

type captureSender struct {
	mu   sync.Mutex
	last string
}

func (c *captureSender) Send(_ context.Context, _, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = code
	return nil
}

func (c *captureSender) code() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

type testServer struct {
	engine *gin.Engine
	sender *captureSender
	views  *realtime.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	b, err := store.NewBolt(filepath.Join(t.TempDir(), "http.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	logger := zap.NewNop()
	broker := feed.NewLocal()
	docs := store.NewObserved(b, broker, logger)
	sender := &captureSender{}
	views := realtime.NewManager(docs, broker, logger)
	t.Cleanup(views.Close)

	cfg := &config.Config{AllowOrigins: "*", ReqTimeoutSec: 5, DefaultCurrency: "RS"}
	engine := NewServer(cfg, Deps{
		Logger: logger,
		Khata:  khata.NewService(docs, logger),
		Auth:   auth.NewFlow(auth.Config{}, kv.NewMemory(), docs, sender, logger),
		Views:  views,
	})
	return &testServer{engine: engine, sender: sender, views: views}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (ts *testServer) signIn(t *testing.T, phone string) string {
	t.Helper()
	w := ts.do(t, "POST", "/v1/auth/otp/send", "", gin.H{"phoneNumber": phone})
	require.Equal(t, 200, w.Code, w.Body.String())
	pending := decode(t, w)

	w = ts.do(t, "POST", "/v1/auth/otp/verify", "", gin.H{"challengeId": pending["challengeId"], "code": ts.sender.code()})
	require.Equal(t, 200, w.Code, w.Body.String())
	token, _ := decode(t, w)["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, "GET", "/health", "", nil)
	assert.Equal(t, 200, w.Code)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, "GET", "/v1/ledger", "", nil)
	assert.Equal(t, 401, w.Code)
	assert.Equal(t, "authorization_header_missing", decode(t, w)["error"])

	w = ts.do(t, "GET", "/v1/ledger", "forged", nil)
	assert.Equal(t, 401, w.Code)
	assert.Equal(t, "invalid_token", decode(t, w)["error"])
}

func TestOtpVerifyWrongCode(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, "POST", "/v1/auth/otp/send", "", gin.H{"phoneNumber": "0300-1234567"})
	require.Equal(t, 200, w.Code)
	pending := decode(t, w)

	w = ts.do(t, "POST", "/v1/auth/otp/verify", "", gin.H{"challengeId": pending["challengeId"], "code": "x"})
	assert.Equal(t, 401, w.Code)
	assert.Equal(t, "invalid_otp", decode(t, w)["error"])
}

func TestLedgerFlow(t *testing.T) {
	ts := newTestServer(t)
	token := ts.signIn(t, "03331112222")

	w := ts.do(t, "POST", "/v1/transactions", token, gin.H{
		"contactName": "Junaid", "contactNumber": "0300-1234567", "type": "given", "amount": 500,
	})
	require.Equal(t, 201, w.Code, w.Body.String())
	w = ts.do(t, "POST", "/v1/transactions", token, gin.H{
		"contactName": "Junaid", "contactNumber": "0300-1234567", "type": "received", "amount": "200",
	})
	require.Equal(t, 201, w.Code, w.Body.String())

	w = ts.do(t, "GET", "/v1/ledger", token, nil)
	require.Equal(t, 200, w.Code)
	home := decode(t, w)
	active := home["active"].([]any)
	require.Len(t, active, 1)
	row := active[0].(map[string]any)
	assert.Equal(t, "03001234567", row["contactId"])
	assert.Equal(t, "Rs. 300", row["display"])
	assert.Equal(t, "lene hain", row["label"])
	assert.Equal(t, "0300-1234567", row["formattedNumber"])
	assert.Equal(t, "Rs. 300", home["receivableDisplay"])

	w = ts.do(t, "GET", "/v1/contacts/03001234567/ledger", token, nil)
	require.Equal(t, 200, w.Code)
	l := decode(t, w)["ledger"].(map[string]any)
	assert.Len(t, l["lines"], 2)
	assert.Equal(t, "Rs. 300", l["display"])

	w = ts.do(t, "GET", "/v1/transactions?contactId=03001234567", token, nil)
	require.Equal(t, 200, w.Code)
	assert.Len(t, decode(t, w)["transactions"], 2)

	// Another merchant sees nothing.
	other := ts.signIn(t, "03449998888")
	w = ts.do(t, "GET", "/v1/ledger", other, nil)
	require.Equal(t, 200, w.Code)
	assert.Empty(t, decode(t, w)["active"])
}

func TestSaveTransactionValidation(t *testing.T) {
	ts := newTestServer(t)
	token := ts.signIn(t, "03331112222")

	w := ts.do(t, "POST", "/v1/transactions", token, gin.H{"contactNumber": "0300", "type": "loan", "amount": 5})
	assert.Equal(t, 422, w.Code)
	assert.Equal(t, "schema_invalid", decode(t, w)["error"])

	w = ts.do(t, "POST", "/v1/transactions", token, gin.H{"contactNumber": "0300", "type": "given", "amount": 0})
	assert.Equal(t, 400, w.Code)
	assert.Equal(t, "invalid_amount", decode(t, w)["error"])

	w = ts.do(t, "POST", "/v1/transactions", token, gin.H{"contactNumber": "0300", "type": "given", "amount": 1e13})
	assert.Equal(t, 422, w.Code)

	w = ts.do(t, "POST", "/v1/transactions", token, gin.H{"contactNumber": "0300", "type": "given", "amount": "1e2000000"})
	assert.Equal(t, 400, w.Code)
	assert.Equal(t, "invalid_amount", decode(t, w)["error"])

	w = ts.do(t, "POST", "/v1/transactions", token, gin.H{"contactNumber": "n/a", "type": "given", "amount": 5})
	assert.Equal(t, 400, w.Code)
	assert.Equal(t, "invalid_phone", decode(t, w)["error"])

	w = ts.do(t, "PUT", "/v1/transactions/missing", token, gin.H{"contactNumber": "0300", "type": "given", "amount": 5})
	assert.Equal(t, 404, w.Code)
}

func TestDeleteAndRecoverContact(t *testing.T) {
	ts := newTestServer(t)
	token := ts.signIn(t, "03331112222")

	w := ts.do(t, "POST", "/v1/transactions", token, gin.H{"contactName": "Ali", "contactNumber": "0321", "type": "given", "amount": 70})
	require.Equal(t, 201, w.Code)

	w = ts.do(t, "DELETE", "/v1/contacts/0321", token, nil)
	require.Equal(t, 200, w.Code)

	w = ts.do(t, "GET", "/v1/contacts/deleted", token, nil)
	require.Equal(t, 200, w.Code)
	deleted := decode(t, w)["contacts"].([]any)
	require.Len(t, deleted, 1)
	assert.NotEmpty(t, deleted[0].(map[string]any)["purgeAfter"])

	w = ts.do(t, "GET", "/v1/ledger", token, nil)
	assert.Empty(t, decode(t, w)["active"])

	w = ts.do(t, "POST", "/v1/contacts/0321/recover", token, nil)
	require.Equal(t, 200, w.Code)
	w = ts.do(t, "GET", "/v1/ledger", token, nil)
	assert.Len(t, decode(t, w)["active"], 1)

	w = ts.do(t, "DELETE", "/v1/contacts/9999", token, nil)
	assert.Equal(t, 404, w.Code)
}

func TestContactsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	token := ts.signIn(t, "03331112222")

	w := ts.do(t, "POST", "/v1/contacts", token, gin.H{"name": "Bilal", "number": "0321-7654321"})
	require.Equal(t, 201, w.Code, w.Body.String())
	w = ts.do(t, "POST", "/v1/contacts", token, gin.H{"name": "Bilal"})
	assert.Equal(t, 422, w.Code)

	w = ts.do(t, "GET", "/v1/contacts?q=bil", token, nil)
	require.Equal(t, 200, w.Code)
	assert.Len(t, decode(t, w)["contacts"], 1)
}

func TestProfileOnboarding(t *testing.T) {
	ts := newTestServer(t)
	token := ts.signIn(t, "03331112222")

	w := ts.do(t, "GET", "/v1/me", token, nil)
	require.Equal(t, 200, w.Code)
	assert.Equal(t, false, decode(t, w)["onboardingComplete"])

	w = ts.do(t, "PUT", "/v1/me/business", token, gin.H{"businessName": " "})
	assert.Equal(t, 400, w.Code)

	w = ts.do(t, "PUT", "/v1/me/business", token, gin.H{"businessName": "Junaid Traders"})
	require.Equal(t, 200, w.Code)
	assert.Equal(t, true, decode(t, w)["onboardingComplete"])

	w = ts.do(t, "PUT", "/v1/me", token, gin.H{"currency": "USD"})
	require.Equal(t, 200, w.Code)
	user := decode(t, w)["user"].(map[string]any)
	assert.Equal(t, "USD", user["currency"])
}

func TestWasooliEndpoints(t *testing.T) {
	ts := newTestServer(t)
	token := ts.signIn(t, "03331112222")

	w := ts.do(t, "PUT", "/v1/contacts/0321/wasooli", token, gin.H{"preset": "next_week"})
	require.Equal(t, 200, w.Code, w.Body.String())
	assert.Equal(t, "due in 7 days", decode(t, w)["label"])

	w = ts.do(t, "PUT", "/v1/contacts/0321/wasooli", token, gin.H{"preset": "custom"})
	assert.Equal(t, 400, w.Code)
	assert.Equal(t, "invalid_reminder", decode(t, w)["error"])

	w = ts.do(t, "PUT", "/v1/contacts/0321/wasooli", token, gin.H{"preset": "clear"})
	require.Equal(t, 200, w.Code)
	w = ts.do(t, "GET", "/v1/contacts/0321/wasooli", token, nil)
	require.Equal(t, 200, w.Code)
	assert.Nil(t, decode(t, w)["date"])
}

func TestInsights(t *testing.T) {
	ts := newTestServer(t)
	token := ts.signIn(t, "03331112222")

	for _, tx := range []gin.H{
		{"contactName": "Ali", "contactNumber": "0321", "type": "given", "amount": 1000},
		{"contactName": "Ali", "contactNumber": "0321", "type": "received", "amount": 250},
		{"contactName": "Bilal", "contactNumber": "0322", "type": "received", "amount": 40},
	} {
		w := ts.do(t, "POST", "/v1/transactions", token, tx)
		require.Equal(t, 201, w.Code)
	}

	w := ts.do(t, "GET", "/v1/insights", token, nil)
	require.Equal(t, 200, w.Code)
	res := decode(t, w)
	month := res["this_month"].(map[string]any)
	assert.Equal(t, "1000", month["given"])
	assert.Equal(t, "290", month["received"])
	assert.Len(t, res["top_receivables"], 1)
	assert.Len(t, res["top_payables"], 1)
}

func TestLedgerStream(t *testing.T) {
	ts := newTestServer(t)
	token := ts.signIn(t, "03331112222")
	w := ts.do(t, "POST", "/v1/transactions", token, gin.H{"contactName": "Junaid", "contactNumber": "0300", "type": "given", "amount": 500})
	require.Equal(t, 201, w.Code)

	srv := httptest.NewServer(ts.engine)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", srv.URL+"/v1/ledger/stream?client=test", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	scanner := bufio.NewScanner(resp.Body)
	var data string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data:") {
			data = strings.TrimPrefix(line, "data:")
			if strings.Contains(data, "Rs. 500") {
				break
			}
		}
	}
	assert.Contains(t, data, `"display":"Rs. 500"`)
	assert.Equal(t, 1, ts.views.Active())

	cancel()
	require.Eventually(t, func() bool { return ts.views.Active() == 0 }, 3*time.Second, 20*time.Millisecond)
}
