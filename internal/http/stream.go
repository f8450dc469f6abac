package http

import (
	"io"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"khata-ledger-go/internal/auth"
	"khata-ledger-go/internal/realtime"
)

// viewKey scopes a live view to one client screen. A client reconnecting
// with the same key replaces its previous view.
func viewKey(c *gin.Context, screen string) string {
	client := c.Query("client")
	if client == "" {
		client = session(c).Token
	}
	return userID(c) + ":" + client + ":" + screen
}

// signedOut is closed when the session of the request ends.
func signedOut(sess *auth.Session) (<-chan struct{}, func()) {
	done := make(chan struct{})
	var once sync.Once
	cancel := sess.Subscribe(func(st auth.SessionState) {
		if st.SignedOut {
			once.Do(func() { close(done) })
		}
	})
	return done, cancel
}

// GET /v1/ledger/stream
func (s *Server) streamHome(c *gin.Context) {
	uid := userID(c)
	view, err := s.views.WatchHome(viewKey(c, "home"), uid)
	if err != nil {
		s.writeError(c, err)
		return
	}
	defer view.Close()

	ended, unsubscribe := signedOut(session(c))
	defer unsubscribe()
	currency := s.currency(c.Request.Context(), uid)

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-ended:
			c.SSEvent("end", gin.H{"reason": "signed_out"})
			return false
		case st, ok := <-view.States():
			if !ok {
				return false
			}
			if st.Err != nil {
				s.logger.Warn("Home view read failed", zap.String("user_id", uid), zap.Error(st.Err))
				c.SSEvent("error", gin.H{"error": "snapshot_failed"})
				return true
			}
			c.SSEvent("state", homeState(st, currency))
			return true
		}
	})
}

func homeState(st realtime.HomeState, currency string) gin.H {
	out := gin.H{
		"contactsReady":     st.ContactsReady,
		"transactionsReady": st.TransactionsReady,
	}
	if st.Summary != nil {
		out["summary"] = newHomeView(*st.Summary, currency)
	}
	return out
}

// GET /v1/contacts/:id/stream
func (s *Server) streamContact(c *gin.Context) {
	uid := userID(c)
	contactID := c.Param("id")
	view, err := s.views.WatchContact(viewKey(c, "contact:"+contactID), uid, contactID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	defer view.Close()

	ended, unsubscribe := signedOut(session(c))
	defer unsubscribe()
	currency := s.currency(c.Request.Context(), uid)

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-ended:
			c.SSEvent("end", gin.H{"reason": "signed_out"})
			return false
		case st, ok := <-view.States():
			if !ok {
				return false
			}
			if st.Err != nil {
				s.logger.Warn("Contact view read failed", zap.String("user_id", uid), zap.Error(st.Err))
				c.SSEvent("error", gin.H{"error": "snapshot_failed"})
				return true
			}
			payload := gin.H{"wasooliDate": wasooliView(st.WasooliDate, s.khata.Now(), s.khata.Location())}
			if st.Ledger != nil {
				payload["ledger"] = newLedgerView(*st.Ledger, currency)
			}
			c.SSEvent("state", payload)
			return true
		}
	})
}
