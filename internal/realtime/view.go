package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"khata-ledger-go/internal/ledger"
	"khata-ledger-go/internal/models"
	"khata-ledger-go/internal/store"
)

// lifecycle is shared by every view: a cancelable context for its streams
// and a loop that closes done when it returns.
type lifecycle struct {
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
	streams []*stream
	onClose func()
}

// Close stops the view and releases its feed subscriptions. Calling it more
// than once is a no-op.
func (l *lifecycle) Close() {
	l.once.Do(func() {
		l.cancel()
		for _, s := range l.streams {
			s.close()
		}
		<-l.done
		if l.onClose != nil {
			l.onClose()
		}
	})
}

// Done is closed once the view has stopped.
func (l *lifecycle) Done() <-chan struct{} { return l.done }

// HomeState is one emission of the home view. When Err is set Summary is nil,
// so a failed read never shows as a stale balance.
type HomeState struct {
	Summary           *ledger.Summary `json:"summary,omitempty"`
	ContactsReady     bool            `json:"contactsReady"`
	TransactionsReady bool            `json:"transactionsReady"`
	Err               error           `json:"-"`
}

type HomeView struct {
	lifecycle
	states chan HomeState
}

// States delivers the most recent state; intermediate states may be skipped.
// The channel is closed when the view stops.
func (v *HomeView) States() <-chan HomeState { return v.states }

func (v *HomeView) loop(ctx context.Context, contacts, transactions *stream) {
	defer close(v.done)
	defer close(v.states)

	var (
		contactDocs, txDocs []store.Document
		contactErr, txErr   error
		st                  HomeState
	)
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-contacts.out:
			contactDocs, contactErr = snap.docs, snap.err
			st.ContactsReady = st.ContactsReady || snap.err == nil
		case snap := <-transactions.out:
			txDocs, txErr = snap.docs, snap.err
			st.TransactionsReady = st.TransactionsReady || snap.err == nil
		}

		next := HomeState{ContactsReady: st.ContactsReady, TransactionsReady: st.TransactionsReady}
		switch {
		case txErr != nil || contactErr != nil:
			next.Err = errors.Join(txErr, contactErr)
		case !st.TransactionsReady:
			// Nothing to fold yet.
			continue
		default:
			sum := ledger.Summarize(txDocs, contactDocs, st.ContactsReady)
			next.Summary = &sum
		}
		st = next
		latest(v.states, next)
	}
}

// ContactState is one emission of a contact view.
type ContactState struct {
	Ledger      *ledger.ContactLedger `json:"ledger,omitempty"`
	WasooliDate *time.Time            `json:"wasooliDate,omitempty"`
	Err         error                 `json:"-"`
}

type ContactView struct {
	lifecycle
	contactID string
	states    chan ContactState
}

func (v *ContactView) States() <-chan ContactState { return v.states }

func (v *ContactView) loop(ctx context.Context, contact, transactions, wasooli *stream, logger *zap.Logger) {
	defer close(v.done)
	defer close(v.states)

	var (
		contactDocs, txDocs, wasooliDocs []store.Document
		errs                             [3]error
		txReady                          bool
	)
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-contact.out:
			contactDocs, errs[0] = snap.docs, snap.err
		case snap := <-transactions.out:
			txDocs, errs[1] = snap.docs, snap.err
			txReady = txReady || snap.err == nil
		case snap := <-wasooli.out:
			wasooliDocs, errs[2] = snap.docs, snap.err
		}

		if err := errors.Join(errs[:]...); err != nil {
			latest(v.states, ContactState{Err: err})
			continue
		}
		if !txReady {
			continue
		}

		entries, skipped := ledger.DecodeEntries(txDocs)
		var c *models.Contact
		if len(contactDocs) > 0 {
			if decoded, err := ledger.DecodeContact(contactDocs[0]); err == nil {
				c = &decoded
			}
		}
		l := ledger.Detail(v.contactID, entries, c)
		l.Skipped = skipped

		next := ContactState{Ledger: &l}
		if len(wasooliDocs) > 0 {
			var w models.WasooliDate
			if err := wasooliDocs[0].Decode(&w); err != nil {
				logger.Warn("Ignoring unreadable wasooli date", zap.String("id", wasooliDocs[0].ID), zap.Error(err))
			} else {
				next.WasooliDate = w.Date
			}
		}
		latest(v.states, next)
	}
}
