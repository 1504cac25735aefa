package flow

import (
	"context"
	"fmt"
	"time"

	"loan-funnel-workers/internal/draft"
	"loan-funnel-workers/internal/models"
)

// Session is the explicit state of one application moving through a flow.
type Session struct {
	ApplicationID string          `json:"applicationId"`
	Flow          string          `json:"flow"`
	Current       string          `json:"current"`
	Visited       []string        `json:"visited"`
	EnteredAt     time.Time       `json:"enteredAt"`
	Gates         map[string]bool `json:"gates"`
	StartedAt     time.Time       `json:"startedAt"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
}

func (s *Session) Completed() bool { return s.CompletedAt != nil }

// SessionStore keeps sessions in the draft store under the reserved key,
// inside the application's own scope.
type SessionStore struct {
	drafts draft.Store
}

func NewSessionStore(drafts draft.Store) *SessionStore {
	return &SessionStore{drafts: drafts}
}

func (s *SessionStore) Load(ctx context.Context, applicationID string) (*Session, bool, error) {
	d, found, err := s.drafts.Load(ctx, applicationID, models.KeySession)
	if err != nil || !found {
		return nil, false, err
	}
	var sess Session
	if err := d.Bind(&sess); err != nil {
		return nil, false, fmt.Errorf("%w: session %s: %v", draft.ErrCorruptDraft, applicationID, err)
	}
	if sess.Gates == nil {
		sess.Gates = map[string]bool{}
	}
	return &sess, true, nil
}

func (s *SessionStore) Save(ctx context.Context, sess *Session) error {
	d, err := draft.FromStruct(sess)
	if err != nil {
		return err
	}
	return s.drafts.Save(ctx, sess.ApplicationID, models.KeySession, d)
}
