package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docintake/constants"
	"github.com/joseph-ayodele/docintake/internal/common"
	"github.com/joseph-ayodele/docintake/internal/kv"
)

const DefaultUploadTokenTTL = 15 * time.Minute

// UploadSession is what a client declares before sending the bytes.
type UploadSession struct {
	OwnerUserID string `json:"owner_user_id"`
	AgencyID    string `json:"agency_id,omitempty"`
	BuildingID  string `json:"building_id,omitempty"`
	UnitID      string `json:"unit_id,omitempty"`
	Filename    string `json:"filename"`
	MIMEType    string `json:"mime_type"`
}

// Sessions issues one-shot upload tokens.
type Sessions struct {
	store kv.Store
	ttl   time.Duration
	now   func() time.Time
}

func NewSessions(store kv.Store, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = DefaultUploadTokenTTL
	}
	return &Sessions{store: kv.NewScoped(store, "upload"), ttl: ttl, now: time.Now}
}

// Issue validates the declared type up front and returns a token with its expiry.
func (s *Sessions) Issue(ctx context.Context, sess UploadSession) (string, time.Time, error) {
	if sess.OwnerUserID == "" {
		return "", time.Time{}, common.NewAppError(constants.ErrCodeForbidden, "missing user identity", common.ErrUnauthorized)
	}
	sess.MIMEType = constants.NormalizeMIME(sess.MIMEType)
	if sess.MIMEType == "" {
		sess.MIMEType = DetectMIME(sess.Filename, "", nil)
	}
	if !constants.IsAllowedMIME(sess.MIMEType) {
		return "", time.Time{}, common.NewAppError(constants.ErrCodeUnsupportedFileType,
			fmt.Sprintf("unsupported file type %q", sess.MIMEType), common.ErrUnsupportedFileType)
	}
	body, err := json.Marshal(sess)
	if err != nil {
		return "", time.Time{}, err
	}
	token := uuid.NewString()
	if err := s.store.Put(ctx, token, body, s.ttl); err != nil {
		return "", time.Time{}, fmt.Errorf("store upload session: %w", err)
	}
	return token, s.now().Add(s.ttl), nil
}

// Redeem consumes token. Unknown, expired and already-used tokens are all NOT_FOUND.
func (s *Sessions) Redeem(ctx context.Context, actor common.Actor, token string) (UploadSession, error) {
	var sess UploadSession
	body, err := s.store.Take(ctx, token)
	if errors.Is(err, kv.ErrNotFound) {
		return sess, common.NewAppError(constants.ErrCodeNotFound, "upload token is unknown, expired or already used", common.ErrNotFound)
	}
	if err != nil {
		return sess, fmt.Errorf("redeem upload session: %w", err)
	}
	if err := json.Unmarshal(body, &sess); err != nil {
		return sess, fmt.Errorf("decode upload session: %w", err)
	}
	if !actor.Owns(sess.OwnerUserID, sess.AgencyID) {
		return sess, common.NewAppError(constants.ErrCodeForbidden, "upload token belongs to another account", common.ErrForbidden)
	}
	return sess, nil
}
