package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiergate/tiergate/internal/catalog"
	"github.com/tiergate/tiergate/internal/handler/dto"
	"github.com/tiergate/tiergate/internal/model"
	"github.com/tiergate/tiergate/internal/repository"
	"github.com/tiergate/tiergate/internal/service"
)

type stubOverrideStore struct {
	upserted     *model.UserRecord
	banExpiry    *time.Time
	accessExpiry *time.Time
	clearErr     error
	cleared      []string
}

func (s *stubOverrideStore) UpsertVerification(ctx context.Context, userID, email string, tiers []string, verifiedAt time.Time, grantedBy string) (*model.UserRecord, error) {
	rec := &model.UserRecord{
		UserID:     userID,
		Email:      email,
		Tiers:      tiers,
		VerifiedAt: verifiedAt,
		GrantedBy:  grantedBy,
	}
	s.upserted = rec
	return rec, nil
}

func (s *stubOverrideStore) SetBan(ctx context.Context, userID string, expiry time.Time) error {
	s.banExpiry = &expiry
	return nil
}

func (s *stubOverrideStore) ClearBan(ctx context.Context, userID string) error {
	if s.clearErr != nil {
		return s.clearErr
	}
	s.cleared = append(s.cleared, userID)
	return nil
}

func (s *stubOverrideStore) SetTempAccess(ctx context.Context, userID string, expiry time.Time) error {
	s.accessExpiry = &expiry
	return nil
}

type stubSettings struct {
	values map[string]string
}

func (s *stubSettings) GetSetting(ctx context.Context, key string) (string, error) {
	v, ok := s.values[key]
	if !ok {
		return "", repository.ErrSettingNotFound
	}
	return v, nil
}

func (s *stubSettings) SetSetting(ctx context.Context, key, value string) error {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	return nil
}

type adminFixture struct {
	store    *stubOverrideStore
	settings *stubSettings
	handler  *AdminHandler
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()

	cat, err := catalog.Parse([]byte(handlerCatalogYAML))
	require.NoError(t, err)

	f := &adminFixture{
		store:    &stubOverrideStore{},
		settings: &stubSettings{},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewAdminService(f.store, f.settings, cat, stubAudit{}, logger)
	f.handler = NewAdminHandler(svc, logger)
	return f
}

func TestAdminGrant_Success(t *testing.T) {
	f := newAdminFixture(t)

	rec := doJSON(t, f.handler.Grant, http.MethodPost, "/api/v1/admin/grants", dto.GrantRequest{
		ActorID: "admin-1",
		UserID:  "user-1",
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.VerifyResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "user-1", resp.UserID)
	assert.Equal(t, []string{"Apprentice", "Mage"}, resp.Tiers)

	require.NotNil(t, f.store.upserted)
	assert.Equal(t, model.EmailAdminGranted, f.store.upserted.Email)
	assert.Equal(t, "admin-1", f.store.upserted.GrantedBy)
}

func TestAdminGrant_MissingUserID(t *testing.T) {
	f := newAdminFixture(t)

	rec := doJSON(t, f.handler.Grant, http.MethodPost, "/api/v1/admin/grants", dto.GrantRequest{
		ActorID: "admin-1",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_USER_ID", decodeError(t, rec).Code)
}

func TestAdminTempAccess_Success(t *testing.T) {
	f := newAdminFixture(t)

	rec := doJSON(t, f.handler.TempAccess, http.MethodPost, "/api/v1/admin/temp-access", dto.DurationGrantRequest{
		ActorID: "admin-1",
		UserID:  "user-1",
		Days:    7,
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.ExpiryResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "user-1", resp.UserID)
	assert.WithinDuration(t, time.Now().UTC().AddDate(0, 0, 7), resp.Expiry, time.Minute)

	require.NotNil(t, f.store.accessExpiry)
}

func TestAdminTempAccess_RejectsNonPositiveDays(t *testing.T) {
	f := newAdminFixture(t)

	for _, days := range []int{0, -1, -30} {
		rec := doJSON(t, f.handler.TempAccess, http.MethodPost, "/api/v1/admin/temp-access", dto.DurationGrantRequest{
			ActorID: "admin-1",
			UserID:  "user-1",
			Days:    days,
		})

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_DURATION", decodeError(t, rec).Code)
	}

	assert.Nil(t, f.store.accessExpiry)
}

func TestAdminBan_Success(t *testing.T) {
	f := newAdminFixture(t)

	rec := doJSON(t, f.handler.Ban, http.MethodPost, "/api/v1/admin/bans", dto.DurationGrantRequest{
		ActorID: "admin-1",
		UserID:  "user-1",
		Days:    3,
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.ExpiryResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.WithinDuration(t, time.Now().UTC().AddDate(0, 0, 3), resp.Expiry, time.Minute)

	require.NotNil(t, f.store.banExpiry)
}

func TestAdminUnban_Success(t *testing.T) {
	f := newAdminFixture(t)

	r := chi.NewRouter()
	r.Delete("/api/v1/admin/bans/{user_id}", f.handler.Unban)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/admin/bans/user-1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"user-1"}, f.store.cleared)
}

func TestAdminUnban_NotFound(t *testing.T) {
	f := newAdminFixture(t)
	f.store.clearErr = repository.ErrUserNotFound

	r := chi.NewRouter()
	r.Delete("/api/v1/admin/bans/{user_id}", f.handler.Unban)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/admin/bans/user-1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "USER_NOT_FOUND", decodeError(t, rec).Code)
}

func TestAdminSetLogChannel_Success(t *testing.T) {
	f := newAdminFixture(t)

	rec := doJSON(t, f.handler.SetLogChannel, http.MethodPut, "/api/v1/admin/log-channel", dto.LogChannelRequest{
		ActorID:   "admin-1",
		ChannelID: "chan-42",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "chan-42", f.settings.values[repository.SettingLogChannel])
}

func TestAdminSetLogChannel_RejectsEmpty(t *testing.T) {
	f := newAdminFixture(t)

	rec := doJSON(t, f.handler.SetLogChannel, http.MethodPut, "/api/v1/admin/log-channel", dto.LogChannelRequest{
		ActorID:   "admin-1",
		ChannelID: "   ",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_CHANNEL_ID", decodeError(t, rec).Code)
	assert.Empty(t, f.settings.values)
}

func TestAdminGrant_InvalidJSON(t *testing.T) {
	f := newAdminFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/grants", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	f.handler.Grant(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_JSON", decodeError(t, rec).Code)
}
