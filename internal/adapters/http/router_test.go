package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattias800/snacka-sub010/internal/adapters/hub"
	"github.com/mattias800/snacka-sub010/internal/config"
	"github.com/mattias800/snacka-sub010/internal/domain"
	"github.com/mattias800/snacka-sub010/internal/tunnel"
	"github.com/mattias800/snacka-sub010/internal/voice"
)

type stubDir struct{}

func (stubDir) IsMember(c domain.CommunityID, u domain.UserID) bool {
	return c == "acme"
}

func (stubDir) HasAdminCapability(domain.CommunityID, domain.UserID) bool { return false }

func (stubDir) Channel(id domain.ChannelID) (domain.Channel, error) {
	if id == "general" {
		return domain.Channel{ID: id, CommunityID: "acme", Kind: domain.ChannelVoice}, nil
	}
	return domain.Channel{}, domain.ErrNotFound
}

func newTestRouter(t *testing.T) (http.Handler, *config.Config, *voice.Service) {
	t.Helper()
	cfg := &config.Config{
		Mode:      "release",
		Port:      8080,
		Secret:    "test-secret",
		PublicURL: "http://localhost:8080",
		TunnelTTL: time.Minute,
	}
	h := hub.New(func(domain.ChannelID) []domain.UserID { return nil })
	svc := voice.NewService(stubDir{}, h)
	proxy := tunnel.NewProxy()
	issuer := tunnel.NewIssuer(cfg.Secret, cfg.TunnelTTL, cfg.PublicURL)
	svc.SetProxyControl(proxy)
	svc.SetAccessIssuer(issuer)
	r := NewServer(t.Context(), cfg, h, svc, proxy, issuer).SetupRouter()
	return r, cfg, svc
}

func mintIdentity(t *testing.T, secret, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestHealthz(t *testing.T) {
	r, _, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestParticipantsRequiresIdentity(t *testing.T) {
	r, cfg, svc := newTestRouter(t)
	_, err := svc.Join("general", "alice")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/channels/general/participants", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/channels/general/participants", nil)
	req.Header.Set("Authorization", "Bearer "+mintIdentity(t, cfg.Secret, "bob"))
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alice")
}

func TestParticipantsRejectsForgedToken(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/channels/general/participants", nil)
	req.Header.Set("Authorization", "Bearer "+mintIdentity(t, "other-secret", "bob"))
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWSRequiresIdentity(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestFabricRequiresSharedKey(t *testing.T) {
	r, cfg, svc := newTestRouter(t)
	_, err := svc.Join("general", "alice")
	require.NoError(t, err)

	body := `{"channel":"general","user":"alice","kind":"microphone","stream_id":"ssrc-1"}`

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/fabric/streams", strings.NewReader(body))
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/fabric/streams", strings.NewReader(body))
	req.Header.Set("X-Fabric-Key", cfg.Secret)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, svc.StreamSnapshot("general"), 1)
}
