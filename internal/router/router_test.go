package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/netcontrolapp/netcontrol/internal/captcha"
	"github.com/netcontrolapp/netcontrol/internal/config"
	"github.com/netcontrolapp/netcontrol/internal/directory"
	"github.com/netcontrolapp/netcontrol/internal/handler"
	"github.com/netcontrolapp/netcontrol/internal/middleware"
	"github.com/netcontrolapp/netcontrol/internal/service"
	"github.com/netcontrolapp/netcontrol/internal/testutil"
)

const jwtSecret = "router-test-secret"

type fakeDirectory struct {
	station *directory.Station
	err     error
	cred    string
}

func (f *fakeDirectory) Lookup(_ context.Context, callsign, credential string) (*directory.Station, error) {
	f.cred = credential
	if f.err != nil {
		return nil, f.err
	}
	st := *f.station
	st.Callsign = callsign
	return &st, nil
}

type okPinger struct{ err error }

func (p okPinger) PingContext(context.Context) error { return p.err }

type server struct {
	e      *echo.Echo
	nets   *testutil.NetOperations
	files  *testutil.MemFiles
	events *testutil.Events
	dir    *fakeDirectory
}

func newServer(t *testing.T) *server {
	t.Helper()
	log := zap.NewNop()
	s := &server{
		nets:   testutil.NewNetOperations(),
		files:  testutil.NewMemFiles(),
		events: &testutil.Events{},
		dir:    &fakeDirectory{station: &directory.Station{Name: "Hiram Maxim", Location: "Newington, CT"}},
	}
	accountStore, settingsStore, tokens := testutil.NewAccounts(), testutil.NewSettings(), testutil.NewTokens()

	accounts := service.NewAccountService(accountStore, settingsStore, tokens, bcrypt.MinCost, log)
	sessions := service.NewSessionService(accounts, tokens, jwtSecret, time.Minute, time.Hour, log)
	settings := service.NewSettingsService(settingsStore, s.files, 1<<20, log)
	nets := service.NewNetOperationService(s.nets, s.events, log)
	reports := service.NewReportService(s.nets, accountStore, settings, log)

	e := echo.New()
	e.Validator = handler.NewValidator()
	guard := Guard{JWTSecret: jwtSecret, Accounts: accounts, Log: log}
	reportHandler := handler.NewReportHandler(reports, log)

	RegisterRoutes(e, okPinger{})
	RegisterAuth(e, handler.NewAuthHandler(accounts, sessions, captcha.NewVerifier("http://127.0.0.1:1", "", log), jwtSecret, log),
		guard, middleware.NewTokenBucket(config.RateLimitConfig{}, nil, log))
	RegisterNetOperations(e, handler.NewNetOperationHandler(nets, log), reportHandler,
		handler.NewLookupHandler(settings, s.dir, log), guard, middleware.NewRedisCache(config.CacheConfig{}, nil))
	RegisterSettings(e, handler.NewSettingsHandler(settings, s.files, 1<<20, log), guard)
	RegisterAdmin(e, handler.NewUserHandler(accounts, log), reportHandler, guard)
	s.e = e
	return s
}

func (s *server) call(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

type authBody struct {
	User struct {
		ID        uint64 `json:"id"`
		Role      string `json:"role"`
		IsEnabled bool   `json:"isEnabled"`
	} `json:"user"`
	Access struct {
		Token string `json:"token"`
	} `json:"access"`
	Refresh *struct {
		Token string `json:"token"`
	} `json:"refresh"`
}

func registerBody(username, callsign string) map[string]string {
	return map[string]string{
		"username": username, "callsign": callsign,
		"email": username + "@example.com", "password": "secret1",
	}
}

// admin registers the bootstrap admin and returns its access token.
func (s *server) admin(t *testing.T) (uint64, string) {
	t.Helper()
	rec := s.call(t, http.MethodPost, "/api/auth/register", "", registerBody("alice", "w1aw"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out authBody
	decode(t, rec, &out)
	require.Equal(t, "admin", out.User.Role)
	return out.User.ID, out.Access.Token
}

// operator registers and approves an operator and returns its token.
func (s *server) operator(t *testing.T, adminToken, username, callsign string) (uint64, string) {
	t.Helper()
	rec := s.call(t, http.MethodPost, "/api/auth/register", "", registerBody(username, callsign))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var reg authBody
	decode(t, rec, &reg)

	rec = s.call(t, http.MethodPut, "/api/users/"+strconv.FormatUint(reg.User.ID, 10)+"/enabled", adminToken, map[string]bool{"isEnabled": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.call(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": username, "password": "secret1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out authBody
	decode(t, rec, &out)
	return out.User.ID, out.Access.Token
}

func TestHealthAndReady(t *testing.T) {
	s := newServer(t)
	rec := s.call(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	assert.Equal(t, http.StatusOK, s.call(t, http.MethodGet, "/readyz", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.call(t, http.MethodGet, "/metrics", "", nil).Code)
}

func TestRegistrationApprovalFlow(t *testing.T) {
	s := newServer(t)
	adminID, adminToken := s.admin(t)

	rec := s.call(t, http.MethodPost, "/api/auth/register", "", registerBody("bob", "k2bob"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var reg authBody
	decode(t, rec, &reg)
	assert.Equal(t, "operator", reg.User.Role)
	assert.False(t, reg.User.IsEnabled)
	assert.Empty(t, reg.Access.Token)

	rec = s.call(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "bob", "password": "secret1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"account pending approval","code":"pending_approval"}`, rec.Body.String())

	rec = s.call(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "bob", "password": "wrong!!"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.call(t, http.MethodPut, "/api/users/"+strconv.FormatUint(adminID, 10)+"/enabled", adminToken, map[string]bool{"isEnabled": false})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	_, carolToken := s.operator(t, adminToken, "carol", "n3car")
	rec = s.call(t, http.MethodGet, "/api/auth/me", carolToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"callsign":"N3CAR"`)

	rec = s.call(t, http.MethodGet, "/api/users", carolToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRegisterValidationDetails(t *testing.T) {
	s := newServer(t)
	rec := s.call(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "a", "callsign": "not a call", "email": "nope", "password": "123",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var out struct {
		Error   string `json:"error"`
		Details []struct {
			Field string `json:"field"`
		} `json:"details"`
	}
	decode(t, rec, &out)
	assert.Equal(t, "validation failed", out.Error)
	var fields []string
	for _, d := range out.Details {
		fields = append(fields, d.Field)
	}
	assert.ElementsMatch(t, []string{"username", "callsign", "email", "password"}, fields)
}

func TestDuplicateCallsignConflict(t *testing.T) {
	s := newServer(t)
	s.admin(t)
	rec := s.call(t, http.MethodPost, "/api/auth/register", "", registerBody("other", "W1AW"))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRefreshAndLogout(t *testing.T) {
	s := newServer(t)
	rec := s.call(t, http.MethodPost, "/api/auth/register", "", registerBody("alice", "w1aw"))
	var first authBody
	decode(t, rec, &first)
	require.NotNil(t, first.Refresh)

	rec = s.call(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": first.Refresh.Token})
	require.Equal(t, http.StatusOK, rec.Code)
	var second authBody
	decode(t, rec, &second)
	require.NotNil(t, second.Refresh)

	rec = s.call(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": first.Refresh.Token})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.call(t, http.MethodPost, "/api/auth/refresh-access", "", map[string]string{"refresh_token": second.Refresh.Token})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"access"`)

	rec = s.call(t, http.MethodPost, "/api/auth/logout", "", map[string]string{"refresh_token": second.Refresh.Token})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.call(t, http.MethodPost, "/api/auth/refresh-access", "", map[string]string{"refresh_token": second.Refresh.Token})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.call(t, http.MethodPost, "/api/auth/logout", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogoutWithBearer(t *testing.T) {
	s := newServer(t)
	rec := s.call(t, http.MethodPost, "/api/auth/register", "", registerBody("alice", "w1aw"))
	var body authBody
	decode(t, rec, &body)
	require.NotNil(t, body.Refresh)

	// bearer tokens without exp are not accepted as proof of identity
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": body.User.ID}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	rec = s.call(t, http.MethodPost, "/api/auth/logout", noExp, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.call(t, http.MethodPost, "/api/auth/refresh-access", "", map[string]string{"refresh_token": body.Refresh.Token})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.call(t, http.MethodPost, "/api/auth/logout", body.Access.Token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.call(t, http.MethodPost, "/api/auth/refresh-access", "", map[string]string{"refresh_token": body.Refresh.Token})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	s := newServer(t)
	assert.Equal(t, http.StatusUnauthorized, s.call(t, http.MethodGet, "/api/net-operations", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.call(t, http.MethodGet, "/api/net-operations", "garbage", nil).Code)
}

type netBody struct {
	ID       uint64 `json:"id"`
	NetName  string `json:"netName"`
	Status   string `json:"status"`
	CheckIns []struct {
		ID        string `json:"id"`
		Callsign  string `json:"callsign"`
		Notes     string `json:"notes"`
		Commented bool   `json:"commented"`
	} `json:"checkIns"`
}

func TestNetLifecycle(t *testing.T) {
	s := newServer(t)
	_, adminToken := s.admin(t)
	_, opToken := s.operator(t, adminToken, "bob", "k2bob")
	_, otherToken := s.operator(t, adminToken, "carol", "n3car")

	rec := s.call(t, http.MethodPost, "/api/net-operations", opToken, map[string]string{"frequency": "146.520", "notes": "<b>weekly</b>"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var op netBody
	decode(t, rec, &op)
	assert.Equal(t, "active", op.Status)
	assert.Equal(t, "York County Amateur Radio Society Net", op.NetName)
	base := "/api/net-operations/" + strconv.FormatUint(op.ID, 10)

	rec = s.call(t, http.MethodPost, base+"/checkins", opToken, map[string]any{
		"callsign": "w1aw", "name": "Hiram", "stayingForComments": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decode(t, rec, &op)
	require.Len(t, op.CheckIns, 1)
	assert.Equal(t, "W1AW", op.CheckIns[0].Callsign)
	ciPath := base + "/checkins/" + op.CheckIns[0].ID

	rec = s.call(t, http.MethodPost, base+"/checkins", otherToken, map[string]any{"callsign": "n3car", "name": "Carol"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.call(t, http.MethodPut, ciPath+"/notes", opToken, map[string]string{"notes": "signal 5/9"})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &op)
	assert.Equal(t, "signal 5/9", op.CheckIns[0].Notes)

	rec = s.call(t, http.MethodPut, ciPath+"/commented", opToken, map[string]bool{"commented": true})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &op)
	assert.True(t, op.CheckIns[0].Commented)

	rec = s.call(t, http.MethodPut, base+"/start", opToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.call(t, http.MethodPut, base+"/complete", otherToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.call(t, http.MethodPut, base+"/complete", opToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &op)
	assert.Equal(t, "completed", op.Status)

	rec = s.call(t, http.MethodPut, base+"/complete", opToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.call(t, http.MethodPut, base, adminToken, map[string]any{"netName": "Renamed", "status": "active"})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &op)
	assert.Equal(t, "Renamed", op.NetName)
	assert.Equal(t, "completed", op.Status)

	rec = s.call(t, http.MethodDelete, ciPath, opToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &op)
	assert.Empty(t, op.CheckIns)

	rec = s.call(t, http.MethodGet, base, otherToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusForbidden, s.call(t, http.MethodDelete, base, otherToken, nil).Code)
	assert.Equal(t, http.StatusOK, s.call(t, http.MethodDelete, base, opToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.call(t, http.MethodGet, base, opToken, nil).Code)

	assert.Equal(t, []string{"net.completed"}, s.events.Types())
}

func TestMalformedIdentifiersRejected(t *testing.T) {
	s := newServer(t)
	_, token := s.admin(t)
	for _, path := range []string{"/api/net-operations/abc", "/api/net-operations/0", "/api/net-operations/-1"} {
		rec := s.call(t, http.MethodGet, path, token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
	assert.Equal(t, http.StatusBadRequest, s.call(t, http.MethodDelete, "/api/users/x", token, nil).Code)
}

func TestScheduleAndStart(t *testing.T) {
	s := newServer(t)
	_, token := s.admin(t)

	start := time.Date(2030, 1, 6, 19, 0, 0, 0, time.UTC)
	rec := s.call(t, http.MethodPost, "/api/net-operations/schedule", token, map[string]any{
		"netName": "Sunday Net", "startTime": start.Format(time.RFC3339), "recurrence": "weekly",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		Created    int       `json:"created"`
		Expected   int       `json:"expected"`
		Partial    bool      `json:"partial"`
		Operations []netBody `json:"operations"`
	}
	decode(t, rec, &out)
	assert.False(t, out.Partial)
	assert.Equal(t, out.Expected, out.Created)
	assert.Greater(t, out.Created, 1)
	assert.Equal(t, out.Created, s.nets.Len())

	path := "/api/net-operations/" + strconv.FormatUint(out.Operations[0].ID, 10)
	rec = s.call(t, http.MethodPut, path+"/start", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var op netBody
	decode(t, rec, &op)
	assert.Equal(t, "active", op.Status)

	rec = s.call(t, http.MethodGet, "/api/net-operations?status=scheduled", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []netBody
	decode(t, rec, &list)
	assert.Len(t, list, out.Created-1)

	rec = s.call(t, http.MethodPost, "/api/net-operations/schedule", token, map[string]any{"netName": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.call(t, http.MethodPost, "/api/net-operations/schedule", token, map[string]any{
		"netName": "Local Net", "startTime": "2030-03-04T20:30",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var local struct {
		Operations []struct {
			StartTime time.Time `json:"startTime"`
		} `json:"operations"`
	}
	decode(t, rec, &local)
	require.Len(t, local.Operations, 1)
	assert.True(t, time.Date(2030, 3, 4, 20, 30, 0, 0, time.UTC).Equal(local.Operations[0].StartTime))

	rec = s.call(t, http.MethodPost, "/api/net-operations/schedule", token, map[string]any{
		"netName": "x", "startTime": "next tuesday",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var bad struct {
		Details []struct {
			Field string `json:"field"`
		} `json:"details"`
	}
	decode(t, rec, &bad)
	require.Len(t, bad.Details, 1)
	assert.Equal(t, "startTime", bad.Details[0].Field)

	rec = s.call(t, http.MethodPost, "/api/net-operations/schedule", token, map[string]any{
		"startTime": start.Format(time.RFC3339), "recurrence": "yearly",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.call(t, http.MethodGet, "/api/net-operations?startDate=2030-02-01&endDate=2030-01-01", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckInValidation(t *testing.T) {
	s := newServer(t)
	_, token := s.admin(t)
	rec := s.call(t, http.MethodPost, "/api/net-operations", token, map[string]string{})
	var op netBody
	decode(t, rec, &op)

	rec = s.call(t, http.MethodPost, "/api/net-operations/"+strconv.FormatUint(op.ID, 10)+"/checkins", token, map[string]any{
		"callsign": "??", "name": "",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"callsign"`)
	assert.Contains(t, rec.Body.String(), `"field":"name"`)

	rec = s.call(t, http.MethodPut, "/api/net-operations/"+strconv.FormatUint(op.ID, 10)+"/checkins/missing/notes", token, map[string]string{"notes": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReports(t *testing.T) {
	s := newServer(t)
	_, adminToken := s.admin(t)
	opID, opToken := s.operator(t, adminToken, "bob", "k2bob")

	rec := s.call(t, http.MethodPost, "/api/users/reports/generate", adminToken, map[string]any{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"No operations found matching the criteria"}`, rec.Body.String())

	rec = s.call(t, http.MethodPost, "/api/net-operations", opToken, map[string]string{"netName": "Evening Net"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var op netBody
	decode(t, rec, &op)

	rec = s.call(t, http.MethodPost, "/api/users/reports/generate", opToken, map[string]any{})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.call(t, http.MethodPost, "/api/users/reports/generate", adminToken, map[string]any{"operatorId": opID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get(echo.HeaderContentType))
	assert.True(t, strings.HasPrefix(rec.Header().Get(echo.HeaderContentDisposition), `attachment; filename="net-operations-report-`))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = s.call(t, http.MethodPost, "/api/users/reports/generate", adminToken, map[string]any{
		"operatorId": strconv.FormatUint(opID, 10), "format": "xlsx",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), ".xlsx")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	rec = s.call(t, http.MethodPost, "/api/users/reports/generate", adminToken, map[string]any{"format": "csv"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.call(t, http.MethodPost, "/api/users/reports/generate", adminToken, map[string]any{"operatorId": 999})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.call(t, http.MethodGet, "/api/net-operations/"+strconv.FormatUint(op.ID, 10)+"/pdf", opToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "net-operation-"+strconv.FormatUint(op.ID, 10))

	assert.Equal(t, http.StatusNotFound, s.call(t, http.MethodGet, "/api/net-operations/999/pdf", opToken, nil).Code)
}

func TestLookup(t *testing.T) {
	s := newServer(t)
	_, token := s.admin(t)

	rec := s.call(t, http.MethodGet, "/api/net-operations/lookup/w1aw", token, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "QRZ credentials are not configured in settings")

	rec = s.call(t, http.MethodPut, "/api/settings", token, map[string]string{"qrzApiKey": "alice:pw"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.call(t, http.MethodGet, "/api/net-operations/lookup/w1aw", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"callsign":"W1AW"`)
	assert.Equal(t, "alice:pw", s.dir.cred)

	s.dir.err = directory.ErrNotFound
	assert.Equal(t, http.StatusNotFound, s.call(t, http.MethodGet, "/api/net-operations/lookup/w1aw", token, nil).Code)

	s.dir.err = errors.Join(directory.ErrUpstream, errors.New("timeout"))
	rec = s.call(t, http.MethodGet, "/api/net-operations/lookup/w1aw", token, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "manually")

	assert.Equal(t, http.StatusBadRequest, s.call(t, http.MethodGet, "/api/net-operations/lookup/a!", token, nil).Code)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func (s *server) upload(t *testing.T, token, filename, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="logo"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/settings/logo", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func TestLogoUploadAndServe(t *testing.T) {
	s := newServer(t)
	_, token := s.admin(t)

	rec := s.upload(t, token, "club.png", "image/png", pngBytes(t))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Logo string `json:"logo"`
	}
	decode(t, rec, &out)
	assert.True(t, strings.HasPrefix(out.Logo, "/uploads/logo-"))
	assert.True(t, strings.HasSuffix(out.Logo, ".png"))

	rec = s.call(t, http.MethodGet, out.Logo, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))

	rec = s.upload(t, token, "second.png", "image/png", pngBytes(t))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, s.files.Len())
	assert.Equal(t, http.StatusNotFound, s.call(t, http.MethodGet, out.Logo, "", nil).Code)

	rec = s.upload(t, token, "notes.txt", "text/plain", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.upload(t, token, "huge.png", "image/png", make([]byte, 2<<20))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusOK, s.call(t, http.MethodDelete, "/api/settings/logo", token, nil).Code)
	assert.Equal(t, 0, s.files.Len())
}

func TestSettingsValidation(t *testing.T) {
	s := newServer(t)
	_, token := s.admin(t)

	rec := s.call(t, http.MethodGet, "/api/settings", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"theme":"light"`)

	rec = s.call(t, http.MethodPut, "/api/settings", token, map[string]string{"theme": "neon"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.call(t, http.MethodPut, "/api/settings", token, map[string]string{"theme": "dark"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"theme":"dark"`)
}

func TestUserAdministration(t *testing.T) {
	s := newServer(t)
	adminID, token := s.admin(t)

	rec := s.call(t, http.MethodPost, "/api/users", token, map[string]any{
		"username": "dave", "callsign": "kd4ve", "email": "dave@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var dave struct {
		ID        uint64 `json:"id"`
		Role      string `json:"role"`
		IsEnabled bool   `json:"isEnabled"`
	}
	decode(t, rec, &dave)
	assert.Equal(t, "operator", dave.Role)
	assert.True(t, dave.IsEnabled)
	davePath := "/api/users/" + strconv.FormatUint(dave.ID, 10)

	rec = s.call(t, http.MethodPut, davePath+"/role", token, map[string]string{"role": "admin"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"role":"admin"`)

	rec = s.call(t, http.MethodPut, davePath+"/role", token, map[string]string{"role": "root"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.call(t, http.MethodPut, davePath, token, map[string]string{"callsign": "w1aw"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.call(t, http.MethodPut, davePath+"/reset-password", token, map[string]string{"password": "another1"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.call(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "dave", "password": "another1"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.call(t, http.MethodGet, "/api/users", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	decode(t, rec, &list)
	assert.Len(t, list, 2)
	assert.NotContains(t, rec.Body.String(), "password")

	assert.Equal(t, http.StatusForbidden, s.call(t, http.MethodDelete, "/api/users/"+strconv.FormatUint(adminID, 10), token, nil).Code)
	assert.Equal(t, http.StatusOK, s.call(t, http.MethodDelete, davePath, token, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.call(t, http.MethodDelete, davePath, token, nil).Code)
}

func TestChangePassword(t *testing.T) {
	s := newServer(t)
	_, token := s.admin(t)

	rec := s.call(t, http.MethodPut, "/api/auth/password", token, map[string]string{"currentPassword": "bad", "newPassword": "another1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.call(t, http.MethodPut, "/api/auth/password", token, map[string]string{"currentPassword": "secret1", "newPassword": "another1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.call(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "alice", "password": "another1"})
	assert.Equal(t, http.StatusOK, rec.Code)
}
