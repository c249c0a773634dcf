package directory

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const stationXML = `<?xml version="1.0" encoding="utf-8" ?>
<QRZDatabase version="1.34">
  <Callsign>
    <call>W1AW</call><fname>Hiram</fname><name>Maxim</name>
    <addr1>225 Main St</addr1><addr2>Newington</addr2><state>CT</state><zip>06111</zip>
    <country>United States</country><class>E</class><email>w1aw@arrl.org</email>
  </Callsign>
  <Session><Key>%s</Key></Session>
</QRZDatabase>`

func session(key, errMsg string) string {
	return fmt.Sprintf(`<QRZDatabase><Session><Key>%s</Key><Error>%s</Error></Session></QRZDatabase>`, key, errMsg)
}

type fakeQRZ struct {
	logins  atomic.Int32
	lookups atomic.Int32
	valid   atomic.Value // current session key
	missing bool
}

func (f *fakeQRZ) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	w.Header().Set("Content-Type", "text/xml")
	if u := q.Get("username"); u != "" {
		n := f.logins.Add(1)
		if q.Get("password") != "pw" {
			fmt.Fprint(w, session("", "Username/password incorrect"))
			return
		}
		key := fmt.Sprintf("key-%d", n)
		f.valid.Store(key)
		fmt.Fprint(w, session(key, ""))
		return
	}
	f.lookups.Add(1)
	if q.Get("s") != f.valid.Load() {
		fmt.Fprint(w, session("", "Session Timeout"))
		return
	}
	if f.missing {
		fmt.Fprint(w, session(q.Get("s"), "Not found: "+q.Get("callsign")))
		return
	}
	fmt.Fprintf(w, stationXML, q.Get("s"))
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second, "netcontrol-test", zap.NewNop())
}

func TestParseCredential(t *testing.T) {
	u, p, err := ParseCredential("w1aw:secret")
	require.NoError(t, err)
	assert.Equal(t, "w1aw", u)
	assert.Equal(t, "secret", p)

	u, p, err = ParseCredential(" w1aw ")
	require.NoError(t, err)
	assert.Equal(t, "w1aw", u)
	assert.Equal(t, "w1aw", p)

	_, _, err = ParseCredential("  ")
	assert.ErrorIs(t, err, ErrCredential)
}

func TestLookup_CachesSession(t *testing.T) {
	fake := &fakeQRZ{}
	c := newTestClient(t, fake)
	ctx := context.Background()

	st, err := c.Lookup(ctx, "w1aw", "op:pw")
	require.NoError(t, err)
	assert.Equal(t, &Station{
		Callsign: "W1AW", Name: "Hiram Maxim", Location: "Newington, CT", Address: "225 Main St",
		City: "Newington", State: "CT", Zip: "06111", Country: "United States", LicenseClass: "E", Email: "w1aw@arrl.org",
	}, st)

	_, err = c.Lookup(ctx, "w1aw", "op:pw")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.logins.Load())
	assert.Equal(t, int32(2), fake.lookups.Load())
}

func TestLookup_ExpiredSessionRetriesOnce(t *testing.T) {
	fake := &fakeQRZ{}
	c := newTestClient(t, fake)
	ctx := context.Background()
	_, err := c.Lookup(ctx, "W1AW", "op:pw")
	require.NoError(t, err)

	fake.valid.Store("rotated")
	st, err := c.Lookup(ctx, "W1AW", "op:pw")
	require.NoError(t, err)
	assert.Equal(t, "W1AW", st.Callsign)
	assert.Equal(t, int32(2), fake.logins.Load())
	assert.Equal(t, int32(3), fake.lookups.Load())
}

func TestLookup_NotFound(t *testing.T) {
	c := newTestClient(t, &fakeQRZ{missing: true})
	_, err := c.Lookup(context.Background(), "N0NE", "op:pw")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookup_BadLogin(t *testing.T) {
	c := newTestClient(t, &fakeQRZ{})
	_, err := c.Lookup(context.Background(), "W1AW", "op:wrong")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Empty(t, c.cached(credentialKey("op", "wrong")))
}

func TestLookup_ServerError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	_, err := c.Lookup(context.Background(), "W1AW", "op:pw")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestInvalidate(t *testing.T) {
	fake := &fakeQRZ{}
	c := newTestClient(t, fake)
	_, err := c.Lookup(context.Background(), "W1AW", "op:pw")
	require.NoError(t, err)
	c.Invalidate("op:pw")
	assert.Empty(t, c.cached(credentialKey("op", "pw")))
	_, err = c.Lookup(context.Background(), "W1AW", "op:pw")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.logins.Load())
}

func TestLookup_CachedSessionNeedsMatchingPassword(t *testing.T) {
	fake := &fakeQRZ{}
	c := newTestClient(t, fake)
	ctx := context.Background()

	_, err := c.Lookup(ctx, "W1AW", "op:pw")
	require.NoError(t, err)

	st, err := c.Lookup(ctx, "W1AW", "op:wrong-password")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Nil(t, st)
	assert.Equal(t, int32(2), fake.logins.Load())
	assert.Equal(t, int32(1), fake.lookups.Load())

	// the good credential keeps its own session
	_, err = c.Lookup(ctx, "W1AW", "op:pw")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.logins.Load())
}

func TestCredentialKey(t *testing.T) {
	assert.Equal(t, credentialKey("op", "pw"), credentialKey("op", "pw"))
	assert.NotEqual(t, credentialKey("op", "pw"), credentialKey("op", "pw2"))
	assert.NotEqual(t, credentialKey("op:", "pw"), credentialKey("op", ":pw"))
}
