// Package directory looks up amateur radio callsigns in the QRZ XML
// database. Sessions are cached per credential inside the Client.
package directory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when the directory has no record for a callsign.
	ErrNotFound = errors.New("callsign not found")
	// ErrUpstream wraps every failure talking to the directory service.
	ErrUpstream = errors.New("directory service unavailable")
	// ErrCredential is returned for an empty credential.
	ErrCredential = errors.New("directory credential is empty")
)

// Station is the identity record returned for a callsign.
type Station struct {
	Callsign     string `json:"callsign"`
	Name         string `json:"name"`
	Location     string `json:"location"`
	Address      string `json:"address"`
	City         string `json:"city"`
	State        string `json:"state"`
	Zip          string `json:"zip"`
	Country      string `json:"country"`
	LicenseClass string `json:"license_class"`
	Email        string `json:"email"`
}

type qrzDatabase struct {
	XMLName  xml.Name     `xml:"QRZDatabase"`
	Callsign *qrzCallsign `xml:"Callsign"`
	Session  qrzSession   `xml:"Session"`
}

type qrzCallsign struct {
	Call    string `xml:"call"`
	FName   string `xml:"fname"`
	Name    string `xml:"name"`
	Addr1   string `xml:"addr1"`
	Addr2   string `xml:"addr2"`
	State   string `xml:"state"`
	Zip     string `xml:"zip"`
	Country string `xml:"country"`
	Class   string `xml:"class"`
	Email   string `xml:"email"`
}

type qrzSession struct {
	Key     string `xml:"Key"`
	Error   string `xml:"Error"`
	Message string `xml:"Message"`
}

// Client talks to the directory service. It is safe for concurrent use.
type Client struct {
	http  *resty.Client
	agent string
	log   *zap.Logger

	mu       sync.Mutex
	sessions map[string]string // credential digest -> session key
}

func NewClient(baseURL string, timeout time.Duration, agent string, log *zap.Logger) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/xml, text/xml")
	return &Client{http: http, agent: agent, log: log, sessions: map[string]string{}}
}

// ParseCredential splits "username:password". A bare username is used as
// both.
func ParseCredential(cred string) (username, password string, err error) {
	cred = strings.TrimSpace(cred)
	if cred == "" {
		return "", "", ErrCredential
	}
	if u, p, ok := strings.Cut(cred, ":"); ok {
		return u, p, nil
	}
	return cred, cred, nil
}

// credentialKey identifies a cached session. The password is part of the
// key so a session is only reused by a caller holding the same password.
func credentialKey(username, password string) string {
	sum := sha256.Sum256([]byte(username + "\x00" + password))
	return hex.EncodeToString(sum[:])
}

// Invalidate drops the cached session opened with credential.
func (c *Client) Invalidate(credential string) {
	username, password, err := ParseCredential(credential)
	if err != nil {
		return
	}
	c.forget(credentialKey(username, password))
}

func (c *Client) forget(key string) {
	c.mu.Lock()
	delete(c.sessions, key)
	c.mu.Unlock()
}

func (c *Client) cached(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[key]
}

func (c *Client) get(ctx context.Context, params map[string]string) (*qrzDatabase, error) {
	resp, err := c.http.R().SetContext(ctx).SetQueryParams(params).Get("")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: http %d", ErrUpstream, resp.StatusCode())
	}
	var db qrzDatabase
	if err := xml.Unmarshal(resp.Body(), &db); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	return &db, nil
}

// login opens a session and caches its key.
func (c *Client) login(ctx context.Context, username, password string) (string, error) {
	params := map[string]string{"username": username, "password": password}
	if c.agent != "" {
		params["agent"] = c.agent
	}
	db, err := c.get(ctx, params)
	if err != nil {
		return "", err
	}
	if db.Session.Key == "" {
		msg := db.Session.Error
		if msg == "" {
			msg = "no session key returned"
		}
		return "", fmt.Errorf("%w: login: %s", ErrUpstream, msg)
	}
	c.mu.Lock()
	c.sessions[credentialKey(username, password)] = db.Session.Key
	c.mu.Unlock()
	return db.Session.Key, nil
}

func (c *Client) session(ctx context.Context, username, password string) (string, error) {
	if key := c.cached(credentialKey(username, password)); key != "" {
		return key, nil
	}
	return c.login(ctx, username, password)
}

func isNotFound(s qrzSession) bool {
	return strings.HasPrefix(strings.ToLower(s.Error), "not found")
}

// Lookup resolves callsign using the given credential. A rejected session is
// re-established once and the lookup retried exactly once.
func (c *Client) Lookup(ctx context.Context, callsign, credential string) (*Station, error) {
	username, password, err := ParseCredential(credential)
	if err != nil {
		return nil, err
	}
	callsign = strings.ToUpper(strings.TrimSpace(callsign))

	key, err := c.session(ctx, username, password)
	if err != nil {
		return nil, err
	}
	db, err := c.get(ctx, map[string]string{"s": key, "callsign": callsign})
	if err != nil {
		return nil, err
	}
	if db.Callsign == nil && !isNotFound(db.Session) && db.Session.Error != "" {
		c.log.Info("directory session rejected, re-authenticating",
			zap.String("username", username), zap.String("reason", db.Session.Error))
		c.forget(credentialKey(username, password))
		if key, err = c.login(ctx, username, password); err != nil {
			return nil, err
		}
		if db, err = c.get(ctx, map[string]string{"s": key, "callsign": callsign}); err != nil {
			return nil, err
		}
	}

	if db.Callsign == nil {
		if db.Session.Error != "" && !isNotFound(db.Session) {
			c.forget(credentialKey(username, password))
			return nil, fmt.Errorf("%w: %s", ErrUpstream, db.Session.Error)
		}
		return nil, ErrNotFound
	}
	return toStation(db.Callsign, callsign), nil
}

func toStation(q *qrzCallsign, requested string) *Station {
	var parts []string
	for _, p := range []string{q.Addr2, q.State} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	call := q.Call
	if call == "" {
		call = requested
	}
	name := ""
	if q.FName != "" {
		name = strings.TrimSpace(q.FName + " " + q.Name)
	}
	return &Station{
		Callsign:     strings.ToUpper(call),
		Name:         name,
		Location:     strings.Join(parts, ", "),
		Address:      q.Addr1,
		City:         q.Addr2,
		State:        q.State,
		Zip:          q.Zip,
		Country:      q.Country,
		LicenseClass: q.Class,
		Email:        q.Email,
	}
}
