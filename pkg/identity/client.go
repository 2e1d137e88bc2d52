// Package identity authenticates against the rewards API with a signed
// Sign-In with Ethereum message and claims the meeting quest.
//
// The handshake is all-or-nothing: nonce, signed login, session check. A
// failure at any step stops the handshake and no later step runs. The session
// token captured by the login response is kept for the following claim.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/roomkeeper/roomkeeper/pkg/config"
	"github.com/roomkeeper/roomkeeper/pkg/logging"
)

var (
	// ErrNoWallet means no signing key is configured.
	ErrNoWallet = errors.New("no wallet configured")
	// ErrNoNonce means the nonce endpoint returned no value.
	ErrNoNonce = errors.New("no nonce returned")
	// ErrLoginRejected means the login endpoint did not return true.
	ErrLoginRejected = errors.New("login rejected")
	// ErrNoSessionToken means no session token has been captured.
	ErrNoSessionToken = errors.New("no session token")
	// ErrNoSession means the session endpoint returned an empty session.
	ErrNoSession = errors.New("session is empty")
)

// Claim outcome markers in API messages.
const (
	maxHPMessage   = "max HP for today"
	awardedMessage = "Points awarded successfully!"
)

// Result is the classified outcome of one claim call.
type Result struct {
	Success      bool
	MaxHPReached bool
	// Message is the API message or error text.
	Message string
	// Points is set on success when the API reports it.
	Points string
}

// Provider is the rewards API as seen by the claim worker.
type Provider interface {
	RequestNonce(ctx context.Context) (string, error)
	Login(ctx context.Context, nonce string) error
	FetchSession(ctx context.Context) (string, error)
	Authenticate(ctx context.Context) error
	ClaimQuest(ctx context.Context) Result
}

// Options configures a Client.
type Options struct {
	Domain   string
	URI      string
	ChainID  int64
	QuestKey string
}

// OptionsFromConfig maps the claim section to Options.
func OptionsFromConfig(cfg config.ClaimConfig) Options {
	return Options{
		Domain:   cfg.Domain,
		URI:      cfg.URI,
		ChainID:  cfg.ChainID,
		QuestKey: cfg.QuestKey,
	}
}

// Client is the Provider implementation.
type Client struct {
	transport Transport
	signer    Signer
	opts      Options
	logger    *logging.Logger
	now       func() time.Time

	mu    sync.Mutex
	nonce string
	token string
}

// NewClient creates a Client. A nil signer makes every handshake fail with
// ErrNoWallet.
func NewClient(transport Transport, signer Signer, opts Options, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.MustLogger("identity")
	}
	return &Client{
		transport: transport,
		signer:    signer,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// SessionToken returns the captured session token.
func (c *Client) SessionToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Nonce returns the nonce of the current handshake; it is cleared when the
// API expires the nonce cookie.
func (c *Client) Nonce() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonce
}

// call sends req, applies cookie effects and converts non-2xx into *APIError.
func (c *Client) call(ctx context.Context, req Request) (Response, error) {
	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		return resp, err
	}

	c.mu.Lock()
	if resp.NonceCleared {
		c.nonce = ""
	}
	if resp.CapturedToken != "" {
		c.token = resp.CapturedToken
	}
	c.mu.Unlock()

	if !resp.OK() {
		return resp, apiError(resp)
	}
	return resp, nil
}

// RequestNonce fetches a fresh login nonce.
func (c *Client) RequestNonce(ctx context.Context) (string, error) {
	if c.signer == nil {
		return "", ErrNoWallet
	}
	resp, err := c.call(ctx, Request{Method: http.MethodPost, Path: pathNonce})
	if err != nil {
		return "", fmt.Errorf("nonce request failed: %w", err)
	}

	nonce := result(resp.Body).String()
	if nonce == "" {
		return "", ErrNoNonce
	}

	c.mu.Lock()
	c.nonce = nonce
	c.mu.Unlock()
	return nonce, nil
}

// Login signs a SIWE message over nonce and submits it.
func (c *Client) Login(ctx context.Context, nonce string) error {
	if c.signer == nil {
		return ErrNoWallet
	}
	if nonce == "" {
		return ErrNoNonce
	}

	message := SIWEMessage{
		Domain:   c.opts.Domain,
		Address:  c.signer.Address(),
		URI:      c.opts.URI,
		ChainID:  c.opts.ChainID,
		Nonce:    nonce,
		IssuedAt: c.now(),
	}.String()

	signature, err := c.signer.SignMessage(message)
	if err != nil {
		return err
	}

	body, err := batchBody("message", message, "signature", signature)
	if err != nil {
		return err
	}
	resp, err := c.call(ctx, Request{Method: http.MethodPost, Path: pathLogin, Body: body, Nonce: nonce})
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	if result(resp.Body).Raw != "true" {
		return ErrLoginRejected
	}
	return nil
}

// FetchSession checks the captured token and returns the raw session JSON.
func (c *Client) FetchSession(ctx context.Context) (string, error) {
	token := c.SessionToken()
	if token == "" {
		return "", ErrNoSessionToken
	}

	resp, err := c.call(ctx, Request{Method: http.MethodGet, Path: pathSession, SessionToken: token})
	if err != nil {
		return "", fmt.Errorf("session request failed: %w", err)
	}

	session := result(resp.Body)
	if !truthy(session) {
		return "", ErrNoSession
	}
	return session.Raw, nil
}

// Authenticate runs nonce, login and session in order and stops at the first
// failure.
func (c *Client) Authenticate(ctx context.Context) error {
	if c.signer == nil {
		return ErrNoWallet
	}

	nonce, err := c.RequestNonce(ctx)
	if err != nil {
		c.logger.Warnf("failed to obtain nonce: %v", err)
		return err
	}
	if err := c.Login(ctx, nonce); err != nil {
		c.logger.Warnf("login failed: %v", err)
		return err
	}
	if _, err := c.FetchSession(ctx); err != nil {
		c.logger.Warnf("session check failed: %v", err)
		return err
	}

	c.logger.Infof("authenticated as %s", c.signer.Address())
	return nil
}

// ClaimQuest completes the configured repeatable quest with the captured
// session token. It never returns an error; failures are classified.
func (c *Client) ClaimQuest(ctx context.Context) Result {
	token := c.SessionToken()
	if token == "" {
		return Result{Message: ErrNoSessionToken.Error()}
	}

	body, err := batchBody("isRepeatable", true, "questKey", c.opts.QuestKey)
	if err != nil {
		return classifyError(err.Error())
	}

	resp, err := c.call(ctx, Request{Method: http.MethodPost, Path: pathQuest, Body: body, SessionToken: token})
	if err != nil {
		c.logger.Warnf("claim request failed: %v", err)
		return classifyError(err.Error())
	}

	if apiErr := resultError(resp.Body); apiErr != "" {
		return classifyError(apiErr)
	}

	claim := result(resp.Body)
	if msg := claim.Get("message").String(); msg == awardedMessage {
		return Result{Success: true, Message: msg, Points: claim.Get("points").String()}
	}
	return Result{Message: "unexpected response: " + strings.TrimSpace(string(resp.Body))}
}

func classifyError(message string) Result {
	return Result{
		MaxHPReached: strings.Contains(message, maxHPMessage),
		Message:      message,
	}
}
