package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Skotchmaster/pharmacy_shop/pkg/tokens"
)

// RemoteClient talks to the hosted identity service. It is shared by all
// visitors; each visitor gets its own Remote from Provider.
type RemoteClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewRemoteClient(baseURL, apiKey string) *RemoteClient {
	return &RemoteClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (c *RemoteClient) Factory() Factory {
	return func() Provider { return c.Provider() }
}

func (c *RemoteClient) Provider() *Remote {
	p := &Remote{client: c, state: newNotifier()}
	p.state.refresh = p.refresh
	return p
}

// Error is a failure reported by the identity service.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("identity: %d %s", e.Status, e.Code)
}

func (e *Error) Unwrap() error {
	switch {
	case e.Code == "EMAIL_EXISTS":
		return ErrEmailExists
	case e.Code == "EMAIL_NOT_FOUND", e.Code == "INVALID_PASSWORD",
		e.Code == "INVALID_LOGIN_CREDENTIALS", e.Code == "USER_DISABLED",
		strings.HasPrefix(e.Code, "INVALID_IDP_RESPONSE"):
		return ErrInvalidCredentials
	case e.Code == "INVALID_ID_TOKEN", e.Code == "TOKEN_EXPIRED":
		return ErrNotSignedIn
	}
	return nil
}

type authResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	Email        string `json:"email"`
	LocalID      string `json:"localId"`
	DisplayName  string `json:"displayName"`
	PhotoURL     string `json:"photoUrl"`
	ExpiresIn    string `json:"expiresIn"`
}

type tokenResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

func (c *RemoteClient) post(ctx context.Context, op string, body any, out any) error {
	return c.call(ctx, "/accounts:"+op, body, out)
}

func (c *RemoteClient) call(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	u := c.baseURL + path
	if c.apiKey != "" {
		u += "?key=" + url.QueryEscape(c.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		code, _, _ := strings.Cut(e.Error.Message, " ")
		return &Error{Status: resp.StatusCode, Code: code, Message: e.Error.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (r authResponse) user(now time.Time) (*User, error) {
	claims, err := tokens.UnverifiedIdentityClaims(r.IDToken)
	if err != nil {
		return nil, fmt.Errorf("decode id token: %w", err)
	}
	u := &User{
		UID:          r.LocalID,
		Email:        claims.Email,
		DisplayName:  firstNonEmpty(r.DisplayName, claims.Name),
		PhotoURL:     firstNonEmpty(r.PhotoURL, claims.Picture),
		AccessToken:  r.IDToken,
		RefreshToken: r.RefreshToken,
	}
	if u.UID == "" {
		u.UID = claims.Subject
	}
	switch {
	case claims.ExpiresAt != nil:
		u.ExpiresAt = claims.ExpiresAt.Time
	case r.ExpiresIn != "":
		if secs, err := strconv.Atoi(r.ExpiresIn); err == nil {
			u.ExpiresAt = now.Add(time.Duration(secs) * time.Second)
		}
	}
	return u, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Remote is one visitor's session with the hosted identity service.
type Remote struct {
	client *RemoteClient
	state  *notifier
}

var _ Provider = (*Remote)(nil)

func (p *Remote) signedIn(resp authResponse) (*User, error) {
	u, err := resp.user(p.state.now())
	if err != nil {
		return nil, err
	}
	p.state.set(u)
	return u, nil
}

func (p *Remote) CreateUser(ctx context.Context, email, password string) (*User, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password are required: %w", ErrValidation)
	}
	var resp authResponse
	err := p.client.post(ctx, "signUp", map[string]any{
		"email": email, "password": password, "returnSecureToken": true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return p.signedIn(resp)
}

func (p *Remote) SignIn(ctx context.Context, email, password string) (*User, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password are required: %w", ErrValidation)
	}
	var resp authResponse
	err := p.client.post(ctx, "signInWithPassword", map[string]any{
		"email": email, "password": password, "returnSecureToken": true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return p.signedIn(resp)
}

func (p *Remote) SocialLogin(ctx context.Context, providerID, idToken string) (*User, error) {
	if providerID == "" || idToken == "" {
		return nil, fmt.Errorf("provider and token are required: %w", ErrValidation)
	}
	form := url.Values{}
	form.Set("id_token", idToken)
	form.Set("providerId", providerID)

	var resp authResponse
	err := p.client.post(ctx, "signInWithIdp", map[string]any{
		"postBody":          form.Encode(),
		"requestUri":        "http://localhost",
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return p.signedIn(resp)
}

// SignOut only drops the local session; the service keeps no per-client state.
func (p *Remote) SignOut(context.Context) error {
	p.state.set(nil)
	return nil
}

func (p *Remote) UpdateProfile(ctx context.Context, prof Profile) error {
	cur := p.state.user()
	if cur == nil {
		return ErrNotSignedIn
	}
	var resp authResponse
	err := p.client.post(ctx, "update", map[string]any{
		"idToken":           cur.AccessToken,
		"displayName":       prof.DisplayName,
		"photoUrl":          prof.PhotoURL,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return err
	}

	updated := *cur
	updated.DisplayName = prof.DisplayName
	updated.PhotoURL = prof.PhotoURL
	if resp.IDToken != "" {
		if u, err := resp.user(p.state.now()); err == nil {
			updated.AccessToken = u.AccessToken
			updated.ExpiresAt = u.ExpiresAt
		}
	}
	p.state.set(&updated)
	return nil
}

// refresh exchanges the refresh token at the token endpoint. The profile
// fields of u carry over to the renewed user.
func (p *Remote) refresh(ctx context.Context, u *User) (*User, error) {
	var resp tokenResponse
	err := p.client.call(ctx, "/token", map[string]any{
		"grant_type":    "refresh_token",
		"refresh_token": u.RefreshToken,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	fresh, err := authResponse{
		IDToken:      resp.IDToken,
		RefreshToken: firstNonEmpty(resp.RefreshToken, u.RefreshToken),
		LocalID:      firstNonEmpty(resp.UserID, u.UID),
		ExpiresIn:    resp.ExpiresIn,
	}.user(p.state.now())
	if err != nil {
		return nil, err
	}
	next := *u
	next.AccessToken = fresh.AccessToken
	next.RefreshToken = fresh.RefreshToken
	next.ExpiresAt = fresh.ExpiresAt
	return &next, nil
}

func (p *Remote) ResetPassword(ctx context.Context, email string) error {
	if email == "" {
		return fmt.Errorf("email is required: %w", ErrValidation)
	}
	return p.client.post(ctx, "sendOobCode", map[string]any{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	}, nil)
}

func (p *Remote) OnAuthStateChanged(l Listener) func() {
	return p.state.subscribe(l)
}
