package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GoTrue calls a hosted Supabase-compatible auth API.
type GoTrue struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// NewGoTrue creates a client with a bounded timeout.
func NewGoTrue(baseURL, apiKey string) *GoTrue {
	return &GoTrue{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

type gotrueUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type gotrueError struct {
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`

	raw string
}

func (e gotrueError) text() string {
	for _, s := range []string{e.Msg, e.Message, e.ErrorDescription, e.Error, e.raw} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (e gotrueError) emailTaken() bool {
	return e.ErrorCode == "user_already_exists" || e.ErrorCode == "email_exists" ||
		strings.Contains(strings.ToLower(e.text()), "already registered")
}

// post returns a non-nil *gotrueError when the service answered with a failure status.

func (g *GoTrue) post(ctx context.Context, path string, payload any, out any) (int, *gotrueError, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", g.APIKey)
	req.Header.Set("Authorization", "Bearer "+g.APIKey)

	resp, err := g.HTTP.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("auth service request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		e := gotrueError{raw: strings.TrimSpace(string(raw))}
		_ = json.Unmarshal(raw, &e)
		return resp.StatusCode, &e, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to decode auth response: %w", err)
	}
	return resp.StatusCode, nil, nil
}

// SignUp registers the user with metadata the profile trigger reads.
func (g *GoTrue) SignUp(ctx context.Context, in SignUpInput) (Account, error) {
	payload := map[string]any{
		"email":    in.Email,
		"password": in.Password,
		"data": map[string]string{
			"full_name": in.FullName,
			"role":      string(in.Role),
			"matric_no": in.MatricNo,
			"staff_no":  in.StaffNo,
		},
	}
	// autoconfirm projects return a session with a nested user, others the bare user
	var out struct {
		gotrueUser
		User *gotrueUser `json:"user"`
	}
	status, apiErr, err := g.post(ctx, "/auth/v1/signup", payload, &out)
	if err != nil {
		return Account{}, err
	}
	if apiErr != nil {
		if apiErr.emailTaken() {
			return Account{}, ErrEmailTaken
		}
		if status < 500 {
			return Account{}, fmt.Errorf("%w: %s", ErrInvalidInput, apiErr.text())
		}
		return Account{}, fmt.Errorf("auth service error %d: %s", status, apiErr.text())
	}
	u := out.gotrueUser
	if out.User != nil {
		u = *out.User
	}
	if u.ID == "" {
		return Account{}, fmt.Errorf("auth service returned no user id")
	}
	return Account{ID: u.ID, Email: u.Email}, nil
}

func (g *GoTrue) SignIn(ctx context.Context, email, password string) (Account, error) {
	var out struct {
		AccessToken string     `json:"access_token"`
		User        gotrueUser `json:"user"`
	}
	status, apiErr, err := g.post(ctx, "/auth/v1/token?grant_type=password", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return Account{}, err
	}
	if apiErr != nil {
		if status < 500 {
			return Account{}, ErrInvalidCredentials
		}
		return Account{}, fmt.Errorf("auth service error %d: %s", status, apiErr.text())
	}
	if out.User.ID == "" {
		return Account{}, ErrInvalidCredentials
	}
	return Account{ID: out.User.ID, Email: out.User.Email}, nil
}

// Health pings the auth service.
func (g *GoTrue) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"/auth/v1/health", nil)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", g.APIKey)
	resp, err := g.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("auth service unavailable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("auth service unhealthy: %s", resp.Status)
	}
	return nil
}
