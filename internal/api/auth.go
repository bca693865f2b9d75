package api

import (
	"context"
	"log/slog"
)

// Credentials is the result of a successful login or signup: the opaque
// bearer token and the user snapshot the server returned alongside it.
type Credentials struct {
	Token string
	User  User
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	AdminCode string `json:"adminCode,omitempty"`
}

// Login exchanges an email and password for a bearer token. Invalid
// credentials come back as ErrBadRequest with the server's message.
func (c *Client) Login(ctx context.Context, email, password string) (*Credentials, error) {
	c.logger.Info("logging in", slog.String("email", email))

	var resp authResponse
	if err := c.postJSON(ctx, "/auth/login", loginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}

	return credentialsFromResponse(&resp), nil
}

// Signup creates an account and returns a live session for it. adminCode
// is optional; a valid one makes the new account an admin.
func (c *Client) Signup(ctx context.Context, email, password, adminCode string) (*Credentials, error) {
	c.logger.Info("signing up", slog.String("email", email))

	var resp authResponse
	if err := c.postJSON(ctx, "/auth/signup", signupRequest{Email: email, Password: password, AdminCode: adminCode}, &resp); err != nil {
		return nil, err
	}

	return credentialsFromResponse(&resp), nil
}

func credentialsFromResponse(resp *authResponse) *Credentials {
	return &Credentials{
		Token: resp.Token,
		User: User{
			ID:      resp.User.ID,
			Email:   resp.User.Email,
			IsAdmin: resp.User.IsAdmin,
		},
	}
}
