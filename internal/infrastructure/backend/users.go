package backend

import (
	"context"
	"errors"
	"net/http"

	"github.com/dreschagin/securecam/internal/application/port"
	"github.com/dreschagin/securecam/internal/domain/entity"
)

const (
	signupPath = "/api/user/signup"

	// Backend отвечает этим сообщением только при создании нового пользователя.
	newUserMessage = "User registered successfully"
)

type signupRequest struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
}

type signupResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	User    struct {
		ID          flexID `json:"ID"`
		Name        string `json:"name"`
		PhoneNumber string `json:"phoneNumber"`
	} `json:"user"`
}

// UsersClient registers or logs in field users.
type UsersClient struct {
	client *Client
}

var _ port.UserRegistry = (*UsersClient)(nil)

func NewUsersClient(client *Client) *UsersClient {
	return &UsersClient{client: client}
}

func (c *UsersClient) Signup(ctx context.Context, name, phoneNumber string) (port.SignupResult, error) {
	var resp signupResponse
	err := c.client.doJSON(ctx, http.MethodPost, signupPath, signupRequest{
		Name:        name,
		PhoneNumber: phoneNumber,
	}, &resp)
	if err != nil {
		return port.SignupResult{}, err
	}

	if !resp.Success {
		message := resp.Message
		if message == "" {
			message = "Signup failed"
		}
		return port.SignupResult{}, errors.New(message)
	}

	return port.SignupResult{
		User: entity.User{
			ID:          string(resp.User.ID),
			Name:        resp.User.Name,
			PhoneNumber: resp.User.PhoneNumber,
		},
		Message:   resp.Message,
		IsNewUser: resp.Message == newUserMessage,
	}, nil
}
