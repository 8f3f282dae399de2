package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/ppwm/matcher-server-go/internal/model"
)

// ErrInvalidToken means the provider rejected the caller's token.
var ErrInvalidToken = errors.New("identity: invalid token")

// Source resolves a bearer token to the caller's identity.
type Source interface {
	Identify(ctx context.Context, token string) (model.Identity, error)
}

// GitHubSource reads the caller's profile and primary email from the GitHub API.
type GitHubSource struct {
	apiURL     string
	httpClient *http.Client
}

func NewGitHubSource(apiURL string, httpClient *http.Client) *GitHubSource {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GitHubSource{
		apiURL:     strings.TrimRight(apiURL, "/"),
		httpClient: httpClient,
	}
}

type githubUser struct {
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (g *GitHubSource) Identify(ctx context.Context, token string) (model.Identity, error) {
	if token == "" {
		return model.Identity{}, ErrInvalidToken
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))

	var user githubUser
	if err := g.get(ctx, client, "/user", &user); err != nil {
		return model.Identity{}, err
	}
	if user.Login == "" {
		return model.Identity{}, fmt.Errorf("github: profile has no login")
	}

	email := user.Email
	if email == "" {
		var emails []githubEmail
		// Without the user:email scope the profile email is all there is.
		if err := g.get(ctx, client, "/user/emails", &emails); err == nil {
			email = primaryEmail(emails)
		} else if errors.Is(err, ErrInvalidToken) {
			return model.Identity{}, err
		}
	}

	return model.Identity{Login: user.Login, Name: user.Name, Email: email}, nil
}

func (g *GitHubSource) get(ctx context.Context, client *http.Client, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("github: get %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrInvalidToken
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("github: get %s: status %d: %s", path, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("github: decode %s: %w", path, err)
	}
	return nil
}

// primaryEmail prefers the primary verified address, then any verified one.
func primaryEmail(emails []githubEmail) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email
		}
	}
	return ""
}
