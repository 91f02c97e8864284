package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"

	"go-identity-gate/internal/event"
	"go-identity-gate/internal/model"
	"go-identity-gate/pkg/apierror"
)

type FederatedConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	RedirectURL  string
	Scopes       []string
}

// FederatedService drives the OAuth2 authorization-code flow against a single
// configured provider and links the result into the registry.
type FederatedService struct {
	oauth       *oauth2.Config
	userInfoURL string
	registry    *RegistryService
	bus         event.Bus
}

func NewFederatedService(cfg FederatedConfig, registry *RegistryService, bus event.Bus) *FederatedService {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}

	return &FederatedService{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
			RedirectURL: cfg.RedirectURL,
			Scopes:      scopes,
		},
		userInfoURL: cfg.UserInfoURL,
		registry:    registry,
		bus:         bus,
	}
}

func (f *FederatedService) StateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (f *FederatedService) AuthURL(state string) string {
	return f.oauth.AuthCodeURL(state)
}

// userInfo accepts both OIDC ("sub") and plain OAuth ("id", "login") shapes.
type userInfo struct {
	Sub           string          `json:"sub"`
	ID            json.RawMessage `json:"id"`
	Email         string          `json:"email"`
	EmailVerified verifiedFlag    `json:"email_verified"`
	Name          string          `json:"name"`
	Login         string          `json:"login"`
}

// verifiedFlag reads email_verified sent either as a boolean or as a string.
// Anything unparseable counts as unverified.
type verifiedFlag bool

func (v *verifiedFlag) UnmarshalJSON(b []byte) error {
	parsed, err := strconv.ParseBool(strings.Trim(string(b), `"`))
	*v = verifiedFlag(err == nil && parsed)
	return nil
}

func (u userInfo) profile() model.FederatedProfile {
	subject := strings.TrimSpace(u.Sub)
	if subject == "" && len(u.ID) > 0 {
		subject = strings.Trim(string(u.ID), `"`)
	}
	name := strings.TrimSpace(u.Name)
	if name == "" {
		name = strings.TrimSpace(u.Login)
	}
	return model.FederatedProfile{
		Subject:       subject,
		Email:         strings.TrimSpace(u.Email),
		EmailVerified: bool(u.EmailVerified),
		Name:          name,
	}
}

// Complete exchanges the authorization code, reads the provider profile and
// returns the linked registry account.
func (f *FederatedService) Complete(ctx context.Context, code string) (model.UserRecord, error) {
	if strings.TrimSpace(code) == "" {
		return model.UserRecord{}, federatedError("missing authorization code")
	}

	token, err := f.oauth.Exchange(ctx, code)
	if err != nil {
		return model.UserRecord{}, federatedError("code exchange failed").WithDetails(err.Error())
	}

	profile, err := f.fetchProfile(ctx, token)
	if err != nil {
		return model.UserRecord{}, err
	}

	user, err := f.registry.LinkFederated(ctx, profile)
	if err != nil {
		return model.UserRecord{}, err
	}

	if f.bus != nil {
		f.bus.Publish(event.Event{
			Type:    event.TypeFederatedLinked,
			ActorID: user.ID,
			Payload: map[string]any{"provider": string(model.ProviderFederated)},
		})
	}
	return user, nil
}

func (f *FederatedService) fetchProfile(ctx context.Context, token *oauth2.Token) (model.FederatedProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.userInfoURL, nil)
	if err != nil {
		return model.FederatedProfile{}, fmt.Errorf("build userinfo request: %w", err)
	}

	resp, err := f.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return model.FederatedProfile{}, federatedError("userinfo request failed").WithDetails(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.FederatedProfile{}, federatedError("userinfo request failed").WithDetails(resp.Status)
	}

	var info userInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return model.FederatedProfile{}, federatedError("invalid userinfo response").WithDetails(err.Error())
	}

	profile := info.profile()
	if profile.Subject == "" {
		return model.FederatedProfile{}, federatedError("userinfo response has no subject")
	}
	return profile, nil
}

func federatedError(msg string) *apierror.APIError {
	return apierror.Wrap(model.ErrUnauthenticated, "FEDERATED_LOGIN_FAILED", msg, http.StatusUnauthorized)
}
