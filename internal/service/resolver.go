package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode"

	"go-identity-gate/internal/model"
	"go-identity-gate/pkg/apierror"
)

// State is a step of credential resolution.
type State string

const (
	StateNoCredential  State = "no_credential"
	StateTryingBearer  State = "trying_bearer"
	StateTryingQuery   State = "trying_query"
	StateTryingSession State = "trying_session"
	StateResolved      State = "resolved"
	StateRejected      State = "rejected"
)

// TokenSource says where a raw token came from.
type TokenSource int

const (
	SourceNone TokenSource = iota
	SourceHeader
	SourceQuery
)

// Credentials is the credential material a request carried.
type Credentials struct {
	Token   string
	Source  TokenSource
	Session model.SessionContext
}

type outcomeKind int

const (
	outcomeContinue outcomeKind = iota
	outcomeSuccess
	outcomeFatal
)

// Outcome is the result of one resolution attempt.
type Outcome struct {
	kind     outcomeKind
	identity model.Identity
	err      error
}

func Success(identity model.Identity) Outcome { return Outcome{kind: outcomeSuccess, identity: identity} }
func Continue() Outcome                      { return Outcome{kind: outcomeContinue} }
func Fatal(err error) Outcome                { return Outcome{kind: outcomeFatal, err: err} }

func (o Outcome) Resolved() bool  { return o.kind == outcomeSuccess }
func (o Outcome) Continues() bool { return o.kind == outcomeContinue }
func (o Outcome) Err() error      { return o.err }

// Resolution is the terminal state plus the path that led to it.
type Resolution struct {
	State    State
	Identity model.Identity
	Err      error
	Path     []State
}

type claimVerifier interface {
	Verify(tokenString string) (*model.Claim, error)
}

type userLookup interface {
	FindByID(ctx context.Context, id string) (model.UserRecord, error)
	FindByExternalID(ctx context.Context, externalID string) (model.UserRecord, error)
}

type sessionLookup interface {
	FindActive(ctx context.Context, token string, now time.Time) (model.SessionRecord, error)
}

// Resolver turns request credentials into an Identity. Precedence is fixed:
// signed token, then server-side session token, then ambient session. The
// ambient session is only consulted when the request carried no token.
type Resolver struct {
	verifier claimVerifier
	users    userLookup
	sessions sessionLookup
	now      func() time.Time
}

func NewResolver(verifier claimVerifier, users userLookup, sessions sessionLookup) *Resolver {
	return &Resolver{verifier: verifier, users: users, sessions: sessions, now: time.Now}
}

func (r *Resolver) Resolve(ctx context.Context, creds Credentials) Resolution {
	res := Resolution{}

	token := strings.TrimSpace(creds.Token)
	if token != "" && creds.Source != SourceNone {
		if creds.Source == SourceQuery {
			res.Path = append(res.Path, StateTryingQuery)
		} else {
			res.Path = append(res.Path, StateTryingBearer)
		}

		for _, step := range []func(context.Context, string) Outcome{r.trySignedToken, r.trySessionToken} {
			if done := res.apply(step(ctx, token)); done {
				return res
			}
		}
		return res.reject(unauthenticatedError())
	}

	res.Path = append(res.Path, StateNoCredential, StateTryingSession)
	if done := res.apply(r.tryAmbient(ctx, creds.Session)); done {
		return res
	}
	return res.reject(unauthenticatedError())
}

func (res *Resolution) apply(o Outcome) bool {
	switch o.kind {
	case outcomeSuccess:
		res.State = StateResolved
		res.Identity = o.identity.Normalized()
		res.Path = append(res.Path, StateResolved)
		return true
	case outcomeFatal:
		*res = res.reject(o.err)
		return true
	default:
		return false
	}
}

func (res Resolution) reject(err error) Resolution {
	res.State = StateRejected
	res.Err = err
	res.Identity = model.Identity{}
	res.Path = append(res.Path, StateRejected)
	return res
}

// trySignedToken verifies the token and re-reads the user so the role comes
// from the registry rather than from the token payload.
func (r *Resolver) trySignedToken(ctx context.Context, token string) Outcome {
	if err := ctx.Err(); err != nil {
		return Fatal(err)
	}

	claim, err := r.verifier.Verify(token)
	if err != nil {
		slog.Debug("signed token rejected", "reason", err.Error())
		return Continue()
	}

	user, ok := r.lookupUser(ctx, claim.Data.ID)
	if !ok {
		return Continue()
	}
	return Success(model.IdentityFromUser(user, model.ProviderJWT))
}

func (r *Resolver) trySessionToken(ctx context.Context, token string) Outcome {
	if err := ctx.Err(); err != nil {
		return Fatal(err)
	}
	if r.sessions == nil {
		return Continue()
	}

	record, err := r.sessions.FindActive(ctx, token, r.now())
	if err != nil {
		if !errors.Is(err, model.ErrSessionNotFound) {
			slog.Warn("session token lookup failed", "error", err)
		}
		return Continue()
	}

	user, ok := r.lookupUser(ctx, record.UserID)
	if !ok {
		return Continue()
	}
	return Success(model.IdentityFromUser(user, model.ProviderSession))
}

func (r *Resolver) tryAmbient(ctx context.Context, sc model.SessionContext) Outcome {
	if err := ctx.Err(); err != nil {
		return Fatal(err)
	}
	if !sc.Authenticated() {
		return Continue()
	}

	data := sc.Data
	if data.AuthProvider == model.ProviderFederated {
		return r.resolveFederated(ctx, data)
	}

	if strings.TrimSpace(data.UserID) == "" {
		return Continue()
	}
	provider := data.AuthProvider
	if provider == "" {
		provider = model.ProviderSession
	}

	if user, ok := r.lookupUser(ctx, data.UserID); ok {
		return Success(model.IdentityFromUser(user, provider))
	}

	// no registry record: session data with the lowest role
	return Success(model.Identity{
		ID:           data.UserID,
		Email:        data.UserEmail,
		Name:         data.UserName,
		Role:         model.RoleUser,
		AuthProvider: provider,
	})
}

func (r *Resolver) resolveFederated(ctx context.Context, data model.AmbientSession) Outcome {
	externalID := strings.TrimSpace(data.UserID)
	if externalID == "" && strings.TrimSpace(data.UserName) == "" {
		return Continue()
	}

	identity := model.Identity{
		ID:           externalID,
		Name:         data.UserName,
		Role:         model.RoleUser,
		AuthProvider: model.ProviderFederated,
	}

	if externalID != "" {
		user, err := r.users.FindByExternalID(ctx, externalID)
		switch {
		case err == nil:
			identity.ID = user.ID
			identity.Email = user.Email
			identity.Name = user.DisplayName
			identity.Role = user.Role
			return Success(identity)
		case !errors.Is(err, model.ErrUserNotFound):
			slog.Warn("federated user lookup failed", "error", err)
		}
	}

	identity.Email = PlaceholderEmail(data.UserName, externalID)
	if identity.ID == "" {
		identity.ID = identity.Email
	}
	return Success(identity)
}

// lookupUser treats any store failure as "not found".
func (r *Resolver) lookupUser(ctx context.Context, id string) (model.UserRecord, bool) {
	if strings.TrimSpace(id) == "" {
		return model.UserRecord{}, false
	}

	user, err := r.users.FindByID(ctx, id)
	if err != nil {
		if !errors.Is(err, model.ErrUserNotFound) {
			slog.Warn("user lookup failed during resolution", "error", err)
		}
		return model.UserRecord{}, false
	}
	return user, true
}

// PlaceholderEmail synthesizes an address for a federated user the registry
// does not know, from the display name or, failing that, the subject.
func PlaceholderEmail(name string, subject string) string {
	local := slugify(name)
	if local == "" {
		local = slugify(subject)
	}
	if local == "" {
		local = "user"
	}
	return local + "@federated.invalid"
}

func slugify(raw string) string {
	var b strings.Builder
	lastDot := true
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			lastDot = false
		case !lastDot:
			b.WriteByte('.')
			lastDot = true
		}
	}
	return strings.TrimSuffix(b.String(), ".")
}

func unauthenticatedError() error {
	return apierror.Wrap(model.ErrUnauthenticated, "UNAUTHORIZED", "Unauthorized: Authentication required", http.StatusUnauthorized)
}
