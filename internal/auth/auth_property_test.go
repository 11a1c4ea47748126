package auth_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aimerfeng/ContribChain/internal/auth"
	"github.com/aimerfeng/ContribChain/internal/config"
	apperrors "github.com/aimerfeng/ContribChain/internal/errors"
	"github.com/aimerfeng/ContribChain/internal/store/storetest"
	"github.com/alexedwards/argon2id"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestMain(m *testing.M) {
	// cheap parameters keep property tests fast; production uses argon2id defaults
	auth.HashParams = &argon2id.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	os.Exit(m.Run())
}

var testJWTConfig = &config.JWTConfig{
	Secret:            "test-secret-key-for-property-testing-32chars",
	Issuer:            "contribchain-test",
	AccessTokenExpiry: 30 * time.Minute,
}

// generateValidPassword generates a valid password (min 8 chars)
func generateValidPassword(t *rapid.T) string {
	return rapid.StringMatching(`[a-zA-Z0-9!@#$%]{8,32}`).Draw(t, "password")
}

// *For any* password, verifying it against its own hash SHALL succeed and any other password SHALL fail.
func TestProperty_PasswordHashRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		password := generateValidPassword(t)
		other := generateValidPassword(t)

		hash, err := auth.HashPassword(password)
		if err != nil {
			t.Fatalf("failed to hash password: %v", err)
		}
		if strings.Contains(hash, password) {
			t.Fatal("PROPERTY VIOLATION: hash must not contain the plaintext")
		}

		ok, err := auth.VerifyPassword(password, hash)
		if err != nil || !ok {
			t.Fatalf("PROPERTY VIOLATION: password must verify against its own hash (ok=%v err=%v)", ok, err)
		}

		ok, err = auth.VerifyPassword(other, hash)
		if err != nil {
			t.Fatalf("mismatch must not be an error: %v", err)
		}
		if ok != (other == password) {
			t.Fatalf("PROPERTY VIOLATION: verify(%q) against hash of %q returned %v", other, password, ok)
		}
	})
}

// *For any* password, two hashes SHALL differ because each is salted.
func TestProperty_PasswordHashSalted(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		password := generateValidPassword(t)
		a, err := auth.HashPassword(password)
		if err != nil {
			t.Fatal(err)
		}
		b, err := auth.HashPassword(password)
		if err != nil {
			t.Fatal(err)
		}
		if a == b {
			t.Fatal("PROPERTY VIOLATION: hashes of the same password must differ")
		}
	})
}

func TestVerifyPassword_InvalidHash(t *testing.T) {
	_, err := auth.VerifyPassword("password123", "")
	assert.ErrorIs(t, err, auth.ErrInvalidHash)

	_, err = auth.VerifyPassword("password123", "plaintext-not-a-hash")
	assert.ErrorIs(t, err, auth.ErrInvalidHash)
}

// *For any* subject and positive ttl, validate(issue(subject, ttl)) SHALL return subject before expiry.
func TestProperty_TokenRoundTrip(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	rapid.Check(t, func(t *rapid.T) {
		subject := uuid.New().String()
		ttlSeconds := rapid.IntRange(2, 86400).Draw(t, "ttlSeconds")
		elapsed := rapid.IntRange(0, ttlSeconds-1).Draw(t, "elapsed")

		now := base
		issuer := auth.NewIssuer(testJWTConfig, auth.WithClock(func() time.Time { return now }))

		token, expiresAt, err := issuer.Issue(subject, time.Duration(ttlSeconds)*time.Second)
		if err != nil {
			t.Fatalf("failed to issue token: %v", err)
		}
		if !expiresAt.Equal(base.Add(time.Duration(ttlSeconds) * time.Second)) {
			t.Fatalf("PROPERTY VIOLATION: unexpected expiry %v", expiresAt)
		}

		now = base.Add(time.Duration(elapsed) * time.Second)
		got, err := issuer.Validate(token)
		if err != nil {
			t.Fatalf("PROPERTY VIOLATION: token must validate before expiry: %v", err)
		}
		if got != subject {
			t.Fatalf("PROPERTY VIOLATION: subject %q != %q", got, subject)
		}
	})
}

// *For any* sub-second issue time and millisecond ttl, the token SHALL validate
// until its reported expiry and that expiry SHALL not precede issue time plus ttl.
func TestProperty_TokenSubSecondTTL(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		offsetMs := rapid.IntRange(0, 999).Draw(t, "offsetMs")
		ttlMs := rapid.IntRange(1, 5000).Draw(t, "ttlMs")
		elapsedMs := rapid.IntRange(0, ttlMs-1).Draw(t, "elapsedMs")

		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(offsetMs) * time.Millisecond)
		ttl := time.Duration(ttlMs) * time.Millisecond
		now := base
		issuer := auth.NewIssuer(testJWTConfig, auth.WithClock(func() time.Time { return now }))

		subject := uuid.NewString()
		token, expiresAt, err := issuer.Issue(subject, ttl)
		if err != nil {
			t.Fatal(err)
		}
		if expiresAt.Before(base.Add(ttl)) || !expiresAt.Before(base.Add(ttl+time.Second)) {
			t.Fatalf("PROPERTY VIOLATION: expiry %v outside [%v, +1s)", expiresAt, base.Add(ttl))
		}

		now = base.Add(time.Duration(elapsedMs) * time.Millisecond)
		got, err := issuer.Validate(token)
		if err != nil {
			t.Fatalf("PROPERTY VIOLATION: token must validate before expiry: %v", err)
		}
		if got != subject {
			t.Fatalf("PROPERTY VIOLATION: subject %q != %q", got, subject)
		}

		now = expiresAt
		if _, err := issuer.Validate(token); !errors.Is(err, auth.ErrTokenExpired) {
			t.Fatalf("PROPERTY VIOLATION: token must expire at %v, got %v", expiresAt, err)
		}
	})
}

// *For any* token, validating after its expiry SHALL fail with an invalid token error.
func TestProperty_TokenExpiry(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	rapid.Check(t, func(t *rapid.T) {
		ttlSeconds := rapid.IntRange(1, 3600).Draw(t, "ttlSeconds")
		after := rapid.IntRange(1, 86400).Draw(t, "after")

		now := base
		issuer := auth.NewIssuer(testJWTConfig, auth.WithClock(func() time.Time { return now }))
		token, _, err := issuer.Issue(uuid.NewString(), time.Duration(ttlSeconds)*time.Second)
		if err != nil {
			t.Fatal(err)
		}

		now = base.Add(time.Duration(ttlSeconds+after) * time.Second)
		_, err = issuer.Validate(token)
		if !errors.Is(err, apperrors.ErrInvalidToken) {
			t.Fatalf("PROPERTY VIOLATION: expired token must be rejected, got %v", err)
		}
	})
}

// *For any* token, flipping a character of the signature SHALL make it invalid.
func TestProperty_TokenTamperDetected(t *testing.T) {
	issuer := auth.NewIssuer(testJWTConfig)

	rapid.Check(t, func(t *rapid.T) {
		token, _, err := issuer.Issue(uuid.NewString(), 0)
		if err != nil {
			t.Fatal(err)
		}
		sigStart := strings.LastIndex(token, ".") + 1
		pos := rapid.IntRange(sigStart, len(token)-2).Draw(t, "pos")

		b := []byte(token)
		if b[pos] == 'A' {
			b[pos] = 'B'
		} else {
			b[pos] = 'A'
		}

		if _, err := issuer.Validate(string(b)); !errors.Is(err, auth.ErrInvalidToken) {
			t.Fatalf("PROPERTY VIOLATION: tampered token accepted (err=%v)", err)
		}
	})
}

func TestValidate_RejectsOtherSecretAndAlgorithm(t *testing.T) {
	issuer := auth.NewIssuer(testJWTConfig)
	other := auth.NewIssuer(&config.JWTConfig{Secret: "another-secret", Issuer: testJWTConfig.Issuer})

	token, _, err := other.Issue("subject", time.Minute)
	require.NoError(t, err)
	_, err = issuer.Validate(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "subject",
		Issuer:    testJWTConfig.Issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	noneToken, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = issuer.Validate(noneToken)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = issuer.Validate("not-a-jwt")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestIssue_DefaultTTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	issuer := auth.NewIssuer(&config.JWTConfig{Secret: "s"}, auth.WithClock(func() time.Time { return now }))

	_, expiresAt, err := issuer.Issue("subject", 0)
	require.NoError(t, err)
	assert.True(t, now.Add(auth.DefaultTokenTTL).Equal(expiresAt))
}

func newService(t *testing.T) *auth.Service {
	t.Helper()
	return auth.NewService(storetest.New(t), auth.NewIssuer(testJWTConfig))
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	resp, err := svc.Register(ctx, &auth.RegisterRequest{
		Email:    "Alice@Example.com",
		Username: "alice",
		Password: "correct horse",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", resp.User.Email)
	assert.True(t, resp.User.IsActive)
	assert.NotEqual(t, "correct horse", resp.User.PasswordHash)

	subject, err := svc.Issuer().Validate(resp.Token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID.String(), subject)

	for _, login := range []string{"alice", "alice@example.com"} {
		got, err := svc.Login(ctx, &auth.LoginRequest{Username: login, Password: "correct horse"})
		require.NoError(t, err, login)
		assert.Equal(t, resp.User.ID, got.User.ID)
	}

	_, err = svc.Login(ctx, &auth.LoginRequest{Username: "alice", Password: "wrong password"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = svc.Login(ctx, &auth.LoginRequest{Username: "nobody", Password: "correct horse"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestRegister_Conflicts(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	_, err := svc.Register(ctx, &auth.RegisterRequest{Email: "bob@example.com", Username: "bob", Password: "password1"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, &auth.RegisterRequest{Email: "bob@example.com", Username: "bobby", Password: "password1"})
	assert.ErrorIs(t, err, auth.ErrEmailAlreadyExists)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = svc.Register(ctx, &auth.RegisterRequest{Email: "other@example.com", Username: "bob", Password: "password1"})
	assert.ErrorIs(t, err, auth.ErrUsernameTaken)
}

func TestRegister_Validation(t *testing.T) {
	svc := newService(t)

	_, err := svc.Register(context.Background(), &auth.RegisterRequest{Email: "not-an-email", Username: "x", Password: "short"})
	require.Error(t, err)

	var verr *apperrors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "username")
	assert.Contains(t, verr.Fields, "password")
}

func TestChangePasswordAndDeactivate(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	resp, err := svc.Register(ctx, &auth.RegisterRequest{Email: "carol@example.com", Username: "carol", Password: "first-password"})
	require.NoError(t, err)
	userID := resp.User.ID

	err = svc.ChangePassword(ctx, userID, &auth.ChangePasswordRequest{CurrentPassword: "wrong-password", NewPassword: "second-password"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	require.NoError(t, svc.ChangePassword(ctx, userID, &auth.ChangePasswordRequest{CurrentPassword: "first-password", NewPassword: "second-password"}))

	_, err = svc.Login(ctx, &auth.LoginRequest{Username: "carol", Password: "first-password"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	_, err = svc.Login(ctx, &auth.LoginRequest{Username: "carol", Password: "second-password"})
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, userID))
	_, err = svc.Login(ctx, &auth.LoginRequest{Username: "carol", Password: "second-password"})
	assert.ErrorIs(t, err, apperrors.ErrInactiveUser)

	user, err := svc.GetUserByID(ctx, userID)
	require.NoError(t, err)
	assert.False(t, user.IsActive)

	assert.ErrorIs(t, svc.Deactivate(ctx, uuid.New()), apperrors.ErrNotFound)
	assert.ErrorIs(t, svc.SetPassword(ctx, uuid.New(), "whatever-password"), apperrors.ErrNotFound)
}

// *For any* set of distinct registrations, every account SHALL be able to log in with its own password only.
func TestUpdateProfileAndListUsers(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	name := "Dave D"
	resp, err := svc.Register(ctx, &auth.RegisterRequest{Email: "dave@example.com", Username: "dave", Password: "password1", FullName: &name})
	require.NoError(t, err)
	userID := resp.User.ID

	wallet := "  0x52908400098527886E0F7030069857D2E4169EE7 "
	bio := "reviewer"
	user, err := svc.UpdateProfile(ctx, userID, &auth.UpdateProfileRequest{WalletAddress: &wallet, Bio: &bio})
	require.NoError(t, err)
	require.NotNil(t, user.WalletAddress)
	assert.Equal(t, "0x52908400098527886E0F7030069857D2E4169EE7", *user.WalletAddress)
	require.NotNil(t, user.FullName)
	assert.Equal(t, "Dave D", *user.FullName)

	blank, blankAvatar := "", "  "
	_, err = svc.UpdateProfile(ctx, userID, &auth.UpdateProfileRequest{FullName: &blank, AvatarURL: &blankAvatar})
	require.NoError(t, err)
	stored, err := svc.GetUserByID(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, stored.FullName)
	assert.Nil(t, stored.AvatarURL)
	require.NotNil(t, stored.Bio)
	assert.Equal(t, "reviewer", *stored.Bio)
	assert.Equal(t, "dave", stored.DisplayName())

	badURL := "not a url"
	_, err = svc.UpdateProfile(ctx, userID, &auth.UpdateProfileRequest{AvatarURL: &badURL})
	var verr *apperrors.ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Contains(t, verr.Fields, "avatar_url")

	_, err = svc.UpdateProfile(ctx, uuid.New(), &auth.UpdateProfileRequest{Bio: &bio})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = svc.Register(ctx, &auth.RegisterRequest{Email: "erin@example.com", Username: "erin", Password: "password1"})
	require.NoError(t, err)
	users, err := svc.ListUsers(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestProperty_RegisteredUsersCanLogin(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	counter := 0

	rapid.Check(t, func(t *rapid.T) {
		counter++
		username := fmt.Sprintf("%s%d", rapid.StringMatching(`[a-z]{3,10}`).Draw(t, "username"), counter)
		password := generateValidPassword(t)

		resp, err := svc.Register(ctx, &auth.RegisterRequest{
			Email:    username + "@example.org",
			Username: username,
			Password: password,
		})
		if err != nil {
			t.Fatalf("failed to register: %v", err)
		}

		got, err := svc.Login(ctx, &auth.LoginRequest{Username: username, Password: password})
		if err != nil {
			t.Fatalf("PROPERTY VIOLATION: registered user cannot log in: %v", err)
		}
		if got.User.ID != resp.User.ID {
			t.Fatal("PROPERTY VIOLATION: login resolved a different user")
		}

		if _, err := svc.Login(ctx, &auth.LoginRequest{Username: username, Password: password + "x"}); !errors.Is(err, apperrors.ErrInvalidCredentials) {
			t.Fatalf("PROPERTY VIOLATION: wrong password accepted (err=%v)", err)
		}
	})
}
