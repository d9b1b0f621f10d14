package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	tokenStr, err := IssueToken(claims, key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims() Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Roles: []string{RoleAnalyst},
	}
}

func runMiddleware(t *testing.T, cfg JWTConfig, header string, handler echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if handler == nil {
		handler = func(c echo.Context) error {
			return c.String(http.StatusOK, "ok")
		}
	}
	return rec, JWTMiddleware(cfg)(handler)(c)
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %d error, got nil", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err := runMiddleware(t, JWTConfig{SigningKey: testSigningKey}, "", nil)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runMiddleware(t, JWTConfig{SigningKey: testSigningKey}, tt.header, nil)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	tokenStr := createTestToken(t, validClaims(), testSigningKey)

	rec, err := runMiddleware(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+tokenStr, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	tokenStr := createTestToken(t, validClaims(), []byte("another-key"))

	_, err := runMiddleware(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+tokenStr, nil)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	claims := validClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-1 * time.Hour))
	tokenStr := createTestToken(t, claims, testSigningKey)

	_, err := runMiddleware(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+tokenStr, nil)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_IssuerAndAudience(t *testing.T) {
	claims := validClaims()
	claims.Issuer = "cohort-issuer"
	claims.Audience = jwt.ClaimStrings{"reports"}
	tokenStr := createTestToken(t, claims, testSigningKey)

	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "cohort-issuer", Audience: "reports"}
	if _, err := runMiddleware(t, cfg, "Bearer "+tokenStr, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.Audience = "billing"
	_, err := runMiddleware(t, cfg, "Bearer "+tokenStr, nil)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_ClaimsExtraction(t *testing.T) {
	claims := validClaims()
	claims.Subject = "user-456"
	claims.Roles = []string{RoleAnalyst, RoleViewer}
	claims.Locations = []int64{4, 12}
	tokenStr := createTestToken(t, claims, testSigningKey)

	handler := func(c echo.Context) error {
		ctx := c.Request().Context()

		if uid := UserIDFromContext(ctx); uid != "user-456" {
			t.Errorf("expected user_id=user-456, got %s", uid)
		}
		roles := RolesFromContext(ctx)
		if len(roles) != 2 || roles[0] != RoleAnalyst || roles[1] != RoleViewer {
			t.Errorf("expected roles=[analyst viewer], got %v", roles)
		}
		locations := LocationsFromContext(ctx)
		if len(locations) != 2 || locations[0] != 4 || locations[1] != 12 {
			t.Errorf("expected locations=[4 12], got %v", locations)
		}
		return c.String(http.StatusOK, "ok")
	}

	if _, err := runMiddleware(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+tokenStr, handler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDevAuthMiddleware_WithDefaults(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var handlerCalled bool
	handler := func(c echo.Context) error {
		handlerCalled = true
		ctx := c.Request().Context()

		if uid := UserIDFromContext(ctx); uid != "dev-user" {
			t.Errorf("expected user_id=dev-user, got %s", uid)
		}
		roles := RolesFromContext(ctx)
		if len(roles) != 1 || roles[0] != RoleAdmin {
			t.Errorf("expected roles=[admin], got %v", roles)
		}
		if !CanAccessLocation(ctx, 99) {
			t.Error("dev user should access every location")
		}
		return c.String(http.StatusOK, "ok")
	}

	if err := DevAuthMiddleware()(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Error("handler was not called")
	}
}
