package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/agaseke/agaseke-backend/api/middleware"
	"github.com/agaseke/agaseke-backend/internal/auth"
	"github.com/agaseke/agaseke-backend/internal/users"
	"github.com/agaseke/agaseke-backend/pkg/auth/session"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
)

type stubAuthService struct {
	loginFn   func(ctx context.Context, req auth.LoginRequest) (*auth.LoginChallenge, error)
	verifyFn  func(ctx context.Context, req auth.VerifyLoginRequest) (*auth.LoginResponse, error)
	refreshFn func(ctx context.Context, credential string) (*auth.RefreshResponse, error)
	logoutFn  func(ctx context.Context, accessID string) error
}

func (s stubAuthService) Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginChallenge, error) {
	return s.loginFn(ctx, req)
}

func (s stubAuthService) VerifyLogin(ctx context.Context, req auth.VerifyLoginRequest) (*auth.LoginResponse, error) {
	return s.verifyFn(ctx, req)
}

func (s stubAuthService) Refresh(ctx context.Context, credential string) (*auth.RefreshResponse, error) {
	return s.refreshFn(ctx, credential)
}

func (s stubAuthService) Logout(ctx context.Context, accessID string) error {
	return s.logoutFn(ctx, accessID)
}

type stubRegisterService struct {
	user *users.UserDTO
	err  error
}

func (s stubRegisterService) Register(ctx context.Context, req auth.RegisterRequest) (*users.UserDTO, error) {
	return s.user, s.err
}

type stubAdminRegisterService struct {
	user *users.UserDTO
	err  error
}

func (s stubAdminRegisterService) Register(ctx context.Context, req auth.AdminRegisterRequest) (*users.UserDTO, error) {
	return s.user, s.err
}

func TestAuthLoginReturnsChallenge(t *testing.T) {
	svc := stubAuthService{
		loginFn: func(ctx context.Context, req auth.LoginRequest) (*auth.LoginChallenge, error) {
			if req.Identity != "alice" || req.Secret != "hunter22" {
				t.Fatalf("unexpected request %+v", req)
			}
			return &auth.LoginChallenge{SessionID: "sess-1", ExpiresIn: 300}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"identity":"alice","secret":"hunter22"}`))
	resp := httptest.NewRecorder()
	AuthLogin(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var challenge auth.LoginChallenge
	if err := json.Unmarshal(decodeEnvelope(t, resp).Data, &challenge); err != nil {
		t.Fatalf("decode challenge: %v", err)
	}
	if challenge.SessionID != "sess-1" || challenge.ExpiresIn != 300 {
		t.Fatalf("unexpected challenge %+v", challenge)
	}
}

func TestAuthLoginValidation(t *testing.T) {
	svc := stubAuthService{
		loginFn: func(ctx context.Context, req auth.LoginRequest) (*auth.LoginChallenge, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"identity":"alice"}`))
	resp := httptest.NewRecorder()
	AuthLogin(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	env := decodeEnvelope(t, resp)
	if env.Errors[0].Code != string(pkgerrors.CodeValidation) {
		t.Fatalf("unexpected code %s", env.Errors[0].Code)
	}
	if env.Errors[0].Details["secret"] != "is required" {
		t.Fatalf("expected secret detail, got %v", env.Errors[0].Details)
	}
}

func TestAuthLoginFailureIsUnauthorized(t *testing.T) {
	svc := stubAuthService{
		loginFn: func(ctx context.Context, req auth.LoginRequest) (*auth.LoginChallenge, error) {
			return nil, pkgerrors.New(pkgerrors.CodeAuthFailure, "invalid credentials")
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"identity":"alice","secret":"nope"}`))
	resp := httptest.NewRecorder()
	AuthLogin(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != string(pkgerrors.CodeAuthFailure) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestAuthVerifyLoginReturnsGrant(t *testing.T) {
	userID := uuid.New()
	svc := stubAuthService{
		verifyFn: func(ctx context.Context, req auth.VerifyLoginRequest) (*auth.LoginResponse, error) {
			if req.SessionID != "sess-1" || req.Code != "123456" {
				t.Fatalf("unexpected request %+v", req)
			}
			return &auth.LoginResponse{
				User: &users.UserDTO{ID: userID, Role: enums.RoleBuyer},
				Grant: &session.Grant{
					AccessToken:  "access",
					RefreshToken: "refresh",
					TokenType:    "Bearer",
				},
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login/verify", strings.NewReader(`{"session_id":"sess-1","code":"123456"}`))
	resp := httptest.NewRecorder()
	AuthVerifyLogin(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var payload struct {
		User  users.UserDTO `json:"user"`
		Grant struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		} `json:"access_grant"`
	}
	if err := json.Unmarshal(decodeEnvelope(t, resp).Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.User.ID != userID || payload.Grant.AccessToken != "access" || payload.Grant.RefreshToken != "refresh" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestAuthVerifyLoginRejectsNonNumericCode(t *testing.T) {
	svc := stubAuthService{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login/verify", strings.NewReader(`{"session_id":"sess-1","code":"12ab56"}`))
	resp := httptest.NewRecorder()
	AuthVerifyLogin(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAuthRefreshMapsInvalidCredential(t *testing.T) {
	svc := stubAuthService{
		refreshFn: func(ctx context.Context, credential string) (*auth.RefreshResponse, error) {
			if credential != "stale" {
				t.Fatalf("unexpected credential %s", credential)
			}
			return nil, pkgerrors.New(pkgerrors.CodeInvalidRefresh, "refresh credential is invalid or expired")
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token/refresh", strings.NewReader(`{"refresh_credential":"stale"}`))
	resp := httptest.NewRecorder()
	AuthRefresh(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != string(pkgerrors.CodeInvalidRefresh) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestAuthRefreshReturnsRotatedGrant(t *testing.T) {
	expires := time.Now().Add(time.Hour).UTC()
	svc := stubAuthService{
		refreshFn: func(ctx context.Context, credential string) (*auth.RefreshResponse, error) {
			return &auth.RefreshResponse{Grant: &session.Grant{AccessToken: "a2", RefreshToken: "r2", AccessExpiresAt: expires}}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token/refresh", strings.NewReader(`{"refresh_credential":"r1"}`))
	resp := httptest.NewRecorder()
	AuthRefresh(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"refresh_token":"r2"`) {
		t.Fatalf("expected rotated credential, got %s", resp.Body.String())
	}
}

func TestAuthLogoutUsesAccessIDFromContext(t *testing.T) {
	var revoked string
	svc := stubAuthService{
		logoutFn: func(ctx context.Context, accessID string) error {
			revoked = accessID
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req = req.WithContext(middleware.WithAccessID(req.Context(), "jti-1"))
	resp := httptest.NewRecorder()
	AuthLogout(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if revoked != "jti-1" {
		t.Fatalf("expected jti-1 revoked, got %q", revoked)
	}
}

func TestAuthRegisterCreated(t *testing.T) {
	userID := uuid.New()
	svc := stubRegisterService{user: &users.UserDTO{ID: userID, Username: "bob", Role: enums.RoleBuyer}}

	body := `{"username":"bob","email":"bob@example.com","password":"longenough","first_name":"Bob","last_name":"Buyer","role":"buyer"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(body))
	resp := httptest.NewRecorder()
	AuthRegister(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", resp.Code, resp.Body.String())
	}
	var user users.UserDTO
	if err := json.Unmarshal(decodeEnvelope(t, resp).Data, &user); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	if user.ID != userID {
		t.Fatalf("unexpected user %+v", user)
	}
}

func TestAuthRegisterRejectsPrivilegedRole(t *testing.T) {
	svc := stubRegisterService{}
	body := `{"username":"eve","email":"eve@example.com","password":"longenough","first_name":"Eve","last_name":"X","role":"agent"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(body))
	resp := httptest.NewRecorder()
	AuthRegister(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	env := decodeEnvelope(t, resp)
	if env.Errors[0].Details["role"] != "must be one of buyer vendor" {
		t.Fatalf("unexpected details %v", env.Errors[0].Details)
	}
}

func TestAuthRegisterConflict(t *testing.T) {
	svc := stubRegisterService{err: pkgerrors.New(pkgerrors.CodeConflict, "username or email already registered")}
	body := `{"username":"bob","email":"bob@example.com","password":"longenough","first_name":"Bob","last_name":"Buyer","role":"vendor"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(body))
	resp := httptest.NewRecorder()
	AuthRegister(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestAdminRegisterUserCreated(t *testing.T) {
	svc := stubAdminRegisterService{user: &users.UserDTO{ID: uuid.New(), Role: enums.RoleAgent}}
	body := `{"username":"agent1","email":"agent@example.com","password":"longenough","first_name":"Ann","last_name":"Agent","role":"agent"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/users", strings.NewReader(body))
	resp := httptest.NewRecorder()
	AdminRegisterUser(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", resp.Code, resp.Body.String())
	}
}

func TestAuthHandlersWithoutService(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	AuthLogin(nil, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}
