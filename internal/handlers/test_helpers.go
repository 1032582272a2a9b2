package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/wazgo/internal/auth"
	"github.com/BradenHooton/wazgo/internal/models"
	"github.com/BradenHooton/wazgo/internal/services"
	"github.com/BradenHooton/wazgo/internal/session"
	pkghttp "github.com/BradenHooton/wazgo/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithSession attaches sess to the request as the session middleware would
func WithSession(req *http.Request, sess *session.Session) *http.Request {
	return req.WithContext(session.WithSession(req.Context(), sess))
}

// SignedInSession returns an authenticated session for accountID
func SignedInSession(accountID, email string) *session.Session {
	sess := &session.Session{Token: "test-token"}
	sess.State.Authenticate(session.Identity{AccountID: accountID, Email: email, Role: models.RoleAdmin})
	return sess
}

// WithURLParam sets a chi route parameter on the request
func WithURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockLoginService implements LoginServiceInterface for testing
type MockLoginService struct {
	LoginFunc  func(ctx context.Context, sess *session.Session, email, password string) (*services.LoginResult, error)
	LogoutFunc func(ctx context.Context, sess *session.Session) error
}

func (m *MockLoginService) Login(ctx context.Context, sess *session.Session, email, password string) (*services.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, sess, email, password)
}

func (m *MockLoginService) Logout(ctx context.Context, sess *session.Session) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, sess)
}

// MockPasswordService implements PasswordServiceInterface for testing
type MockPasswordService struct {
	RequestChangeFunc func(ctx context.Context, sess *session.Session, currentPassword, newPassword, confirmPassword string) (services.PasswordChangeOutcome, error)
}

func (m *MockPasswordService) RequestChange(ctx context.Context, sess *session.Session, currentPassword, newPassword, confirmPassword string) (services.PasswordChangeOutcome, error) {
	if m.RequestChangeFunc == nil {
		return services.PasswordChanged, nil
	}
	return m.RequestChangeFunc(ctx, sess, currentPassword, newPassword, confirmPassword)
}

// MockCSRFIssuer implements CSRFTokenIssuer for testing
type MockCSRFIssuer struct {
	Token string
	Err   error
}

func (m *MockCSRFIssuer) EnsureCSRFToken(ctx context.Context, s *session.Session) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	s.State.CSRFToken = m.Token
	return m.Token, nil
}

// MockTwoFactorService implements TwoFactorServiceInterface for testing
type MockTwoFactorService struct {
	BeginSetupFunc              func(ctx context.Context, sess *session.Session) (*auth.Enrollment, error)
	ConfirmEnableFunc           func(ctx context.Context, sess *session.Session, code string) error
	DisableFunc                 func(ctx context.Context, sess *session.Session, code string) error
	VerifyForLoginFunc          func(ctx context.Context, sess *session.Session, code string) (*session.Identity, error)
	VerifyForPasswordChangeFunc func(ctx context.Context, sess *session.Session, code string) error
}

func (m *MockTwoFactorService) BeginSetup(ctx context.Context, sess *session.Session) (*auth.Enrollment, error) {
	if m.BeginSetupFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.BeginSetupFunc(ctx, sess)
}

func (m *MockTwoFactorService) ConfirmEnable(ctx context.Context, sess *session.Session, code string) error {
	if m.ConfirmEnableFunc == nil {
		return nil
	}
	return m.ConfirmEnableFunc(ctx, sess, code)
}

func (m *MockTwoFactorService) Disable(ctx context.Context, sess *session.Session, code string) error {
	if m.DisableFunc == nil {
		return nil
	}
	return m.DisableFunc(ctx, sess, code)
}

func (m *MockTwoFactorService) VerifyForLogin(ctx context.Context, sess *session.Session, code string) (*session.Identity, error) {
	if m.VerifyForLoginFunc == nil {
		return nil, models.ErrNoPendingTwoFactor
	}
	return m.VerifyForLoginFunc(ctx, sess, code)
}

func (m *MockTwoFactorService) VerifyForPasswordChange(ctx context.Context, sess *session.Session, code string) error {
	if m.VerifyForPasswordChangeFunc == nil {
		return models.ErrNoPendingPasswordChg
	}
	return m.VerifyForPasswordChangeFunc(ctx, sess, code)
}

// MockAdminService implements AdminServiceInterface for testing
type MockAdminService struct {
	EnterFunc       func(ctx context.Context, sess *session.Session) (bool, error)
	LoginFunc       func(ctx context.Context, sess *session.Session, password string) error
	LogoutFunc      func(ctx context.Context, sess *session.Session) error
	ListAdminsFunc  func(ctx context.Context, sess *session.Session) ([]models.AdminSummary, error)
	CreateAdminFunc func(ctx context.Context, sess *session.Session, email, password string, isMainAdmin bool) (*models.AdminSummary, error)
	DeleteAdminFunc func(ctx context.Context, sess *session.Session, id string) error
}

func (m *MockAdminService) Enter(ctx context.Context, sess *session.Session) (bool, error) {
	if m.EnterFunc == nil {
		return false, models.ErrAccessDenied
	}
	return m.EnterFunc(ctx, sess)
}

func (m *MockAdminService) Login(ctx context.Context, sess *session.Session, password string) error {
	if m.LoginFunc == nil {
		return models.ErrAccessDenied
	}
	return m.LoginFunc(ctx, sess, password)
}

func (m *MockAdminService) Logout(ctx context.Context, sess *session.Session) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, sess)
}

func (m *MockAdminService) ListAdmins(ctx context.Context, sess *session.Session) ([]models.AdminSummary, error) {
	if m.ListAdminsFunc == nil {
		return nil, models.ErrAccessDenied
	}
	return m.ListAdminsFunc(ctx, sess)
}

func (m *MockAdminService) CreateAdmin(ctx context.Context, sess *session.Session, email, password string, isMainAdmin bool) (*models.AdminSummary, error) {
	if m.CreateAdminFunc == nil {
		return nil, models.ErrAccessDenied
	}
	return m.CreateAdminFunc(ctx, sess, email, password, isMainAdmin)
}

func (m *MockAdminService) DeleteAdmin(ctx context.Context, sess *session.Session, id string) error {
	if m.DeleteAdminFunc == nil {
		return models.ErrAccessDenied
	}
	return m.DeleteAdminFunc(ctx, sess, id)
}
