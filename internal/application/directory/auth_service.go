package directory

import (
	"context"
	"time"

	"github.com/facturo/backend/internal/domain/directory"
	"github.com/facturo/backend/internal/domain/shared"
	"github.com/facturo/backend/internal/infrastructure/auth"
	"go.uber.org/zap"
)

// AuthConfig holds credential-issuance settings for the auth service
type AuthConfig struct {
	CredentialTTL time.Duration // 0 = issued credentials never expire
	BcryptCost    int
}

// DefaultAuthConfig returns the default auth service configuration
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		CredentialTTL: 12 * time.Hour,
		BcryptCost:    10,
	}
}

// AuthService handles registration, login and credential resolution against
// the landlord directory. It never touches tenant datastores: authentication
// is resolved entirely on the registry so an unauthenticated request cannot
// cause a tenant datastore bind.
type AuthService struct {
	userRepo   directory.UserRepository
	credRepo   directory.CredentialRepository
	tenantRepo directory.TenantRepository
	config     AuthConfig
	logger     *zap.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	userRepo directory.UserRepository,
	credRepo directory.CredentialRepository,
	tenantRepo directory.TenantRepository,
	config AuthConfig,
	logger *zap.Logger,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		userRepo:   userRepo,
		credRepo:   credRepo,
		tenantRepo: tenantRepo,
		config:     config,
		logger:     logger,
	}
}

// Register creates a directory user under the named tenant
func (s *AuthService) Register(ctx context.Context, req RegisterUserRequest) (*UserResponse, error) {
	tenant, err := s.tenantRepo.FindBySlug(ctx, req.TenantSlug)
	if err != nil {
		return nil, err
	}
	if !tenant.IsActive() {
		return nil, shared.ErrTenantInactive
	}

	exists, err := s.userRepo.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "A user with this email already exists")
	}

	passwordHash, err := auth.HashPassword(req.Password, s.config.BcryptCost)
	if err != nil {
		return nil, err
	}

	caps := directory.DefaultCapabilities
	if len(req.Capabilities) > 0 {
		caps = make(directory.CapabilitySet, len(req.Capabilities))
		for i, c := range req.Capabilities {
			caps[i] = directory.Capability(c)
		}
	}

	user, err := directory.NewDirectoryUser(req.Email, passwordHash, req.DisplayName, tenant.ID, caps)
	if err != nil {
		return nil, err
	}
	if err := s.userRepo.Save(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("Directory user registered",
		zap.String("user_id", user.ID.String()),
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("email", user.Email))

	response := ToUserResponse(user)
	return &response, nil
}

// Login verifies a password and issues a fresh opaque bearer credential.
// Unknown email and wrong password produce the same error so the endpoint
// does not leak which emails exist.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		s.logger.Warn("Login failed: unknown email", zap.String("email", req.Email))
		return nil, shared.ErrCredentialInvalid
	}
	if !user.Active {
		s.logger.Warn("Login failed: user deactivated", zap.String("user_id", user.ID.String()))
		return nil, shared.ErrCredentialInvalid
	}
	if err := auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		s.logger.Warn("Login failed: password mismatch", zap.String("user_id", user.ID.String()))
		return nil, shared.ErrCredentialInvalid
	}

	tenant, err := s.tenantRepo.FindByID(ctx, user.TenantID)
	if err != nil {
		return nil, err
	}
	if !tenant.IsActive() {
		s.logger.Warn("Login refused: tenant inactive",
			zap.String("user_id", user.ID.String()),
			zap.String("tenant_id", tenant.ID.String()))
		return nil, shared.ErrTenantInactive
	}

	raw, hash, prefix, err := auth.GenerateToken()
	if err != nil {
		return nil, err
	}
	cred, err := directory.NewAccessCredential(hash, prefix, tenant.ID, user.ID, user.CapabilitySet(), s.config.CredentialTTL)
	if err != nil {
		return nil, err
	}
	if err := s.credRepo.Save(ctx, cred); err != nil {
		return nil, err
	}

	user.RecordLogin()
	if err := s.userRepo.Save(ctx, user); err != nil {
		s.logger.Warn("Failed to stamp last login", zap.String("user_id", user.ID.String()), zap.Error(err))
	}

	s.logger.Info("Credential issued",
		zap.String("user_id", user.ID.String()),
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("token_prefix", prefix))

	caps := cred.CapabilitySet()
	capStrings := make([]string, len(caps))
	for i, c := range caps {
		capStrings[i] = string(c)
	}
	return &LoginResponse{
		Token:        raw,
		TokenPrefix:  prefix,
		ExpiresAt:    cred.ExpiresAt,
		TenantID:     tenant.ID,
		TenantSlug:   tenant.Slug,
		Capabilities: capStrings,
	}, nil
}

// Logout revokes the credential behind the given raw token. Revoking an
// already-revoked or unknown token is not an error.
func (s *AuthService) Logout(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return nil
	}
	return s.credRepo.RevokeByTokenHash(ctx, auth.HashToken(rawToken))
}

// ResolveCredential maps a raw bearer token to its tenant and credential.
// This is the single authentication entry point for the request pipeline.
func (s *AuthService) ResolveCredential(ctx context.Context, rawToken string) (*directory.Tenant, *directory.AccessCredential, error) {
	if rawToken == "" {
		return nil, nil, shared.ErrCredentialInvalid
	}

	cred, err := s.credRepo.FindByTokenHash(ctx, auth.HashToken(rawToken))
	if err != nil {
		s.logger.Warn("Credential resolution failed", zap.String("token_prefix", auth.SafePrefix(rawToken)))
		return nil, nil, shared.ErrCredentialInvalid
	}
	if err := cred.Validate(time.Now()); err != nil {
		s.logger.Warn("Credential rejected",
			zap.String("token_prefix", cred.TokenPrefix),
			zap.String("tenant_id", cred.TenantID.String()))
		return nil, nil, err
	}

	tenant, err := s.tenantRepo.FindByID(ctx, cred.TenantID)
	if err != nil {
		return nil, nil, err
	}
	if !tenant.IsActive() {
		return nil, nil, shared.ErrTenantInactive
	}

	return tenant, cred, nil
}

// ResolveSlug maps a host subdomain to its tenant. Browser traffic arrives
// on <slug>.<base domain> without a bearer token; the slug and the token
// resolve in the same tenant identity space.
func (s *AuthService) ResolveSlug(ctx context.Context, slug string) (*directory.Tenant, error) {
	tenant, err := s.tenantRepo.FindBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !tenant.IsActive() {
		return nil, shared.ErrTenantInactive
	}
	return tenant, nil
}

// PurgeExpiredCredentials deletes expired and revoked credential rows. Meant
// to run on a schedule alongside the router sweep.
func (s *AuthService) PurgeExpiredCredentials(ctx context.Context) (int64, error) {
	deleted, err := s.credRepo.DeleteExpired(ctx)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info("Expired credentials purged", zap.Int64("deleted", deleted))
	}
	return deleted, nil
}
