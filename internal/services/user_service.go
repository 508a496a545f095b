package services

import (
	"context"
	"database/sql"
	"errors"

	"aprenda/internal/models"
	"aprenda/internal/observability"
	contextutils "aprenda/internal/utils"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"
)

// UserService defines user account operations
type UserService interface {
	// CreateUser creates a user with a bcrypt-hashed password
	CreateUser(ctx context.Context, name, email, password string) (*models.User, error)

	// GetUserByID retrieves a user by ID
	GetUserByID(ctx context.Context, userID int) (*models.User, error)

	// GetUserByEmail retrieves a user by email, or nil if none exists
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// AuthenticateUser verifies credentials and returns the user on success
	AuthenticateUser(ctx context.Context, email, password string) (*models.User, error)

	// ListUsers returns all users ordered by ID
	ListUsers(ctx context.Context) ([]*models.User, error)

	// UpdateLastActive stamps the user's last_active time
	UpdateLastActive(ctx context.Context, userID int) error
}

// UserServiceImpl implements UserService
type UserServiceImpl struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewUserService creates a new user service
func NewUserService(db *sql.DB, logger *observability.Logger) UserService {
	return &UserServiceImpl{
		db:     db,
		logger: logger,
	}
}

const userColumns = `id, name, email, password_hash, last_active, created_at, updated_at`

// CreateUser creates a user with a bcrypt-hashed password
func (s *UserServiceImpl) CreateUser(ctx context.Context, name, email, password string) (result *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "create_user",
		attribute.String("user.email", email),
	)
	defer observability.FinishSpan(span, &err)

	if name == "" || email == "" {
		return nil, contextutils.NewAppError(contextutils.ErrorCodeMissingRequired, contextutils.SeverityWarn, "name and email are required", "")
	}
	if !contextutils.IsValidEmail(email) {
		return nil, contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn, "invalid email address", email)
	}

	var passwordHash sql.NullString
	if password != "" {
		hash, hashErr := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if hashErr != nil {
			err = contextutils.WrapError(hashErr, "failed to hash password")
			return nil, err
		}
		passwordHash = sql.NullString{String: string(hash), Valid: true}
	}

	user := &models.User{}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO users (name, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING `+userColumns+`
	`, name, email, passwordHash).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.LastActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return nil, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeRecordExists, contextutils.SeverityWarn, "user already exists", email, err)
		}
		err = contextutils.WrapError(err, "failed to create user")
		return nil, err
	}

	span.SetAttributes(observability.AttributeUserID(user.ID))
	s.logger.Info(ctx, "Created user", map[string]interface{}{
		"user_id": user.ID,
		"email":   email,
	})
	return user, nil
}

// GetUserByID retrieves a user by ID
func (s *UserServiceImpl) GetUserByID(ctx context.Context, userID int) (result *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_by_id",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	user, err := s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = $1
	`, userID))
	if err == sql.ErrNoRows {
		return nil, contextutils.ErrUserNotFound
	}
	if err != nil {
		err = contextutils.WrapError(err, "failed to query user")
		return nil, err
	}

	return user, nil
}

// GetUserByEmail retrieves a user by email, or nil if none exists
func (s *UserServiceImpl) GetUserByEmail(ctx context.Context, email string) (result *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_by_email",
		attribute.String("user.email", email),
	)
	defer observability.FinishSpan(span, &err)

	user, err := s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE email = $1
	`, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		err = contextutils.WrapError(err, "failed to query user by email")
		return nil, err
	}

	return user, nil
}

// AuthenticateUser verifies credentials and returns the user on success
func (s *UserServiceImpl) AuthenticateUser(ctx context.Context, email, password string) (result *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "authenticate_user",
		attribute.String("user.email", email),
	)
	defer observability.FinishSpan(span, &err)

	user, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.PasswordHash.Valid {
		return nil, contextutils.ErrUserNotFound
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash.String), []byte(password)) != nil {
		return nil, contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn, "invalid credentials", "")
	}

	if err = s.UpdateLastActive(ctx, user.ID); err != nil {
		return nil, err
	}

	return user, nil
}

// ListUsers returns all users ordered by ID
func (s *UserServiceImpl) ListUsers(ctx context.Context) (result []*models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "list_users")
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		err = contextutils.WrapError(err, "failed to query users")
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	var users []*models.User
	for rows.Next() {
		user, scanErr := s.scanUser(rows)
		if scanErr != nil {
			err = contextutils.WrapError(scanErr, "failed to scan user")
			return nil, err
		}
		users = append(users, user)
	}
	if err = rows.Err(); err != nil {
		err = contextutils.WrapError(err, "failed to iterate users")
		return nil, err
	}

	span.SetAttributes(attribute.Int("users.count", len(users)))
	return users, nil
}

// UpdateLastActive stamps the user's last_active time
func (s *UserServiceImpl) UpdateLastActive(ctx context.Context, userID int) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "update_last_active",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	_, err = s.db.ExecContext(ctx, `UPDATE users SET last_active = NOW(), updated_at = NOW() WHERE id = $1`, userID)
	if err != nil {
		err = contextutils.WrapError(err, "failed to update last active")
		return err
	}

	return nil
}

func (s *UserServiceImpl) scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.LastActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}
