package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"famfinance/internal/database"
	"famfinance/internal/log"
	"famfinance/internal/models"
	"famfinance/internal/repository"
	"famfinance/internal/validation"
)

// Identity is the authenticated caller as carried by the session
type Identity struct {
	UserID int64
	Email  string
}

// AccessService resolves the acting family and role for a request
type AccessService struct {
	db       *database.DB
	users    *repository.UserRepository
	families *repository.FamilyRepository
	logger   *log.Logger
	now      func() time.Time
}

// NewAccessService creates a new access service
func NewAccessService(db *database.DB, users *repository.UserRepository, families *repository.FamilyRepository, logger *log.Logger) *AccessService {
	return &AccessService{
		db:       db,
		users:    users,
		families: families,
		logger:   logger.WithComponent(log.ComponentAccess),
		now:      time.Now,
	}
}

// ResolveContext returns the caller's user row and primary family. A user with no active
// membership gets a family provisioned for them, exactly once.
func (s *AccessService) ResolveContext(ctx context.Context, id Identity) (*models.AccessContext, error) {
	if id.Email == "" {
		return nil, ErrUnauthenticated
	}

	user, err := s.users.GetUserByEmail(ctx, validation.NormalizeEmail(id.Email))
	if err != nil {
		return nil, err
	}
	if user == nil || (id.UserID != 0 && user.ID != id.UserID) {
		return nil, ErrUnauthenticated
	}

	family, err := s.primaryFamily(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if family == nil {
		family, err = s.provisionDefault(ctx, user)
		if err != nil {
			return nil, err
		}
	}

	return &models.AccessContext{User: user, Family: *family}, nil
}

// Require resolves the caller's context and checks perm against their role in the
// primary family. Every failure to authorize is reported as ErrUnauthorized.
func (s *AccessService) Require(ctx context.Context, id Identity, perm models.Permission) (*models.AccessContext, error) {
	ac, err := s.ResolveContext(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			s.logger.DebugContext(ctx, "access denied", log.FieldEmail, id.Email, "reason", "unknown user")
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if !ac.Family.Can(perm) {
		s.logger.DebugContext(ctx, "access denied",
			log.FieldUserID, ac.User.ID,
			log.FieldFamilyID, ac.Family.ID,
			"role", ac.Family.Role,
			"permission", perm)
		return nil, ErrUnauthorized
	}
	return ac, nil
}

// ValidateFamilyPermission derives the user's role in an explicit family. It returns nil
// when the user is not an active member there or the role does not grant perm.
func (s *AccessService) ValidateFamilyPermission(ctx context.Context, userID, familyID int64, perm models.Permission) (*models.FamilyContext, error) {
	member, err := s.families.GetMembership(ctx, familyID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil || !member.IsActive || !member.Role.Can(perm) {
		return nil, nil
	}

	family, err := s.families.GetFamilyByID(ctx, familyID)
	if err != nil {
		return nil, err
	}
	if family == nil {
		return nil, nil
	}
	return &models.FamilyContext{ID: family.ID, Name: family.Name, Role: member.Role}, nil
}

// RequireFamily is ValidateFamilyPermission for a session identity, failing with
// ErrUnauthorized instead of returning nil.
func (s *AccessService) RequireFamily(ctx context.Context, id Identity, familyID int64, perm models.Permission) (*models.AccessContext, error) {
	ac, err := s.ResolveContext(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	fc, err := s.ValidateFamilyPermission(ctx, ac.User.ID, familyID, perm)
	if err != nil {
		return nil, err
	}
	if fc == nil {
		return nil, ErrUnauthorized
	}
	return &models.AccessContext{User: ac.User, Family: *fc}, nil
}

func (s *AccessService) primaryFamily(ctx context.Context, userID int64) (*models.FamilyContext, error) {
	memberships, err := s.families.ListActiveMemberships(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(memberships) == 0 {
		return nil, nil
	}
	m := memberships[0]
	return &models.FamilyContext{ID: m.ID, Name: m.Name, Role: m.Role}, nil
}

// provisionDefault creates the user's default family and ADMIN membership in one
// transaction. Losing a provisioning race surfaces as a unique violation on
// default_for_user_id, after which the winner's family is read back.
func (s *AccessService) provisionDefault(ctx context.Context, user *models.User) (*models.FamilyContext, error) {
	now := s.now()
	var result *models.FamilyContext

	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		families := s.families.WithTx(tx)

		family, err := families.GetDefaultFamily(ctx, user.ID)
		if err != nil {
			return err
		}
		if family != nil {
			member, err := families.GetMembership(ctx, family.ID, user.ID)
			if err != nil {
				return err
			}
			if member != nil && member.IsActive {
				result = &models.FamilyContext{ID: family.ID, Name: family.Name, Role: member.Role}
				return nil
			}
			// The user left or was removed from their default family. It belongs to
			// its remaining members now and must not be handed back.
			if err := families.ReleaseDefaultFamily(ctx, family.ID, now); err != nil {
				return err
			}
		}

		family, err = families.CreateFamily(ctx, defaultFamilyName(user), user.ID, &user.ID, now)
		if err != nil {
			return err
		}

		if err := families.AddMember(ctx, family.ID, user.ID, models.RoleAdmin, now); err != nil {
			return err
		}
		result = &models.FamilyContext{ID: family.ID, Name: family.Name, Role: models.RoleAdmin}
		return nil
	})
	if err == nil {
		s.logger.InfoContext(ctx, "provisioned default family",
			log.FieldUserID, user.ID,
			log.FieldFamilyID, result.ID)
		return result, nil
	}
	if !s.families.IsUniqueViolation(err) {
		return nil, fmt.Errorf("failed to provision default family: %w", err)
	}

	s.logger.DebugContext(ctx, "default family provisioned concurrently", log.FieldUserID, user.ID)
	family, err := s.primaryFamily(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if family == nil {
		return nil, fmt.Errorf("failed to provision default family: no membership after conflict")
	}
	return family, nil
}

func defaultFamilyName(user *models.User) string {
	if user.Name == "" {
		return "My Family"
	}
	return user.Name + "'s Family"
}
