package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"famfinance/internal/database"
	"famfinance/internal/log"
	"famfinance/internal/models"
	"famfinance/internal/repository"
	"famfinance/internal/security"
	"famfinance/internal/validation"
)

const (
	defaultInvitationTTL = 7 * 24 * time.Hour
	invitationTokenBytes = 32
)

// Enqueuer queues an email for asynchronous delivery
type Enqueuer interface {
	Enqueue(ctx context.Context, msg Message) (*models.EmailJob, error)
}

// FamilyService handles families, memberships and invitations
type FamilyService struct {
	db            *database.DB
	families      *repository.FamilyRepository
	invitations   *repository.InvitationRepository
	queue         Enqueuer
	composer      *EmailComposer
	invitationTTL time.Duration
	logger        *log.Logger
	now           func() time.Time
}

// NewFamilyService creates a new family service
func NewFamilyService(db *database.DB, families *repository.FamilyRepository, invitations *repository.InvitationRepository,
	queue Enqueuer, composer *EmailComposer, invitationTTL time.Duration, logger *log.Logger) *FamilyService {
	if invitationTTL <= 0 {
		invitationTTL = defaultInvitationTTL
	}
	return &FamilyService{
		db:            db,
		families:      families,
		invitations:   invitations,
		queue:         queue,
		composer:      composer,
		invitationTTL: invitationTTL,
		logger:        logger.WithComponent(log.ComponentFamily),
		now:           time.Now,
	}
}

// CreateFamily creates a family with the creator as its ADMIN
func (s *FamilyService) CreateFamily(ctx context.Context, creatorUserID int64, name string) (*models.Family, error) {
	name = strings.TrimSpace(name)
	if err := validation.ValidateName(name); err != nil {
		return nil, invalid(err)
	}

	now := s.now()
	var family *models.Family
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		families := s.families.WithTx(tx)
		var err error
		family, err = families.CreateFamily(ctx, name, creatorUserID, nil, now)
		if err != nil {
			return err
		}
		return families.AddMember(ctx, family.ID, creatorUserID, models.RoleAdmin, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "family created", log.FieldFamilyID, family.ID, log.FieldUserID, creatorUserID)
	return family, nil
}

// ListFamilies returns every family the user is an active member of, oldest first
func (s *FamilyService) ListFamilies(ctx context.Context, userID int64) ([]models.FamilyMembership, error) {
	return s.families.ListActiveMemberships(ctx, userID)
}

// ListMembers returns the active members of a family
func (s *FamilyService) ListMembers(ctx context.Context, familyID int64) ([]models.MemberWithUser, error) {
	return s.families.ListMembers(ctx, familyID)
}

// RenameFamily changes a family's display name
func (s *FamilyService) RenameFamily(ctx context.Context, familyID int64, name string) error {
	name = strings.TrimSpace(name)
	if err := validation.ValidateName(name); err != nil {
		return invalid(err)
	}
	return s.families.RenameFamily(ctx, familyID, name, s.now())
}

// Invite creates an invitation for email to join the family with role and queues the
// invitation email. Callers must already hold admin permission on the family.
func (s *FamilyService) Invite(ctx context.Context, inviter *models.User, family models.FamilyContext, email string, role models.Role) (*models.FamilyInvitation, error) {
	email = validation.NormalizeEmail(email)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, invalid(err)
	}
	if !role.Valid() {
		return nil, invalid(validation.ValidationError{Field: "role", Message: "must be one of ADMIN, MEMBER, VIEWER"})
	}

	now := s.now()
	isMember, err := s.families.IsActiveMemberEmail(ctx, family.ID, email)
	if err != nil {
		return nil, err
	}
	if isMember {
		return nil, ErrAlreadyMember
	}
	pending, err := s.invitations.HasPendingInvitation(ctx, family.ID, email, now)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, ErrInvitationPending
	}

	token, err := security.GenerateSecureToken(invitationTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate invitation token: %w", err)
	}

	inv := &models.FamilyInvitation{
		FamilyID:    family.ID,
		Email:       email,
		Role:        role,
		Token:       token,
		InvitedBy:   inviter.ID,
		ExpiresAt:   now.Add(s.invitationTTL),
		CreatedAt:   now,
		FamilyName:  family.Name,
		InviterName: inviter.Name,
	}
	if err := s.invitations.CreateInvitation(ctx, inv); err != nil {
		return nil, err
	}

	msg, err := s.composer.Invitation(inv, family.Name, inviter.Name)
	if err == nil {
		_, err = s.queue.Enqueue(ctx, msg)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to queue invitation email",
			log.FieldFamilyID, family.ID,
			log.FieldEmail, email,
			log.FieldError, err)
	}

	s.logger.InfoContext(ctx, "invitation created",
		log.FieldFamilyID, family.ID,
		log.FieldUserID, inviter.ID,
		"role", role)
	return inv, nil
}

// GetInvitation looks up an invitation by token for display before acceptance
func (s *FamilyService) GetInvitation(ctx context.Context, token string) (*models.FamilyInvitation, error) {
	inv, err := s.invitations.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrInvitationNotFound
	}
	return inv, nil
}

// AcceptInvitation makes user a member of the inviting family. Marking the invitation
// accepted and creating the membership happen in one transaction.
func (s *FamilyService) AcceptInvitation(ctx context.Context, user *models.User, token string) (*models.FamilyContext, error) {
	inv, err := s.GetInvitation(ctx, token)
	if err != nil {
		return nil, err
	}

	now := s.now()
	switch {
	case inv.IsAccepted():
		return nil, ErrInvitationAccepted
	case inv.IsExpired(now):
		return nil, ErrInvitationExpired
	case validation.NormalizeEmail(user.Email) != validation.NormalizeEmail(inv.Email):
		return nil, ErrInvitationEmailMismatch
	}

	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		marked, err := s.invitations.WithTx(tx).MarkInvitationAccepted(ctx, inv.ID, user.ID, now)
		if err != nil {
			return err
		}
		if !marked {
			return ErrInvitationAccepted
		}

		families := s.families.WithTx(tx)
		member, err := families.GetMembership(ctx, inv.FamilyID, user.ID)
		if err != nil {
			return err
		}
		if member != nil && member.IsActive {
			return ErrAlreadyMember
		}
		return families.AddMember(ctx, inv.FamilyID, user.ID, inv.Role, now)
	})
	if err != nil {
		if s.families.IsUniqueViolation(err) {
			return nil, ErrAlreadyMember
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "invitation accepted",
		log.FieldFamilyID, inv.FamilyID,
		log.FieldUserID, user.ID,
		"role", inv.Role)
	return &models.FamilyContext{ID: inv.FamilyID, Name: inv.FamilyName, Role: inv.Role}, nil
}

// ListInvitations returns a family's pending invitations
func (s *FamilyService) ListInvitations(ctx context.Context, familyID int64) ([]models.FamilyInvitation, error) {
	return s.invitations.ListPendingInvitations(ctx, familyID, s.now())
}

// RevokeInvitation deletes an invitation of the family
func (s *FamilyService) RevokeInvitation(ctx context.Context, familyID, invitationID int64) error {
	deleted, err := s.invitations.DeleteInvitation(ctx, familyID, invitationID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrInvitationNotFound
	}
	return nil
}

// ChangeRole sets a member's role. The last active ADMIN cannot be demoted.
func (s *FamilyService) ChangeRole(ctx context.Context, familyID, userID int64, role models.Role) error {
	if !role.Valid() {
		return invalid(validation.ValidationError{Field: "role", Message: "must be one of ADMIN, MEMBER, VIEWER"})
	}

	return s.db.WithTx(ctx, func(tx *database.Tx) error {
		families := s.families.WithTx(tx)
		member, err := s.activeMember(ctx, families, familyID, userID)
		if err != nil {
			return err
		}
		if member.Role == role {
			return nil
		}
		if member.Role == models.RoleAdmin {
			if err := s.ensureOtherAdmin(ctx, families, familyID); err != nil {
				return err
			}
		}
		if _, err := families.UpdateRole(ctx, familyID, userID, role); err != nil {
			return err
		}
		s.logger.InfoContext(ctx, "member role changed",
			log.FieldFamilyID, familyID,
			log.FieldUserID, userID,
			"role", role)
		return nil
	})
}

// RemoveMember deactivates a membership. The row is kept with left_at set. The last
// active ADMIN cannot be removed.
func (s *FamilyService) RemoveMember(ctx context.Context, familyID, userID int64) error {
	return s.db.WithTx(ctx, func(tx *database.Tx) error {
		families := s.families.WithTx(tx)
		member, err := s.activeMember(ctx, families, familyID, userID)
		if err != nil {
			return err
		}
		if member.Role == models.RoleAdmin {
			if err := s.ensureOtherAdmin(ctx, families, familyID); err != nil {
				return err
			}
		}
		removed, err := families.DeactivateMember(ctx, familyID, userID, s.now())
		if err != nil {
			return err
		}
		if !removed {
			return ErrMemberNotFound
		}
		s.logger.InfoContext(ctx, "member removed", log.FieldFamilyID, familyID, log.FieldUserID, userID)
		return nil
	})
}

// Leave removes the caller from a family under the same rules as RemoveMember
func (s *FamilyService) Leave(ctx context.Context, familyID, userID int64) error {
	return s.RemoveMember(ctx, familyID, userID)
}

func (s *FamilyService) activeMember(ctx context.Context, families *repository.FamilyRepository, familyID, userID int64) (*models.FamilyMember, error) {
	member, err := families.GetMembership(ctx, familyID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil || !member.IsActive {
		return nil, ErrMemberNotFound
	}
	return member, nil
}

func (s *FamilyService) ensureOtherAdmin(ctx context.Context, families *repository.FamilyRepository, familyID int64) error {
	admins, err := families.CountActiveAdmins(ctx, familyID)
	if err != nil {
		return err
	}
	if admins <= 1 {
		return ErrLastAdmin
	}
	return nil
}

// CleanupExpiredInvitations deletes unaccepted invitations past their expiry
func (s *FamilyService) CleanupExpiredInvitations(ctx context.Context) (int64, error) {
	return s.invitations.DeleteExpiredInvitations(ctx, s.now())
}
