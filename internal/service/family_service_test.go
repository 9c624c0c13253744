package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"famfinance/internal/models"
	"famfinance/internal/testutil"
)

type familyFixture struct {
	admin   *models.User
	invitee *models.User
	family  models.FamilyContext
}

func setupFamily(t *testing.T, h *harness) familyFixture {
	t.Helper()
	admin := testutil.CreateUser(t, h.db, "Alex")
	invitee := testutil.CreateUser(t, h.db, "Blake")
	familyID := testutil.CreateFamily(t, h.db, "The Smiths", admin)
	return familyFixture{
		admin:   admin,
		invitee: invitee,
		family:  models.FamilyContext{ID: familyID, Name: "The Smiths", Role: models.RoleAdmin},
	}
}

func TestCreateFamily(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, h.db, "Casey")

	family, err := h.family.CreateFamily(ctx, user.ID, "  Lake House ")
	require.NoError(t, err)
	assert.Equal(t, "Lake House", family.Name)

	memberships, err := h.family.ListFamilies(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, memberships, 1)
	assert.Equal(t, models.RoleAdmin, memberships[0].Role)

	_, err = h.family.CreateFamily(ctx, user.ID, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestInviteQueuesEmail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	f := setupFamily(t, h)

	inv, err := h.family.Invite(ctx, f.admin, f.family, " "+strings.ToUpper(f.invitee.Email)+" ", models.RoleMember)
	require.NoError(t, err)
	assert.Equal(t, f.invitee.Email, inv.Email)
	assert.Len(t, inv.Token, 64)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), inv.ExpiresAt, time.Minute)

	stats, err := h.queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[models.EmailPending])

	jobs, err := h.jobs.ListDueJobs(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, f.invitee.Email, jobs[0].To)
	assert.Contains(t, jobs[0].HTML, "/invitations/accept?token="+inv.Token)

	pending, err := h.family.ListInvitations(ctx, f.family.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Alex", pending[0].InviterName)
}

func TestInviteConflicts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	f := setupFamily(t, h)

	_, err := h.family.Invite(ctx, f.admin, f.family, f.admin.Email, models.RoleMember)
	assert.ErrorIs(t, err, ErrAlreadyMember)

	_, err = h.family.Invite(ctx, f.admin, f.family, f.invitee.Email, models.RoleViewer)
	require.NoError(t, err)
	_, err = h.family.Invite(ctx, f.admin, f.family, f.invitee.Email, models.RoleViewer)
	assert.ErrorIs(t, err, ErrInvitationPending)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = h.family.Invite(ctx, f.admin, f.family, "not-an-email", models.RoleMember)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = h.family.Invite(ctx, f.admin, f.family, "someone@example.com", models.Role("OWNER"))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAcceptInvitation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	f := setupFamily(t, h)

	inv, err := h.family.Invite(ctx, f.admin, f.family, f.invitee.Email, models.RoleViewer)
	require.NoError(t, err)

	fc, err := h.family.AcceptInvitation(ctx, f.invitee, inv.Token)
	require.NoError(t, err)
	assert.Equal(t, f.family.ID, fc.ID)
	assert.Equal(t, "The Smiths", fc.Name)
	assert.Equal(t, models.RoleViewer, fc.Role)

	member, err := h.families.GetMembership(ctx, f.family.ID, f.invitee.ID)
	require.NoError(t, err)
	require.NotNil(t, member)
	assert.True(t, member.IsActive)
	assert.Equal(t, models.RoleViewer, member.Role)

	stored, err := h.family.GetInvitation(ctx, inv.Token)
	require.NoError(t, err)
	assert.True(t, stored.IsAccepted())
	require.NotNil(t, stored.AcceptedBy)
	assert.Equal(t, f.invitee.ID, *stored.AcceptedBy)

	_, err = h.family.AcceptInvitation(ctx, f.invitee, inv.Token)
	assert.ErrorIs(t, err, ErrInvitationAccepted)
}

func TestAcceptInvitationFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	f := setupFamily(t, h)
	stranger := testutil.CreateUser(t, h.db, "Stranger")

	inv, err := h.family.Invite(ctx, f.admin, f.family, f.invitee.Email, models.RoleMember)
	require.NoError(t, err)

	_, err = h.family.AcceptInvitation(ctx, f.invitee, "no-such-token")
	assert.ErrorIs(t, err, ErrInvitationNotFound)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.family.AcceptInvitation(ctx, stranger, inv.Token)
	assert.ErrorIs(t, err, ErrInvitationEmailMismatch)
	assert.ErrorIs(t, err, ErrForbidden)

	h.family.now = fixedClock(time.Now().Add(8 * 24 * time.Hour))
	_, err = h.family.AcceptInvitation(ctx, f.invitee, inv.Token)
	assert.ErrorIs(t, err, ErrInvitationExpired)

	member, err := h.families.GetMembership(ctx, f.family.ID, f.invitee.ID)
	require.NoError(t, err)
	assert.Nil(t, member, "a rejected acceptance creates no membership")

	deleted, err := h.family.CleanupExpiredInvitations(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestAcceptInvitationRejoinsAfterLeaving(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	f := setupFamily(t, h)
	testutil.AddMember(t, h.db, f.family.ID, f.invitee, models.RoleMember, time.Now().UTC())
	require.NoError(t, h.family.Leave(ctx, f.family.ID, f.invitee.ID))

	inv, err := h.family.Invite(ctx, f.admin, f.family, f.invitee.Email, models.RoleAdmin)
	require.NoError(t, err)
	_, err = h.family.AcceptInvitation(ctx, f.invitee, inv.Token)
	require.NoError(t, err)

	assert.Equal(t, 1, h.count(t, "SELECT COUNT(*) FROM family_members WHERE family_id = ? AND user_id = ?", f.family.ID, f.invitee.ID))
	member, err := h.families.GetMembership(ctx, f.family.ID, f.invitee.ID)
	require.NoError(t, err)
	assert.True(t, member.IsActive)
	assert.Equal(t, models.RoleAdmin, member.Role)
	assert.Nil(t, member.LeftAt)
}

func TestLastAdminIsProtected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	f := setupFamily(t, h)
	testutil.AddMember(t, h.db, f.family.ID, f.invitee, models.RoleMember, time.Now().UTC())

	err := h.family.RemoveMember(ctx, f.family.ID, f.admin.ID)
	assert.ErrorIs(t, err, ErrLastAdmin)
	err = h.family.ChangeRole(ctx, f.family.ID, f.admin.ID, models.RoleViewer)
	assert.ErrorIs(t, err, ErrLastAdmin)

	require.NoError(t, h.family.ChangeRole(ctx, f.family.ID, f.invitee.ID, models.RoleAdmin))
	require.NoError(t, h.family.ChangeRole(ctx, f.family.ID, f.admin.ID, models.RoleMember))

	admins, err := h.families.CountActiveAdmins(ctx, f.family.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, admins)
}

func TestRemoveMemberKeepsRow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	f := setupFamily(t, h)
	testutil.AddMember(t, h.db, f.family.ID, f.invitee, models.RoleMember, time.Now().UTC())

	require.NoError(t, h.family.RemoveMember(ctx, f.family.ID, f.invitee.ID))

	member, err := h.families.GetMembership(ctx, f.family.ID, f.invitee.ID)
	require.NoError(t, err)
	require.NotNil(t, member)
	assert.False(t, member.IsActive)
	assert.NotNil(t, member.LeftAt)

	members, err := h.family.ListMembers(ctx, f.family.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, f.admin.ID, members[0].UserID)

	err = h.family.RemoveMember(ctx, f.family.ID, f.invitee.ID)
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestRevokeInvitation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	f := setupFamily(t, h)

	inv, err := h.family.Invite(ctx, f.admin, f.family, f.invitee.Email, models.RoleMember)
	require.NoError(t, err)

	assert.ErrorIs(t, h.family.RevokeInvitation(ctx, f.family.ID+1, inv.ID), ErrInvitationNotFound)
	require.NoError(t, h.family.RevokeInvitation(ctx, f.family.ID, inv.ID))

	_, err = h.family.AcceptInvitation(ctx, f.invitee, inv.Token)
	assert.ErrorIs(t, err, ErrInvitationNotFound)
}
