package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"famfinance/internal/models"
	"famfinance/internal/testutil"
)

func TestResolveContextProvisionsDefaultFamilyOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, h.db, "Dana")
	id := Identity{UserID: user.ID, Email: user.Email}

	first, err := h.access.ResolveContext(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, first.Family.Role)
	assert.Equal(t, "Dana's Family", first.Family.Name)
	assert.Equal(t, user.ID, first.User.ID)

	second, err := h.access.ResolveContext(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, first.Family.ID, second.Family.ID)

	assert.Equal(t, 1, h.count(t, "SELECT COUNT(*) FROM families WHERE created_by = ?", user.ID))
	assert.Equal(t, 1, h.count(t, "SELECT COUNT(*) FROM family_members WHERE user_id = ? AND role = 'ADMIN'", user.ID))
}

func TestResolveContextConcurrentProvisioning(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, h.db, "Eli")
	id := Identity{UserID: user.ID, Email: user.Email}

	const callers = 8
	familyIDs := make([]int64, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ac, err := h.access.ResolveContext(ctx, id)
			errs[i] = err
			if err == nil {
				familyIDs[i] = ac.Family.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, familyIDs[0], familyIDs[i])
	}
	assert.Equal(t, 1, h.count(t, "SELECT COUNT(*) FROM families WHERE created_by = ?", user.ID))
	assert.Equal(t, 1, h.count(t, "SELECT COUNT(*) FROM family_members WHERE user_id = ?", user.ID))
}

func TestResolveContextAfterRemovalProvisionsNewFamily(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, h.db, "Hal")
	other := testutil.CreateUser(t, h.db, "Ivy")
	id := Identity{UserID: user.ID, Email: user.Email}

	first, err := h.access.ResolveContext(ctx, id)
	require.NoError(t, err)
	testutil.AddMember(t, h.db, first.Family.ID, other, models.RoleAdmin, time.Now().UTC())
	require.NoError(t, h.family.RemoveMember(ctx, first.Family.ID, user.ID))

	after, err := h.access.ResolveContext(ctx, id)
	require.NoError(t, err)
	assert.NotEqual(t, first.Family.ID, after.Family.ID, "the removed user must not be handed the old family back")
	assert.Equal(t, models.RoleAdmin, after.Family.Role)

	fc, err := h.access.ValidateFamilyPermission(ctx, user.ID, first.Family.ID, models.PermissionRead)
	require.NoError(t, err)
	assert.Nil(t, fc)

	again, err := h.access.ResolveContext(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, after.Family.ID, again.Family.ID)
	assert.Equal(t, 1, h.count(t, "SELECT COUNT(*) FROM families WHERE default_for_user_id = ?", user.ID))
}

func TestResolveContextPicksOldestMembership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, h.db, "Owner")
	user := testutil.CreateUser(t, h.db, "Fran")

	newer := testutil.CreateFamily(t, h.db, "Newer", owner)
	older := testutil.CreateFamily(t, h.db, "Older", owner)
	base := time.Now().UTC()
	testutil.AddMember(t, h.db, newer, user, models.RoleMember, base)
	testutil.AddMember(t, h.db, older, user, models.RoleViewer, base.Add(-48*time.Hour))

	ac, err := h.access.ResolveContext(ctx, Identity{UserID: user.ID, Email: user.Email})
	require.NoError(t, err)
	assert.Equal(t, older, ac.Family.ID)
	assert.Equal(t, "Older", ac.Family.Name)
	assert.Equal(t, models.RoleViewer, ac.Family.Role)
}

func TestResolveContextUnknownUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.access.ResolveContext(ctx, Identity{UserID: 99, Email: "ghost@example.com"})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = h.access.Require(ctx, Identity{UserID: 99, Email: "ghost@example.com"}, models.PermissionRead)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.access.Require(ctx, Identity{}, models.PermissionRead)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestResolveContextRejectsMismatchedSubject(t *testing.T) {
	h := newHarness(t)
	user := testutil.CreateUser(t, h.db, "Gus")

	_, err := h.access.ResolveContext(context.Background(), Identity{UserID: user.ID + 1000, Email: user.Email})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestRequirePermission(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, h.db, "Owner")
	familyID := testutil.CreateFamily(t, h.db, "Household", owner)

	tests := []struct {
		role    models.Role
		perm    models.Permission
		allowed bool
	}{
		{models.RoleAdmin, models.PermissionAdmin, true},
		{models.RoleMember, models.PermissionWrite, true},
		{models.RoleMember, models.PermissionAdmin, false},
		{models.RoleViewer, models.PermissionRead, true},
		{models.RoleViewer, models.PermissionWrite, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.perm), func(t *testing.T) {
			user := testutil.CreateUser(t, h.db, "Member")
			testutil.AddMember(t, h.db, familyID, user, tt.role, time.Now().UTC())

			ac, err := h.access.Require(ctx, Identity{UserID: user.ID, Email: user.Email}, tt.perm)
			if !tt.allowed {
				assert.ErrorIs(t, err, ErrUnauthorized)
				assert.Nil(t, ac)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, familyID, ac.Family.ID)
			assert.Equal(t, tt.role, ac.Family.Role)
		})
	}
}

func TestValidateFamilyPermission(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, h.db, "Owner")
	member := testutil.CreateUser(t, h.db, "Member")
	outsider := testutil.CreateUser(t, h.db, "Outsider")
	familyID := testutil.CreateFamily(t, h.db, "Household", owner)
	testutil.AddMember(t, h.db, familyID, member, models.RoleMember, time.Now().UTC())

	fc, err := h.access.ValidateFamilyPermission(ctx, owner.ID, familyID, models.PermissionAdmin)
	require.NoError(t, err)
	require.NotNil(t, fc)
	assert.Equal(t, "Household", fc.Name)

	fc, err = h.access.ValidateFamilyPermission(ctx, member.ID, familyID, models.PermissionAdmin)
	require.NoError(t, err)
	assert.Nil(t, fc)

	fc, err = h.access.ValidateFamilyPermission(ctx, outsider.ID, familyID, models.PermissionRead)
	require.NoError(t, err)
	assert.Nil(t, fc)

	_, err = h.families.DeactivateMember(ctx, familyID, member.ID, time.Now())
	require.NoError(t, err)
	fc, err = h.access.ValidateFamilyPermission(ctx, member.ID, familyID, models.PermissionRead)
	require.NoError(t, err)
	assert.Nil(t, fc, "inactive memberships grant nothing")

	_, err = h.access.RequireFamily(ctx, Identity{UserID: outsider.ID, Email: outsider.Email}, familyID, models.PermissionRead)
	assert.ErrorIs(t, err, ErrUnauthorized)
}
