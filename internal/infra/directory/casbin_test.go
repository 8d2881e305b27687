package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDirectory(t *testing.T) *Casbin {
	t.Helper()
	d, err := NewCasbin("", "")
	require.NoError(t, err)

	require.NoError(t, d.AddPermission("Admin", "approval.review"))
	require.NoError(t, d.AddPermission("Admin", "product.create.direct"))
	require.NoError(t, d.AddPermission("Clerk", "product.create"))
	require.NoError(t, d.AddRoleForUser("alice", "Admin"))
	require.NoError(t, d.AddRoleForUser("bob", "Admin"))
	require.NoError(t, d.AddRoleForUser("carol", "Clerk"))
	return d
}

func TestUsersForRole(t *testing.T) {
	d := newDirectory(t)

	users, err := d.UsersForRole(context.Background(), "Admin")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, users)

	users, err = d.UsersForRole(context.Background(), "Nobody")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestPermissionsFor(t *testing.T) {
	d := newDirectory(t)

	t.Run("role assigned in policy", func(t *testing.T) {
		perms, err := d.PermissionsFor(context.Background(), "alice", nil)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"approval.review", "product.create.direct"}, perms)
	})

	t.Run("role carried by token", func(t *testing.T) {
		perms, err := d.PermissionsFor(context.Background(), "dave", []string{"Clerk"})
		require.NoError(t, err)
		assert.Equal(t, []string{"product.create"}, perms)
	})

	t.Run("unknown user", func(t *testing.T) {
		perms, err := d.PermissionsFor(context.Background(), "eve", nil)
		require.NoError(t, err)
		assert.Empty(t, perms)
	})
}
