package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cargo-track/cargo_track/internal/docstore"
	"github.com/cargo-track/cargo_track/internal/identity"
)

func newUsers() *identity.Service {
	return identity.NewService(identity.NewStoreRepository(docstore.NewMemoryStore()), identity.WithHashCost(bcrypt.MinCost))
}

func TestCreateAdminAndDemote(t *testing.T) {
	ctx := context.Background()
	users := newUsers()

	u, err := createAdmin(ctx, users, identity.RegisterInput{FirstName: "Admin", LastName: "Root", FinCode: "adm0001", Password: "secret1"})
	require.NoError(t, err)
	assert.True(t, u.IsAdmin)
	assert.Equal(t, "ADM0001", u.FinCode)

	u, err = setAdmin(ctx, users, "adm0001", false)
	require.NoError(t, err)
	assert.False(t, u.IsAdmin)

	_, err = setAdmin(ctx, users, "NOP0000", true)
	assert.ErrorIs(t, err, identity.ErrUserNotFound)
}

func TestPrintUsers(t *testing.T) {
	var out bytes.Buffer
	printUsers(&out, []identity.User{
		{ID: "u1", FirstName: "Ivan", LastName: "Ivanov", FinCode: "ABC1234"},
		{ID: "u2", FirstName: "Admin", LastName: "Root", FinCode: "ADM0001", IsAdmin: true},
	})
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "ABC1234\tIvan Ivanov\tuser\tu1", lines[0])
	assert.Equal(t, "ADM0001\tAdmin Root\tadmin\tu2", lines[1])
}

func TestReadPasswordFromPipe(t *testing.T) {
	pw, err := readPassword(strings.NewReader("secret1\r\n"), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "secret1", pw)

	pw, err = readPassword(strings.NewReader("no-newline"), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "no-newline", pw)

	_, err = readPassword(strings.NewReader(""), &bytes.Buffer{})
	assert.Error(t, err)
}

func TestAdminCreateCommand(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("REDIS_URL", "")
	t.Setenv("LOG_LEVEL", "error")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader("secret1\n"))
	root.SetArgs([]string{"admin", "create", "--first", "Admin", "--last", "Root", "--fin", "adm0001"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "created administrator Admin Root (ADM0001)\n", out.String())
}

func TestAdminCreateRejectsShortPassword(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("REDIS_URL", "")

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader("abc\n"))
	root.SetArgs([]string{"admin", "create", "--first", "Admin", "--last", "Root", "--fin", "ADM0001"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Password must be at least 6 characters")
}
