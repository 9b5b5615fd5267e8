package main

import (
	"bytes"
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bellbook/bellbook/core/school"
	"github.com/bellbook/bellbook/core/user"
	dummydb "github.com/bellbook/bellbook/storage/database/dummy"
)

func setup(t *testing.T) (*commandLine, *dummydb.DB) {
	t.Helper()
	db, err := dummydb.Open()
	require.NoError(t, err)
	return &commandLine{
		store:   db,
		usrRepo: dummydb.NewUserRepository(db),
		schRepo: dummydb.NewSchoolRepository(db),
	}, db
}

func mockPassword(t *testing.T, pwd string) {
	t.Helper()
	orig := readPasswordFunc
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte(pwd), nil }
	t.Cleanup(func() { readPasswordFunc = orig })
}

func Test_commandLine_run(t *testing.T) {
	cli, _ := setup(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "no command", args: []string{"admin"}},
		{name: "unknown command", args: []string{"admin", "lol"}},
		{name: "migrate without subcommand", args: []string{"admin", "migrate"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, errHelp, cli.run(tt.args))
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	var gotCommand string
	var gotArgs []string
	orig := gooseRunFunc
	gooseRunFunc = func(command string, db *sql.DB, dir string, args ...string) error {
		gotCommand = command
		gotArgs = args
		return nil
	}
	t.Cleanup(func() { gooseRunFunc = orig })

	require.NoError(t, cli.run([]string{"admin", "migrate", "up"}))
	assert.Equal(t, "up", gotCommand)
	assert.Empty(t, gotArgs)

	require.NoError(t, cli.run([]string{"admin", "migrate", "down-to", "1"}))
	assert.Equal(t, "down-to", gotCommand)
	assert.Equal(t, []string{"1"}, gotArgs)
}

func Test_commandLine_createSchool(t *testing.T) {
	cli, db := setup(t)

	assert.Equal(t, errHelp, cli.run([]string{"admin", "createschool", "-name", "Green Valley"}))

	require.NoError(t, cli.run([]string{"admin", "createschool", "-name", "Green Valley", "-slug", "greenvalley"}))

	sess, err := db.Begin(context.Background(), "")
	require.NoError(t, err)
	sch, err := cli.schRepo.GetSchoolBySlug(context.Background(), sess, "greenvalley")
	require.NoError(t, err)
	assert.Equal(t, "Green Valley", sch.Name)
	assert.Equal(t, "Africa/Johannesburg", sch.Timezone)

	err = cli.run([]string{"admin", "createschool", "-name", "Copy", "-slug", "greenvalley"})
	assert.Equal(t, school.ErrSlugExists, err)
}

func Test_commandLine_addStaff(t *testing.T) {
	cli, db := setup(t)
	mockPassword(t, "Sup3rS3cret!")

	require.NoError(t, cli.run([]string{"admin", "createschool", "-name", "Green Valley", "-slug", "greenvalley"}))
	sess, err := db.Begin(context.Background(), "")
	require.NoError(t, err)
	sch, err := cli.schRepo.GetSchoolBySlug(context.Background(), sess, "greenvalley")
	require.NoError(t, err)

	t.Run("rejects bad input", func(t *testing.T) {
		err := cli.run([]string{"admin", "addstaff", "-email", "a@b.test"})
		assert.Equal(t, errHelp, err)

		err = cli.run([]string{"admin", "addstaff", "-email", "a@b.test", "-first", "A", "-last", "B", "-role", "parent"})
		assert.Equal(t, errHelp, err)

		// only a super_admin may exist without a school
		err = cli.run([]string{"admin", "addstaff", "-email", "a@b.test", "-first", "A", "-last", "B", "-role", "teacher"})
		assert.Equal(t, errHelp, err)
	})

	t.Run("creates a school admin", func(t *testing.T) {
		err := cli.run([]string{"admin", "addstaff", "-school", sch.ID, "-email", "Admin@GreenValley.test", "-first", "Ada", "-last", "Admin"})
		require.NoError(t, err)

		usr, err := cli.usrRepo.GetUserByEmail(context.Background(), sess, "admin@greenvalley.test")
		require.NoError(t, err)
		assert.Equal(t, user.RoleSchoolAdmin, usr.Role)
		assert.Equal(t, sch.ID, usr.SchoolID)
		assert.NoError(t, usr.CheckPassword("Sup3rS3cret!"))

		err = cli.run([]string{"admin", "addstaff", "-school", sch.ID, "-email", "admin@greenvalley.test", "-first", "Ada", "-last", "Admin"})
		assert.Equal(t, user.ErrEmailExists, err)
	})

	t.Run("creates a platform super admin without a school", func(t *testing.T) {
		err := cli.run([]string{"admin", "addstaff", "-email", "root@bellbook.test", "-first", "Root", "-last", "Admin", "-role", "super_admin"})
		require.NoError(t, err)

		usr, err := cli.usrRepo.GetUserByEmail(context.Background(), sess, "root@bellbook.test")
		require.NoError(t, err)
		assert.Equal(t, user.RoleSuperAdmin, usr.Role)
		assert.Empty(t, usr.SchoolID)
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, db := setup(t)
	mockPassword(t, "0ldP4ssword!")

	require.NoError(t, cli.run([]string{"admin", "addstaff", "-email", "t@school.test", "-first", "T", "-last", "T", "-role", "super_admin"}))

	sess, err := db.Begin(context.Background(), "")
	require.NoError(t, err)
	before, err := cli.usrRepo.GetUserByEmail(context.Background(), sess, "t@school.test")
	require.NoError(t, err)

	err = cli.run([]string{"admin", "resetpassword", "-email", "nobody@school.test"})
	assert.Equal(t, user.ErrNotFound, err)

	mockPassword(t, "N3wP4ssword!")
	require.NoError(t, cli.run([]string{"admin", "resetpassword", "-email", "t@school.test"}))

	after, err := cli.usrRepo.GetUserByEmail(context.Background(), sess, "t@school.test")
	require.NoError(t, err)
	assert.False(t, bytes.Equal(before.PasswordHash, after.PasswordHash))
	assert.NoError(t, after.CheckPassword("N3wP4ssword!"))
}
