package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bellbook/bellbook/core"
	"github.com/bellbook/bellbook/core/user"
)

// addStaff creates a staff account directly at the repository level. An
// empty schoolID creates a platform super_admin, visible to every tenant.
func (cli *commandLine) addStaff(schoolID, email, first, last, pwd string, role user.Role) error {
	ctx := context.Background()
	sess, err := cli.store.Begin(ctx, schoolID)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Rollback() }()

	email = core.CleanString(email, true /* lower */)
	if _, err = cli.usrRepo.GetUserByEmail(ctx, sess, email); err == nil {
		return user.ErrEmailExists
	} else if err != user.ErrNotFound {
		return err
	}

	now := time.Now().UTC()
	usr := user.User{
		SchoolID:      schoolID,
		Email:         email,
		FirstName:     first,
		LastName:      last,
		Role:          role,
		PreferredLang: "en",
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	if usr, err = cli.usrRepo.CreateUser(ctx, sess, usr); err != nil {
		return err
	}
	if err = sess.Commit(); err != nil {
		return err
	}
	fmt.Printf("%s account created for %s with id %s\n", role, usr.Email, usr.ID)
	return nil
}
