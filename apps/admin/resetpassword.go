package main

import (
	"context"

	"github.com/bellbook/bellbook/core"
)

func (cli *commandLine) resetPassword(email, pwd string) error {
	ctx := context.Background()
	sess, err := cli.store.Begin(ctx, "")
	if err != nil {
		return err
	}
	defer func() { _ = sess.Rollback() }()

	usr, err := cli.usrRepo.GetUserByEmail(ctx, sess, core.CleanString(email, true /* lower */))
	if err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	if err = cli.usrRepo.SetUserPassword(ctx, sess, usr.ID, usr.PasswordHash); err != nil {
		return err
	}
	return sess.Commit()
}
