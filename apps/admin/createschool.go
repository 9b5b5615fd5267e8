package main

import (
	"context"
	"fmt"

	"github.com/bellbook/bellbook/core/school"
)

// createSchool provisions a tenant on an unscoped session; the row itself
// is what future sessions scope to.
func (cli *commandLine) createSchool(ns school.NewSchool) error {
	ctx := context.Background()
	sess, err := cli.store.Begin(ctx, "")
	if err != nil {
		return err
	}
	defer func() { _ = sess.Rollback() }()

	sch, err := school.NewService(cli.schRepo).Create(ctx, sess, ns)
	if err != nil {
		return err
	}
	if err = sess.Commit(); err != nil {
		return err
	}
	fmt.Printf("school %q created with id %s\n", sch.Name, sch.ID)
	return nil
}
