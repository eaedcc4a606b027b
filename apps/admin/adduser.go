package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/pgri-okutimur/anggota/core"
	"github.com/pgri-okutimur/anggota/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(ctx context.Context, name, uname, email, pwd string, isAdmin bool) error {
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	name = core.CleanString(name)
	now := time.Now().UTC()

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Username: uname})
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		if usr, err = cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email}); err != nil && errors.Cause(err) != user.ErrNotFound {
			return err
		}
	}
	exists := err == nil

	if !exists {
		usr = user.User{Roles: []string{user.RoleMember}, CreatedAt: now}
	}
	usr.Username = uname
	usr.Email = email
	if name != "" {
		usr.Name = name
	} else if usr.Name == "" {
		usr.Name = uname
	}
	if isAdmin {
		usr.Roles = []string{user.RoleAdminOwner}
	}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}

	if exists {
		if err = cli.usrRepo.CheckUsernameUniqueness(ctx, uname, email, usr); err != nil {
			return err
		}
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	} else {
		usr, err = cli.usrRepo.CreateUser(ctx, usr)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "user %q saved (id %d, roles %v)\n", usr.Username, usr.ID, usr.Roles)
	return nil
}
