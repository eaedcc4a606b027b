package main

import (
	"context"
	"fmt"

	"github.com/pgri-okutimur/anggota/core/member"
	"github.com/pgri-okutimur/anggota/core/region"
)

var genders = []string{member.GenderMale, member.GenderFemale}

// addMember registers a pending member and its account the way the sign-up form does.
func (cli *commandLine) addMember(ctx context.Context) error {
	var reg member.Registration
	fields := []struct {
		msg string
		dst *string
	}{
		{"Full name:", &reg.FullName},
		{"NIP (optional):", &reg.NIP},
		{"NUPTK (optional):", &reg.NUPTK},
		{"Birth place:", &reg.BirthPlace},
		{"Birth date (YYYY-MM-DD):", &reg.BirthDate},
		{"Phone:", &reg.Phone},
		{"Email:", &reg.Email},
		{"School:", &reg.School},
		{"Position (optional):", &reg.Position},
		{"Address (optional):", &reg.Address},
	}
	for _, f := range fields {
		answer, err := cli.prompt.Input(f.msg, "")
		if err != nil {
			return err
		}
		*f.dst = answer
	}

	idx, err := cli.prompt.Select("Gender:", []string{"L (laki-laki)", "P (perempuan)"}, -1)
	if err != nil {
		return err
	}
	if idx >= 0 && idx < len(genders) {
		reg.Gender = genders[idx]
	}

	loc, err := cli.pickLocation(ctx, region.Selection{})
	if err != nil {
		return err
	}
	reg.SetLocation(loc)

	if reg.Password, err = cli.promptPassword("Enter password:"); err != nil {
		return err
	}
	if reg.PasswordConfirm, err = cli.promptPassword("Confirm password:"); err != nil {
		return err
	}

	m, err := cli.memberSvc.Register(ctx, reg)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "member %q registered (id %d, %s)\n", m.FullName, m.ID, m.Status)
	return cli.printLocation(ctx, m.Location)
}
