package main

import (
	"context"
	"fmt"

	"github.com/pgri-okutimur/anggota/core/member"
	"github.com/pgri-okutimur/anggota/core/region"
	"github.com/pgri-okutimur/anggota/core/user"
)

// setLocation lets the operator move a member, starting from its current location.
func (cli *commandLine) setLocation(ctx context.Context, memberID int) error {
	m, err := cli.memberSvc.GetByID(ctx, memberID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s (%s)\n", m.FullName, m.Status)

	sel, err := cli.pickLocation(ctx, m.Location)
	if err != nil {
		return err
	}
	if sel == m.Location {
		fmt.Fprintln(cli.out, "location unchanged")
		return nil
	}

	um := member.UpdateMember{
		ProvinceID: sel.ProvinceID,
		RegencyID:  sel.RegencyID,
		DistrictID: sel.DistrictID,
		VillageID:  sel.VillageID,
	}
	if m, err = cli.memberSvc.Update(ctx, m, um, user.User{}); err != nil {
		return err
	}
	return cli.printLocation(ctx, m.Location)
}

func (cli *commandLine) printLocation(ctx context.Context, sel region.Selection) error {
	names, err := cli.regionSvc.Names(ctx, sel)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "location: %s, %s, %s, %s\n",
		names[region.TierVillage], names[region.TierDistrict], names[region.TierRegency], names[region.TierProvince])
	return nil
}
