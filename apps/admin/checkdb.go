package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/pgri-okutimur/anggota/core/member"
	"github.com/pgri-okutimur/anggota/core/region"
)

var errMasterDataMissing = errors.New("master data incomplete, run seedregions")

// checkDB reports the database status, the master data per tier and the members per status.
func (cli *commandLine) checkDB(ctx context.Context) error {
	if cli.statusCheck != nil {
		if err := cli.statusCheck(ctx); err != nil {
			return errors.Wrap(err, "database status check")
		}
	}
	fmt.Fprintln(cli.out, "database   ok")

	counts, err := cli.regionSvc.Counts(ctx)
	if err != nil {
		return err
	}
	var missing []string
	for _, t := range region.Tiers {
		fmt.Fprintf(cli.out, "%-10s %d\n", t, counts[t])
		if counts[t] == 0 {
			missing = append(missing, t.String())
		}
	}

	for _, status := range member.Statuses {
		members, err := cli.memberSvc.Query(ctx, &member.QueryFilter{Statuses: []string{status}}, nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "%-10s %d members\n", status, len(members))
	}

	if len(missing) > 0 {
		return errors.Wrapf(errMasterDataMissing, "no %s", strings.Join(missing, ", "))
	}
	return nil
}
