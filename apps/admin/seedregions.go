package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/pgri-okutimur/anggota/core/region"
)

// seedRegions imports the master data of a YAML file: a list of provinces with nested
// regencies, districts and villages. Existing units are renamed and re-parented.
func (cli *commandLine) seedRegions(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening seed file")
	}
	defer f.Close()

	var trees []region.Tree
	if err = yaml.NewDecoder(f).Decode(&trees); err != nil {
		return errors.Wrapf(err, "decoding %s", path)
	}
	if len(trees) == 0 {
		return errors.Errorf("%s has no provinces", path)
	}

	counts, err := cli.regionSvc.Import(ctx, trees...)
	if err != nil {
		return err
	}
	for _, t := range region.Tiers {
		fmt.Fprintf(cli.out, "%-10s %d imported\n", t, counts[t])
	}
	return nil
}
