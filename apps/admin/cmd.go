package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/pgri-okutimur/anggota/core"
	"github.com/pgri-okutimur/anggota/core/member"
	"github.com/pgri-okutimur/anggota/core/region"
	"github.com/pgri-okutimur/anggota/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db          *sql.DB
	out         io.Writer
	prompt      prompter
	logger      core.Logger
	usrRepo     user.Repository
	memberSvc   member.Service
	regionSvc   region.Service
	statusCheck func(ctx context.Context) error
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS...] - run a goose command (up, down, status, ...) against the database")
	fmt.Fprintln(cli.out, "  adduser -name NAME -username USERNAME -email EMAIL [-admin] - create or update a user")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Fprintln(cli.out, "  seedregions -file FILE - import provinces, regencies, districts and villages from a YAML file")
	fmt.Fprintln(cli.out, "  checkdb - check the database connection and the master data")
	fmt.Fprintln(cli.out, "  setlocation -member ID - pick a new location for a member")
	fmt.Fprintln(cli.out, "  addmember - register a member interactively")
}

// promptPassword reads a password without echoing it.
func (cli *commandLine) promptPassword(msg string) (string, error) {
	fmt.Fprint(cli.out, msg)
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Grant the admin:owner role.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	seedRegionsCmd := flag.NewFlagSet("seedregions", flag.ContinueOnError)
	seedRegionsFile := seedRegionsCmd.String("file", "", "YAML file listing provinces with their nested regencies, districts and villages.")

	setLocationCmd := flag.NewFlagSet("setlocation", flag.ContinueOnError)
	setLocationMember := setLocationCmd.Int("member", 0, "The member's ID.")

	for _, fs := range []*flag.FlagSet{addUserCmd, resetPasswordCmd, seedRegionsCmd, setLocationCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			fmt.Fprintln(cli.out, "Usage: migrate COMMAND [ARGS...]")
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addUserUname == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword("Enter password:")
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(ctx, *addUserName, *addUserUname, *addUserEmail, pwd, *addUserAdmin)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword("Enter password:")
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(ctx, *resetPasswordUname, pwd)

	case "seedregions":
		if err := seedRegionsCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *seedRegionsFile == "" {
			seedRegionsCmd.Usage()
			return errHelp
		}
		return cli.seedRegions(ctx, *seedRegionsFile)

	case "checkdb":
		return cli.checkDB(ctx)

	case "setlocation":
		if err := setLocationCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *setLocationMember <= 0 {
			setLocationCmd.Usage()
			return errHelp
		}
		return cli.setLocation(ctx, *setLocationMember)

	case "addmember":
		return cli.addMember(ctx)

	default:
		cli.printUsage()
		return errHelp
	}
}
