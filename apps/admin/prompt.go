package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/pkg/errors"

	"github.com/pgri-okutimur/anggota/core/region"
	"github.com/pgri-okutimur/anggota/core/region/locselect"
)

var errAborted = errors.New("aborted")

// prompter asks the operator for answers.
type prompter interface {
	Input(msg, def string) (string, error)
	// Select returns the index of the chosen option. def < 0 means no default.
	Select(msg string, options []string, def int) (int, error)
}

type surveyPrompter struct{}

func (surveyPrompter) Input(msg, def string) (string, error) {
	var out string
	if err := survey.AskOne(&survey.Input{Message: msg, Default: def}, &out); err != nil {
		return "", translateSurveyErr(err)
	}
	return out, nil
}

func (surveyPrompter) Select(msg string, options []string, def int) (int, error) {
	var out int
	prompt := &survey.Select{Message: msg, Options: options, PageSize: 15}
	if def >= 0 && def < len(options) {
		prompt.Default = options[def]
	}
	if err := survey.AskOne(prompt, &out); err != nil {
		return 0, translateSurveyErr(err)
	}
	return out, nil
}

func translateSurveyErr(err error) error {
	if err == terminal.InterruptErr {
		return errAborted
	}
	return err
}

func tierLabel(t region.Tier) string {
	name := t.String()
	return strings.ToUpper(name[:1]) + name[1:]
}

// pickLocation walks the operator down the four tiers, starting from saved when it is set.
func (cli *commandLine) pickLocation(ctx context.Context, saved region.Selection) (region.Selection, error) {
	sel := locselect.New(locselect.NewServiceFetcher(cli.regionSvc), locselect.WithLogger(cli.logger))
	defer sel.Close()

	var err error
	if saved.IsEmpty() {
		// a failed fetch leaves a notice on the province tier, handled below
		if err = sel.LoadProvinces(ctx); ctx.Err() == nil {
			err = nil
		}
	} else {
		err = sel.InitializeFromExisting(ctx, saved)
	}
	if err != nil {
		return region.Selection{}, errors.Wrap(err, "loading provinces")
	}
	for _, n := range sel.State().Notices {
		if n.Kind == locselect.StaleSelection {
			fmt.Fprintf(cli.out, "! %s\n", n.Message)
		}
	}

	for i := 0; i < len(region.Tiers); i++ {
		t := region.Tiers[i]
		sel.Wait()
		st := sel.State()
		opts := st.OptionList(t)
		if len(opts) == 0 {
			failed := false
			for _, n := range st.Notices {
				if n.Tier == t {
					fmt.Fprintf(cli.out, "! %s\n", n.Message)
					failed = failed || n.Kind == locselect.NetworkFailure
				}
			}
			if !failed {
				return region.Selection{}, errors.Errorf("no %s to choose from", t)
			}
			if err := cli.retryTier(ctx, sel, st, t); err != nil {
				return region.Selection{}, err
			}
			i--
			continue
		}

		names := make([]string, len(opts))
		def := -1
		for j, u := range opts {
			names[j] = u.Name
			if u.ID == st.Selection.ID(t) {
				def = j
			}
		}
		idx, err := cli.prompt.Select(tierLabel(t)+":", names, def)
		if err != nil {
			return region.Selection{}, err
		}
		if idx < 0 || idx >= len(opts) {
			return region.Selection{}, errors.Errorf("invalid %s choice %d", t, idx)
		}
		if opts[idx].ID != st.Selection.ID(t) {
			if err = sel.Set(t, opts[idx].ID); err != nil {
				return region.Selection{}, errors.Wrapf(err, "selecting %s", t)
			}
		}
	}
	sel.Wait()
	return sel.Selection(), nil
}

// retryTier asks whether to fetch the options of t again and does so by re-selecting its parent.
func (cli *commandLine) retryTier(ctx context.Context, sel *locselect.Selector, st locselect.State, t region.Tier) error {
	idx, err := cli.prompt.Select(fmt.Sprintf("Loading the %s failed:", t.Plural()), []string{"Retry", "Cancel"}, 0)
	if err != nil {
		return err
	}
	if idx != 0 {
		return errAborted
	}
	parent, ok := t.Parent()
	if !ok {
		if err = sel.LoadProvinces(ctx); err != nil && ctx.Err() != nil {
			return errors.Wrap(err, "loading provinces")
		}
		return nil
	}
	return errors.Wrapf(sel.Set(parent, st.Selection.ID(parent)), "selecting %s", parent)
}
