package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/campusdesk/portal/core"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf *core.Config
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate [up|down|status|...] - run database migrations (goose commands)")
	fmt.Println("  orphans [-purge] - list session store accounts with no role record")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	orphansCmd := flag.NewFlagSet("orphans", flag.ExitOnError)
	orphansPurge := orphansCmd.Bool("purge", false, "Delete the orphaned accounts from the session store.")

	switch args[1] {
	case "migrate":
		cmdArgs := args[2:]
		if len(cmdArgs) == 0 {
			cmdArgs = []string{"up"}
		}
		return cli.migrate(cmdArgs)
	case "orphans":
		if err := orphansCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.orphans(*orphansPurge)
	default:
		cli.printUsage()
		return errHelp
	}
}
