package main

import (
	"errors"
	"flag"
	"fmt"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/Virtual-Educator/SimLearning/core"
	"github.com/Virtual-Educator/SimLearning/core/simulation"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf        *core.Config
	db          *sqlx.DB
	activitySvc simulation.ServiceInterface
	validate    *validator.Validate
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run database migrations (up, down, status, ...)")
	fmt.Println("  addactivity -slug SLUG -title TITLE -manifest FILE [-publish] - register an activity")
	fmt.Println("  gentoken -student ID -name NAME [-email EMAIL] [-teacher] - mint an access token")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addActivityCmd := flag.NewFlagSet("addactivity", flag.ExitOnError)
	addActivitySlug := addActivityCmd.String("slug", "", "The activity's URL-safe identifier.")
	addActivityTitle := addActivityCmd.String("title", "", "The activity's display title.")
	addActivityManifest := addActivityCmd.String("manifest", "", "Path to the activity's manifest JSON file.")
	addActivityPublish := addActivityCmd.Bool("publish", false, "Publish the activity immediately.")

	genTokenCmd := flag.NewFlagSet("gentoken", flag.ExitOnError)
	genTokenStudent := genTokenCmd.String("student", "", "The principal's external identifier.")
	genTokenName := genTokenCmd.String("name", "", "The principal's display name.")
	genTokenEmail := genTokenCmd.String("email", "", "The principal's email address.")
	genTokenTeacher := genTokenCmd.Bool("teacher", false, "Mint a teacher token instead of a student one.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "addactivity":
		if err := addActivityCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addActivitySlug == "" || *addActivityTitle == "" || *addActivityManifest == "" {
			addActivityCmd.Usage()
			return errHelp
		}
		return cli.addActivity(*addActivitySlug, *addActivityTitle, *addActivityManifest, *addActivityPublish)
	case "gentoken":
		if err := genTokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *genTokenStudent == "" || *genTokenName == "" {
			genTokenCmd.Usage()
			return errHelp
		}
		if cli.conf.SecretKey == "" {
			fmt.Print("Enter signing secret:")
			secret, err := readPasswordFunc(syscall.Stdin)
			fmt.Println()
			if err != nil {
				return err
			}
			if len(secret) == 0 {
				genTokenCmd.Usage()
				return errHelp
			}
			cli.conf.SecretKey = string(secret)
		}
		token, err := cli.genToken(*genTokenStudent, *genTokenName, *genTokenEmail, *genTokenTeacher)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	default:
		cli.printUsage()
		return errHelp
	}
}
