package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"golang.org/x/term"

	"github.com/bellbook/bellbook/core"
	"github.com/bellbook/bellbook/core/school"
	"github.com/bellbook/bellbook/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db      *sql.DB
	store   core.SessionStore
	usrRepo user.Repository
	schRepo school.Repository
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run database migrations (up, down, status, ...)")
	fmt.Println("  createschool -name NAME -slug SLUG - provision a new school")
	fmt.Println("  addstaff -school SCHOOL_ID -email EMAIL -first FIRST -last LAST - create a staff account")
	fmt.Println("  resetpassword -email EMAIL - reset a staff user's password")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	createSchoolCmd := flag.NewFlagSet("createschool", flag.ExitOnError)
	createSchoolName := createSchoolCmd.String("name", "", "The school's display name.")
	createSchoolSlug := createSchoolCmd.String("slug", "", "A unique short identifier, used in invites.")
	createSchoolEmail := createSchoolCmd.String("email", "", "Contact email address.")
	createSchoolPhone := createSchoolCmd.String("phone", "", "Contact phone number.")
	createSchoolTZ := createSchoolCmd.String("timezone", "", "IANA timezone, defaults to Africa/Johannesburg.")

	addStaffCmd := flag.NewFlagSet("addstaff", flag.ExitOnError)
	addStaffSchool := addStaffCmd.String("school", "", "The school's id. Empty creates a platform super_admin.")
	addStaffEmail := addStaffCmd.String("email", "", "The staff member's email. The password will be prompted next.")
	addStaffFirst := addStaffCmd.String("first", "", "First name.")
	addStaffLast := addStaffCmd.String("last", "", "Last name.")
	addStaffRole := addStaffCmd.String("role", string(user.RoleSchoolAdmin), "One of: super_admin, school_admin, teacher.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "createschool":
		if err := createSchoolCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *createSchoolName == "" || *createSchoolSlug == "" {
			createSchoolCmd.Usage()
			return errHelp
		}
		return cli.createSchool(school.NewSchool{
			Name:     *createSchoolName,
			Slug:     *createSchoolSlug,
			Email:    *createSchoolEmail,
			Phone:    *createSchoolPhone,
			Timezone: *createSchoolTZ,
		})
	case "addstaff":
		if err := addStaffCmd.Parse(args[2:]); err != nil {
			return err
		}
		role := user.Role(*addStaffRole)
		if *addStaffEmail == "" || *addStaffFirst == "" || *addStaffLast == "" || role == user.RoleParent || !role.Valid() {
			addStaffCmd.Usage()
			return errHelp
		}
		if *addStaffSchool == "" && role != user.RoleSuperAdmin {
			addStaffCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword(addStaffCmd)
		if err != nil {
			return err
		}
		return cli.addStaff(*addStaffSchool, *addStaffEmail, *addStaffFirst, *addStaffLast, pwd, role)
	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword(resetPasswordCmd)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)
	default:
		cli.printUsage()
		return errHelp
	}
}

func promptPassword(cmd *flag.FlagSet) (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		cmd.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}
