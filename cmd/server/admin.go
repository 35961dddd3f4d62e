package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/warp/library-engine/library"
	"github.com/warp/library-engine/seed"
)

var flagSeedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load categories, books and admins from a YAML fixture",
	Long: `Load a fixture file into the database. Records that already exist
(same category name, serial number or admin email) are skipped, so the
command can be run repeatedly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fixtures, err := seed.Load(flagSeedFile)
		if err != nil {
			return err
		}
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.store.Close()

		report, err := seed.Apply(cmd.Context(), fixtures, a.services.Catalog, a.services.Admins, a.log)
		if err != nil {
			return err
		}
		for _, kind := range []string{"category", "book", "admin"} {
			fmt.Printf("%-10s %s %s\n", kind,
				color.GreenString("%d created", report.Created[kind]),
				color.YellowString("%d skipped", report.Skipped[kind]))
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&flagSeedFile, "file", "fixtures.yaml", "Fixture file")
}

func newCreateAdminCmd() *cobra.Command {
	var in library.AdminInput
	var role string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.store.Close()

			in.Role = library.Role(role)
			admin, err := a.services.Admins.Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s (%s) id=%s\n", color.GreenString("created"), admin.Email, admin.Role, admin.ID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.Name, "name", "", "Full name")
	f.StringVar(&in.FatherName, "father-name", "", "Father's name")
	f.StringVar(&in.Email, "email", "", "Login email")
	f.StringVar(&in.Password, "password", "", "Login password")
	f.StringVar(&role, "role", string(library.RoleLibrarian), "librarian, manager or super-admin")
	f.StringVar(&in.Address, "address", "", "Postal address")
	f.StringVar(&in.Phone, "phone", "", "Phone number")
	f.StringVar(&in.CNIC, "cnic", "", "National identity number (12345-1234567-1)")
	f.IntVar(&in.Age, "age", 0, "Age in years")
	for _, name := range []string{"name", "email", "password"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
