package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"classattend/internal/attendance"
	"classattend/internal/identity"
	"classattend/internal/model"
)

func (a *app) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.backend()
			if err != nil {
				return err
			}
			defer b.Close()
			if b.Migrate == nil {
				return fmt.Errorf("backend has no schema to migrate")
			}
			if err := b.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
}

// createAdminCommand is the only way to obtain an admin account; signup never grants one.
func (a *app) createAdminCommand() *cobra.Command {
	var email, password, name string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email = identity.NormalizeEmail(email)
			if email == "" || len(password) < identity.MinPasswordLen {
				return fmt.Errorf("--email and a --password of at least %d characters are required", identity.MinPasswordLen)
			}
			b, err := a.backend()
			if err != nil {
				return err
			}
			defer b.Close()

			acct, err := identity.NewLocal(b.Store).SignUp(cmd.Context(), identity.SignUpInput{
				Email:    email,
				Password: password,
				FullName: name,
				Role:     model.RoleAdmin,
			})
			if err != nil {
				return fmt.Errorf("create admin: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin %s created (%s)\n", acct.Email, acct.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (a *app) createCourseCommand() *cobra.Command {
	var code, title string
	cmd := &cobra.Command{
		Use:   "create-course",
		Short: "Add a course",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.backend()
			if err != nil {
				return err
			}
			defer b.Close()

			c, err := attendance.NewService(b.Store, attendance.Options{}).CreateCourse(cmd.Context(), code, title)
			if err != nil {
				return fmt.Errorf("create course: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "course %s created (%s)\n", c.CourseCode, c.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "course code, e.g. CSC101")
	cmd.Flags().StringVar(&title, "title", "", "course title")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}
