package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"library-ledger/library"
)

func (a *app) memberCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Manage members",
	}
	cmd.AddCommand(
		a.memberAddCommand(),
		&cobra.Command{
			Use:   "list",
			Short: "List members by name",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				members, err := a.mgr.Members().List(cmd.Context())
				if err != nil {
					return err
				}
				return a.printMembers(members)
			},
		},
		a.memberGetCommand(),
		a.memberUpdateCommand(),
		&cobra.Command{
			Use:   "delete <member-id>",
			Short: "Delete a member holding no copies",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID("member", args[0])
				if err != nil {
					return err
				}
				if err := a.mgr.Members().Delete(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Deleted member ID %d\n", id)
				return nil
			},
		},
		&cobra.Command{
			Use:   "passwd <member-id>",
			Short: "Set or reset a member's password",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID("member", args[0])
				if err != nil {
					return err
				}
				member, err := a.mgr.Members().Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				password, err := a.readPassword(fmt.Sprintf("Enter new password for %s (ID: %d): ", member.Name, id))
				if err != nil {
					return err
				}
				if password == "" {
					return errors.New("password cannot be empty")
				}
				if err := a.mgr.Members().SetPassword(cmd.Context(), id, password); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Password successfully reset for %s (ID: %d)\n", member.Name, id)
				return nil
			},
		},
		a.memberBorrowsCommand(),
	)
	return cmd
}

func (a *app) memberAddCommand() *cobra.Command {
	var name, phone, email string
	var withPassword bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a member",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var password string
			if withPassword {
				var err error
				password, err = a.readPassword(fmt.Sprintf("Enter password for %s: ", name))
				if err != nil {
					return err
				}
				if password == "" {
					return errors.New("password cannot be empty")
				}
			}
			id, err := a.mgr.Members().Add(cmd.Context(), library.NewMember{
				Name:  name,
				Phone: &phone,
				Email: &email,
			})
			if err != nil {
				return err
			}
			if withPassword {
				if err := a.mgr.Members().SetPassword(cmd.Context(), id, password); err != nil {
					return err
				}
			}
			if a.jsonOutput() {
				return a.printJSON(map[string]int64{"member_id": id})
			}
			fmt.Fprintf(a.out, "Added member '%s' with ID %d\n", strings.TrimSpace(name), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "member name")
	cmd.Flags().StringVar(&phone, "phone", "", "phone number (optional)")
	cmd.Flags().StringVar(&email, "email", "", "email address (optional, unique)")
	cmd.Flags().BoolVar(&withPassword, "password", false, "prompt for a password required to borrow")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (a *app) memberGetCommand() *cobra.Command {
	var phone, email string
	cmd := &cobra.Command{
		Use:   "get [member-id]",
		Short: "Show one member by ID, --phone or --email",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var (
				member *library.Member
				err    error
			)
			switch {
			case len(args) == 1:
				id, perr := parseID("member", args[0])
				if perr != nil {
					return perr
				}
				member, err = a.mgr.Members().Get(ctx, id)
			case phone != "":
				member, err = a.mgr.Members().FindByPhone(ctx, phone)
			case email != "":
				member, err = a.mgr.Members().FindByEmail(ctx, email)
			default:
				return errors.New("give a member ID, --phone or --email")
			}
			if err != nil {
				return err
			}
			return a.printMembers([]library.Member{*member})
		},
	}
	cmd.Flags().StringVar(&phone, "phone", "", "look up by phone")
	cmd.Flags().StringVar(&email, "email", "", "look up by email")
	return cmd
}

func (a *app) memberUpdateCommand() *cobra.Command {
	var name, phone, email string
	cmd := &cobra.Command{
		Use:   "update <member-id>",
		Short: "Change a member's name, phone or email",
		Long:  "Only the flags given are changed. An empty --phone or --email clears the field.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("member", args[0])
			if err != nil {
				return err
			}
			var u library.MemberUpdate
			if cmd.Flags().Changed("name") {
				u.Name = &name
			}
			if cmd.Flags().Changed("phone") {
				u.Phone = &phone
			}
			if cmd.Flags().Changed("email") {
				u.Email = &email
			}
			updated, err := a.mgr.Members().Update(cmd.Context(), id, u)
			if err != nil {
				return err
			}
			if !updated {
				fmt.Fprintf(a.out, "Nothing updated for member ID %d\n", id)
				return nil
			}
			fmt.Fprintf(a.out, "Updated member ID %d\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&phone, "phone", "", "new phone")
	cmd.Flags().StringVar(&email, "email", "", "new email")
	return cmd
}

func (a *app) memberBorrowsCommand() *cobra.Command {
	var phone string
	var active bool
	cmd := &cobra.Command{
		Use:   "borrows [member-id]",
		Short: "List a member's borrow records by ID or --phone",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var (
				rows []library.BorrowDetail
				err  error
			)
			switch {
			case len(args) == 1:
				id, perr := parseID("member", args[0])
				if perr != nil {
					return perr
				}
				if _, err := a.mgr.Members().Get(ctx, id); err != nil {
					return err
				}
				rows, err = a.mgr.Ledger().MemberBorrows(ctx, id, active)
			case phone != "":
				rows, err = a.mgr.Ledger().MemberBorrowsByPhone(ctx, phone, active)
			default:
				return errors.New("give a member ID or --phone")
			}
			if err != nil {
				return err
			}
			return a.printBorrows(rows)
		},
	}
	cmd.Flags().StringVar(&phone, "phone", "", "look up by phone")
	cmd.Flags().BoolVar(&active, "active", false, "only records still open")
	return cmd
}
