package main

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/library-admission-go/admission"
)

const (
	flagActor      = "actor"
	flagResource   = "resource"
	flagObligation = "obligation"
	flagCopies     = "copies"
)

// uuidFlag reads a required UUID flag.
func uuidFlag(cmd *cobra.Command, name string) (uuid.UUID, error) {
	raw, err := cmd.Flags().GetString(name)
	if err != nil {
		return uuid.Nil, err
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --%s %q: %w", name, raw, err)
	}

	return id, nil
}

func newMigrateCommand(cfg *config, out, errOut io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the inventory and obligation tables if missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, cfg, out, errOut, func(ctx context.Context, a *app) error {
				store, err := a.postgres()
				if err != nil {
					return err
				}

				if err = store.EnsureSchema(ctx); err != nil {
					return err
				}

				return writeJSON(a.out, map[string]string{
					"inventoryTable":  store.InventoryTableName(),
					"obligationTable": store.ObligationTableName(),
				})
			})
		},
	}
}

func newPutInventoryCommand(cfg *config, out, errOut io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put-inventory",
		Short: "Register a resource or reset its copy counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, cfg, out, errOut, func(ctx context.Context, a *app) error {
				resourceID := uuid.New()
				if cmd.Flags().Changed(flagResource) {
					var err error
					if resourceID, err = uuidFlag(cmd, flagResource); err != nil {
						return err
					}
				}

				copies, err := cmd.Flags().GetInt(flagCopies)
				if err != nil {
					return err
				}

				inventory := admission.BuildInventory(resourceID, copies)
				if err = a.store.PutInventory(ctx, inventory); err != nil {
					return err
				}

				return writeJSON(a.out, inventory)
			})
		},
	}

	cmd.Flags().String(flagResource, "", "resource ID, a new one is generated if omitted")
	cmd.Flags().Int(flagCopies, 1, "total copies, all of them available")

	return cmd
}

func newRequestCommand(cfg *config, out, errOut io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Request a loan of one copy for an actor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actorID, err := uuidFlag(cmd, flagActor)
			if err != nil {
				return err
			}

			resourceID, err := uuidFlag(cmd, flagResource)
			if err != nil {
				return err
			}

			return withApp(cmd, cfg, out, errOut, func(ctx context.Context, a *app) error {
				obligation, reqErr := a.engine.RequestLoan(ctx, actorID, resourceID)
				if reqErr != nil {
					return reqErr
				}

				return writeJSON(a.out, obligation)
			})
		},
	}

	cmd.Flags().String(flagActor, "", "actor ID")
	cmd.Flags().String(flagResource, "", "resource ID")
	_ = cmd.MarkFlagRequired(flagActor)
	_ = cmd.MarkFlagRequired(flagResource)

	return cmd
}

func newListCommand(cfg *config, out, errOut io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the visible obligations of an actor, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actorID, err := uuidFlag(cmd, flagActor)
			if err != nil {
				return err
			}

			return withApp(cmd, cfg, out, errOut, func(ctx context.Context, a *app) error {
				obligations, listErr := a.engine.ListObligations(ctx, actorID)
				if listErr != nil {
					return listErr
				}

				return writeJSON(a.out, obligations)
			})
		},
	}

	cmd.Flags().String(flagActor, "", "actor ID")
	_ = cmd.MarkFlagRequired(flagActor)

	return cmd
}

func newActivateCommand(cfg *config, out, errOut io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Mark a requested loan as handed out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			obligationID, err := uuidFlag(cmd, flagObligation)
			if err != nil {
				return err
			}

			return withApp(cmd, cfg, out, errOut, func(ctx context.Context, a *app) error {
				obligation, activateErr := a.engine.ActivateLoan(ctx, obligationID)
				if activateErr != nil {
					return activateErr
				}

				return writeJSON(a.out, obligation)
			})
		},
	}

	cmd.Flags().String(flagObligation, "", "obligation ID")
	_ = cmd.MarkFlagRequired(flagObligation)

	return cmd
}

func newReturnCommand(cfg *config, out, errOut io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "return",
		Short: "Return the copy held by an obligation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actorID, err := uuidFlag(cmd, flagActor)
			if err != nil {
				return err
			}

			obligationID, err := uuidFlag(cmd, flagObligation)
			if err != nil {
				return err
			}

			return withApp(cmd, cfg, out, errOut, func(ctx context.Context, a *app) error {
				obligation, returnErr := a.engine.ReturnLoan(ctx, actorID, obligationID)
				if returnErr != nil {
					return returnErr
				}

				return writeJSON(a.out, obligation)
			})
		},
	}

	cmd.Flags().String(flagActor, "", "actor ID")
	cmd.Flags().String(flagObligation, "", "obligation ID")
	_ = cmd.MarkFlagRequired(flagActor)
	_ = cmd.MarkFlagRequired(flagObligation)

	return cmd
}

func newMarkOverdueCommand(cfg *config, out, errOut io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "mark-overdue",
		Short: "Move active loans past their due date to OVERDUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, cfg, out, errOut, func(ctx context.Context, a *app) error {
				marked, err := a.engine.MarkOverdue(ctx)
				if err != nil {
					return err
				}

				return writeJSON(a.out, map[string]int64{"marked": marked})
			})
		},
	}
}
