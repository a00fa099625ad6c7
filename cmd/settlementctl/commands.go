package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nurpe/skillspot-settlement/internal/auth"
	"github.com/nurpe/skillspot-settlement/internal/excel"
	"github.com/nurpe/skillspot-settlement/internal/gateway"
	"github.com/nurpe/skillspot-settlement/internal/model"
	"github.com/nurpe/skillspot-settlement/internal/service"
)

func migrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create settlement tables and invariant indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.store(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func replayCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "replay [event.json]",
		Short: "Feed a stored gateway event through the reconciler",
		Long: `Replay reads a gateway event as delivered to the webhook endpoint and
applies it without signature verification. Replaying an event that was
already applied changes nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read event: %w", err)
			}
			event, err := gateway.DecodeEvent(payload)
			if err != nil {
				return err
			}

			store, err := a.store()
			if err != nil {
				return err
			}
			reconciler := service.NewReconciler(store, a.notifier(), a.log)
			result, err := reconciler.Apply(cmd.Context(), event)
			if err != nil {
				return fmt.Errorf("apply event: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "resolved %d payment(s), applied %d\n", len(result.Resolved), len(result.Applied))
			for _, id := range result.Applied {
				fmt.Fprintf(out, "  applied %s\n", id)
			}
			for _, ref := range result.Unresolved {
				fmt.Fprintf(out, "  unresolved %s\n", ref)
			}
			return nil
		},
	}
}

func exportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export [contract-id] [file.xlsx]",
		Short: "Write a contract's payment ledger to a workbook",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			contractID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid contract id: %w", err)
			}

			store, err := a.store()
			if err != nil {
				return err
			}
			payments := service.NewPaymentService(store, gateway.Disabled{}, nil, excel.NewGenerator(), a.cfg.Payments, a.log)
			file, err := payments.ExportLedgerUnchecked(cmd.Context(), contractID)
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[1], file.Content, 0o644); err != nil {
				return fmt.Errorf("write ledger: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ledger written to %s\n", args[1])
			return nil
		},
	}
}

func tokenCmd(a *app) *cobra.Command {
	var (
		userID   string
		userType string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Environment != "development" {
				return fmt.Errorf("tokens can only be issued in development")
			}
			id := uuid.New()
			if userID != "" {
				parsed, err := uuid.Parse(userID)
				if err != nil {
					return fmt.Errorf("invalid user id: %w", err)
				}
				id = parsed
			}
			kind, ok := model.ParseUserType(userType)
			if !ok {
				return fmt.Errorf("invalid user type %q", userType)
			}

			token, expiresAt, err := auth.NewParser(a.cfg.Auth.AccessSecret).Issue(model.Principal{UserID: id, UserType: kind}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user:    %s\nexpires: %s\n%s\n", id, expiresAt.UTC().Format(time.RFC3339), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (random when empty)")
	cmd.Flags().StringVar(&userType, "type", string(model.UserTypeBoth), "user type (CLIENT, PROVIDER, BOTH)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")

	return cmd
}
