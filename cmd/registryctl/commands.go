package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/registry/internal/registry"
	"github.com/JonMunkholm/registry/internal/web/middleware"
)

func newLookupCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "lookup QUERY",
		Short: "Find professionals by tax ID or name",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return validateOutputFormat(output)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, backend, err := openService(cmd.Context(), registry.ServiceConfig{})
			if err != nil {
				return err
			}
			defer backend.Close()

			records, err := svc.Lookup(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("%s (%w)", registry.FormatUserError(err), err)
			}
			return printRecords(cmd.OutOrStdout(), outputFormat(output), records)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", string(outputTable), "output format: table, json, yaml")
	return cmd
}

func newClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every professional from the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to clear the registry without --yes")
			}
			svc, backend, err := openService(cmd.Context(), registry.ServiceConfig{})
			if err != nil {
				return err
			}
			defer backend.Close()

			n, err := svc.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d professionals\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the deletion")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the professionals table if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Database.AutoMigrate = true
			_, backend, err := openService(cmd.Context(), registry.ServiceConfig{})
			if err != nil {
				return err
			}
			defer backend.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			if err := backend.Ping(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		subject string
		name    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin bearer token signed with JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := middleware.SignToken(&cfg.Security, subject, name, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "admin", "token subject")
	cmd.Flags().StringVar(&name, "name", "", "display name stored in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
