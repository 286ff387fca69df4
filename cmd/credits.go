package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/synchearts/relay/internal/ledger"
	"github.com/synchearts/relay/internal/store"
)

func creditsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Inspect and top up user balances",
	}
	cmd.AddCommand(creditsBalanceCmd())
	cmd.AddCommand(creditsGrantCmd())
	return cmd
}

func creditsBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <user_id>",
		Short: "Show a user's credit balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return withStores(func(ctx context.Context, stores *store.Stores) error {
				bal, err := ledger.New(stores.Users).Balance(ctx, userID)
				if err != nil {
					return err
				}
				fmt.Printf("user %d: %d credits\n", userID, bal)
				return nil
			})
		},
	}
}

func creditsGrantCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grant <user_id> <amount>",
		Short: "Add credits to a user's balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || amount <= 0 {
				return fmt.Errorf("amount must be a positive integer, got %q", args[1])
			}
			return withStores(func(ctx context.Context, stores *store.Stores) error {
				lg := ledger.New(stores.Users)
				if err := lg.Grant(ctx, userID, amount); err != nil {
					return err
				}
				bal, err := lg.Balance(ctx, userID)
				if err != nil {
					return err
				}
				fmt.Printf("granted %d to user %d, balance is now %d\n", amount, userID, bal)
				return nil
			})
		},
	}
}

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("user id must be a positive integer, got %q", s)
	}
	return id, nil
}
