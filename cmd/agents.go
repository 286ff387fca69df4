package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/synchearts/relay/internal/config"
	"github.com/synchearts/relay/internal/directory"
	"github.com/synchearts/relay/internal/store"
)

func agentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Manage the agent roster",
	}
	cmd.AddCommand(agentsListCmd())
	cmd.AddCommand(agentsSetModeCmd())
	cmd.AddCommand(agentsRetireCmd())
	return cmd
}

func withStores(fn func(ctx context.Context, stores *store.Stores) error) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	stores, err := openStores(cfg)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer stores.Close()
	return fn(context.Background(), stores)
}

func agentsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all agents with mode and operator binding",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(func(ctx context.Context, stores *store.Stores) error {
				agents, err := directory.New(stores.Agents).List(ctx)
				if err != nil {
					return err
				}
				if len(agents) == 0 {
					fmt.Println("no agents")
					return nil
				}

				// Count rooms per agent concurrently; purely informational.
				counts := make([]int, len(agents))
				g, gctx := errgroup.WithContext(ctx)
				g.SetLimit(4)
				for i, a := range agents {
					g.Go(func() error {
						n, err := stores.Rooms.CountByAgent(gctx, a.Name)
						if err != nil {
							return err
						}
						counts[i] = n
						return nil
					})
				}
				if err := g.Wait(); err != nil {
					return err
				}

				fmt.Printf("%-20s %-10s %-14s %s\n", "NAME", "MODE", "OPERATOR", "ROOMS")
				for i, a := range agents {
					operator := "-"
					if a.OperatorChatID != 0 {
						operator = fmt.Sprintf("%d", a.OperatorChatID)
					}
					fmt.Printf("%-20s %-10s %-14s %d\n", a.Name, a.Mode, operator, counts[i])
				}
				return nil
			})
		},
	}
}

func agentsSetModeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-mode <name> <auto|assisted>",
		Short: "Switch an agent's routing mode",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(func(ctx context.Context, stores *store.Stores) error {
				agent, err := directory.New(stores.Agents).SetMode(ctx, args[0], args[1], 0)
				if err != nil {
					return err
				}
				fmt.Printf("%s is now %s\n", agent.Name, agent.Mode)
				return nil
			})
		},
	}
}

func agentsRetireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retire <name>",
		Short: "Retire an agent (rooms are preserved)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(func(ctx context.Context, stores *store.Stores) error {
				if err := directory.New(stores.Agents).Retire(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("%s retired\n", args[0])
				return nil
			})
		},
	}
}
