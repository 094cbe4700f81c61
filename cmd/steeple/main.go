package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"steeple/internal/app"
	"steeple/internal/db"
	"steeple/internal/domain"
	"steeple/internal/seed"
	"steeple/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "steeple",
	Short: "Steeple CLI",
	Long: `Steeple routes church-operations requests into a read lane and an
action lane, and executes action plans safely: per-shard locks,
default-deny authorization, idempotent side effects and two-phase
hold/confirm for contested rooms and volunteers.

Plans are proposals. Nothing runs until you call 'steeple execute'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("STEEPLE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().StringSlice("actor-roles", []string{"staff"}, "actor role codes")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("actor-roles", rootCmd.PersistentFlags().Lookup("actor-roles"))
}

func registerCommands() {
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(routeCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(executeCmd())
	rootCmd.AddCommand(holdsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func withKernel(ctx context.Context, fn func(context.Context, *app.Kernel) error) error {
	k, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer k.Close()
	return fn(ctx, k)
}

func actor() domain.Actor {
	return domain.Actor{
		ID:    viper.GetString("actor-id"),
		Roles: viper.GetStringSlice("actor-roles"),
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the deterministic dev dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKernel(cmd.Context(), func(ctx context.Context, k *app.Kernel) error {
				anchor, err := k.Cfg.AnchorTime()
				if err != nil {
					return err
				}
				if err := seed.Load(ctx, k.Repo, k.Cfg.Tenant, anchor); err != nil {
					return err
				}
				fmt.Printf("seeded tenant %s anchored at %s\n", k.Cfg.Tenant, k.Cfg.AnchorDate)
				return nil
			})
		},
	}
}

func routeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "route <text>",
		Short: "Classify a message into a lane",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKernel(cmd.Context(), func(ctx context.Context, k *app.Kernel) error {
				d := k.Router.Classify(strings.Join(args, " "))
				if viper.GetBool("json") {
					return printJSON(d)
				}
				fmt.Printf("lane=%s event_key=%s correlation_id=%s\n", d.Lane, d.EventKey, d.CorrelationID)
				return nil
			})
		},
	}
}

func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer an informational question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKernel(cmd.Context(), func(ctx context.Context, k *app.Kernel) error {
				res, err := k.QA.Answer(ctx, k.Cfg.Tenant, actor(), strings.Join(args, " "))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Println(res.Answer)
				if res.Cached {
					fmt.Println("(cached)")
				}
				return nil
			})
		},
	}
}

func planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <text>",
		Short: "Produce a plan proposal without executing it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKernel(cmd.Context(), func(ctx context.Context, k *app.Kernel) error {
				text := strings.Join(args, " ")
				d := k.Router.Classify(text)
				lane := d.Lane
				if lane == domain.LaneHybrid {
					lane = domain.LaneAction
				}
				plan, err := k.Planner.Plan(ctx, k.Cfg.Tenant, actor(), text, lane)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"lane": d.Lane, "plan": plan})
			})
		},
	}
}

func executeCmd() *cobra.Command {
	var planJSON, planFile, correlationID string
	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Execute a proposed plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKernel(cmd.Context(), func(ctx context.Context, k *app.Kernel) error {
				raw := []byte(planJSON)
				if planFile != "" {
					data, err := os.ReadFile(planFile)
					if err != nil {
						return err
					}
					raw = data
				}
				if len(raw) == 0 {
					return fmt.Errorf("provide --plan or --plan-file")
				}
				var plan domain.Plan
				if err := json.Unmarshal(raw, &plan); err != nil {
					return fmt.Errorf("decode plan: %w", err)
				}
				res, err := k.Execute(ctx, actor(), correlationID, plan)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Verb", "OK", "Replay", "Kind", "Error"})
				for _, r := range res.Results {
					tw.AppendRow(table.Row{r.Verb, r.OK, r.Replay, r.Kind, r.Error})
				}
				tw.Render()
				if res.Question != "" {
					fmt.Println(res.Question)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&planJSON, "plan", "", "plan JSON")
	cmd.Flags().StringVar(&planFile, "plan-file", "", "path to plan JSON file")
	cmd.Flags().StringVar(&correlationID, "correlation-id", "", "correlation id from routing")
	return cmd
}

func holdsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "holds",
		Short: "List holds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKernel(cmd.Context(), func(ctx context.Context, k *app.Kernel) error {
				holds, err := k.Repo.ListHolds(ctx, k.Cfg.Tenant)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(holds)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Kind", "Resource", "Start", "End", "Status", "Expires"})
				for _, h := range holds {
					tw.AppendRow(table.Row{h.ID, h.Kind, h.ResourceID, h.StartAt, h.EndAt, h.Status, h.ExpiresAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKernel(cmd.Context(), func(ctx context.Context, k *app.Kernel) error {
				evts, err := k.Repo.ListEvents(ctx, k.Cfg.Tenant, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Type", "Actor", "Shard", "Outcome"})
				for _, e := range evts {
					tw.AppendRow(table.Row{e.TS, e.Type, e.ActorID, e.Shard, e.Outcome})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&n, "limit", "n", 50, "number of events")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := app.Open(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer k.Close()
			if addr == "" {
				addr = k.Cfg.Server.Addr
			}
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("STEEPLE_JWT_SECRET"),
				AllowLegacyActorHeader: k.Cfg.Server.AllowLegacyActorHeader,
			}
			if authCfg.JWTSecret == "" {
				authCfg.JWTSecret = k.Cfg.Server.JWTSecret
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowLegacyActorHeader {
				return fmt.Errorf("STEEPLE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Kernel: k, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Steeple API on http://%s%s\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}
