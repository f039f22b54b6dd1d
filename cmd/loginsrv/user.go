package main

import (
	"context"

	login "github.com/goliatone/go-login"
	"github.com/goliatone/go-login/activitymap"
	"github.com/spf13/cobra"
)

const operatorActor = "loginsrv"

// NewUserCmd creates the user subcommand group.
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Inspect and change user accounts",
	}

	cmd.AddCommand(newUserListCmd())
	cmd.AddCommand(newUserStateCmd("enable", "Enable an account", login.UserStateEnabled))
	cmd.AddCommand(newUserStateCmd("disable", "Disable an account and revoke its remember-me series", login.UserStateDisabled))

	return cmd
}

func newUserListCmd() *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			users, err := app.repo.Users().ListUsers(cmd.Context(), login.UserState(state))
			if err != nil {
				return err
			}

			for _, u := range users {
				cmd.Printf("%-16s %-8s %s\n", u.Username, u.State, u.Email)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "only list accounts in this state (enabled, disabled)")
	return cmd
}

func newUserStateCmd(use, short string, target login.UserState) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   use + " <username>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			logger := app.GetLogger("lifecycle")
			activityLogger := app.GetLogger("activity")

			lc := login.NewUserLifecycle(app.repo.Users(),
				login.WithLifecycleLogger(logger),
				login.WithLifecycleRememberMe(login.NewRememberMe(app.repo.RememberMe(),
					login.WithRememberMeLogger(logger),
				)),
				login.WithLifecycleActivitySink(activitymap.Sink(func(_ context.Context, n activitymap.Normalized) error {
					activityLogger.Info(n.Verb, "actor", n.ActorID, "object", n.ObjectID, "metadata", n.Metadata)
					return nil
				})),
			)

			user, err := lc.Transition(cmd.Context(), operatorActor, args[0], target,
				login.WithTransitionReason(reason),
			)
			if err != nil {
				return err
			}

			cmd.Printf("%s is %s\n", user.Username, user.State)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded with the change")
	return cmd
}

func openApp(cmd *cobra.Command) (*App, error) {
	cfg, err := loadConfig(configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	app := &App{config: cfg, logger: newLogger(cfg)}
	if err := WithPersistence(cmd.Context(), app); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}
