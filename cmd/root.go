package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bedjamahdi/scanpest-go/cmd/history"
	"github.com/bedjamahdi/scanpest-go/cmd/note"
	"github.com/bedjamahdi/scanpest-go/cmd/remove"
	"github.com/bedjamahdi/scanpest-go/cmd/sync"
	"github.com/bedjamahdi/scanpest-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "scanpest",
		Short: "ScanPest CLI",
		Long:  "Manage locally stored pest detections and keep them in sync with the ScanPest server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			// A bare invocation runs a sync pass when configured to,
			// otherwise shows usage.
			if settings.Sync.OnStart {
				return sync.Run(cmd, settings)
			}
			return cmd.Help()
		},
	}

	setupFlags(rootCmd, settings)

	rootCmd.AddCommand(
		sync.Command(settings),
		history.Command(settings),
		note.Command(settings),
		remove.Command(settings),
	)

	return rootCmd
}

// setupFlags configures the global flags for the root command.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Server.URL, "server", viper.GetString("server.url"), "Base URL of the sync server")
	rootCmd.PersistentFlags().IntVar(&settings.Auth.UserID, "user", viper.GetInt("auth.userid"), "User id on the sync server")
	rootCmd.PersistentFlags().StringVar(&settings.Auth.Token, "token", viper.GetString("auth.token"), "API token for the sync server")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Printf("error binding flags: %v\n", err)
	}
}
