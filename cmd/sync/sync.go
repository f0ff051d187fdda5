package sync

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bedjamahdi/scanpest-go/internal/app"
	"github.com/bedjamahdi/scanpest-go/internal/conf"
)

// Command creates the sync command which runs one full sync pass.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Synchronize local detections with the server",
		Long:  "Run the full sync pass: pull missing detections, propagate deletions both ways and merge notes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd, settings)
		},
	}
}

// Run executes one full sync pass and reports the terminal outcome.
func Run(cmd *cobra.Command, settings *conf.Settings) error {
	application, err := app.New(settings, settings.Auth.UserID, settings.Auth.Token)
	if err != nil {
		return err
	}
	defer func() { _ = application.Close() }()

	events, cancel := application.Syncer.Subscribe()
	defer cancel()

	if err := application.Syncer.RunSync(cmd.Context()); err != nil {
		select {
		case ev := <-events:
			return fmt.Errorf("%s", ev.Message)
		default:
			return err
		}
	}

	cmd.Println("Sync completed")
	return nil
}
