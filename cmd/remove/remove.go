package remove

import (
	"github.com/spf13/cobra"

	"github.com/bedjamahdi/scanpest-go/internal/app"
	"github.com/bedjamahdi/scanpest-go/internal/conf"
	"github.com/bedjamahdi/scanpest-go/internal/errors"
)

// Command creates the remove command. Removal is a soft delete: rows
// are flagged and disappear from queries, and the next sync propagates
// the deletion to the server.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		id   uint
		pest string
		all  bool
	)

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove detections",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd, settings, id, pest, all)
		},
	}

	cmd.Flags().UintVar(&id, "id", 0, "Remove a single detection by id")
	cmd.Flags().StringVar(&pest, "pest", "", "Remove all detections of this pest")
	cmd.Flags().BoolVar(&all, "all", false, "Remove all detections")

	return cmd
}

func runRemove(cmd *cobra.Command, settings *conf.Settings, id uint, pest string, all bool) error {
	selected := 0
	if id != 0 {
		selected++
	}
	if pest != "" {
		selected++
	}
	if all {
		selected++
	}
	if selected != 1 {
		return errors.Newf("exactly one of --id, --pest or --all is required").
			Category(errors.CategoryValidation).
			Build()
	}

	application, err := app.New(settings, settings.Auth.UserID, settings.Auth.Token)
	if err != nil {
		return err
	}
	defer func() { _ = application.Close() }()

	ctx := cmd.Context()

	switch {
	case id != 0:
		if err := application.Detections.SoftDelete(ctx, id); err != nil {
			return err
		}
		cmd.Printf("Removed detection #%d\n", id)
	case pest != "":
		if err := application.Detections.SoftDeleteByPestName(ctx, pest); err != nil {
			return err
		}
		cmd.Printf("Removed detections of %q\n", pest)
	default:
		if err := application.Detections.SoftDeleteAll(ctx); err != nil {
			return err
		}
		cmd.Println("Removed all detections")
	}

	cmd.Println("Run 'scanpest sync' to propagate the removal to the server")
	return nil
}
