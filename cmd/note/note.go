package note

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bedjamahdi/scanpest-go/internal/app"
	"github.com/bedjamahdi/scanpest-go/internal/conf"
	"github.com/bedjamahdi/scanpest-go/internal/errors"
)

// Command creates the note command for attaching notes to detections.
func Command(settings *conf.Settings) *cobra.Command {
	var clear bool

	cmd := &cobra.Command{
		Use:   "note <detection-id> [text...]",
		Short: "Set or clear the note on a detection",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNote(cmd, settings, args, clear)
		},
	}

	cmd.Flags().BoolVar(&clear, "clear", false, "Remove the note instead of setting it")

	return cmd
}

func runNote(cmd *cobra.Command, settings *conf.Settings, args []string, clear bool) error {
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return errors.Newf("invalid detection id %q", args[0]).
			Category(errors.CategoryValidation).
			Build()
	}

	application, err := app.New(settings, settings.Auth.UserID, settings.Auth.Token)
	if err != nil {
		return err
	}
	defer func() { _ = application.Close() }()

	ctx := cmd.Context()

	if clear {
		if err := application.Detections.ClearNote(ctx, uint(id)); err != nil {
			return err
		}
		cmd.Printf("Cleared note on detection #%d\n", id)
		return nil
	}

	text := strings.Join(args[1:], " ")
	if text == "" {
		return errors.Newf("note text required, or use --clear").
			Category(errors.CategoryValidation).
			Build()
	}

	if err := application.Detections.SetNote(ctx, uint(id), text); err != nil {
		return err
	}
	cmd.Printf("Saved note on detection #%d\n", id)
	return nil
}
