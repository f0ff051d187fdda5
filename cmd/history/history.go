package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bedjamahdi/scanpest-go/internal/app"
	"github.com/bedjamahdi/scanpest-go/internal/conf"
	"github.com/bedjamahdi/scanpest-go/internal/datastore"
)

// Command creates the history command for browsing stored detections.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		pest      string
		ascending bool
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored detections",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, settings, pest, ascending, limit)
		},
	}

	cmd.Flags().StringVar(&pest, "pest", "", "Only show detections of this pest")
	cmd.Flags().BoolVar(&ascending, "asc", false, "Oldest first instead of newest first")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of detections to show (0 = all)")

	return cmd
}

func runHistory(cmd *cobra.Command, settings *conf.Settings, pest string, ascending bool, limit int) error {
	application, err := app.New(settings, settings.Auth.UserID, settings.Auth.Token)
	if err != nil {
		return err
	}
	defer func() { _ = application.Close() }()

	ctx := cmd.Context()

	var detections []datastore.Detection
	if pest != "" {
		detections, err = application.Detections.QueryByPestName(ctx, pest, !ascending)
	} else {
		detections, err = application.Detections.QuerySorted(ctx, !ascending)
	}
	if err != nil {
		return err
	}

	if limit > 0 && len(detections) > limit {
		detections = detections[:limit]
	}

	if len(detections) == 0 {
		cmd.Println("No detections stored")
		return nil
	}

	for i := range detections {
		cmd.Println(formatDetection(&detections[i]))
	}
	return nil
}

func formatDetection(det *datastore.Detection) string {
	date := time.UnixMilli(det.DetectionDate).Format("2006-01-02 15:04")

	pests := make([]string, 0, len(det.Boxes))
	seen := make(map[string]bool, len(det.Boxes))
	for _, box := range det.Boxes {
		if !seen[box.ClsName] {
			seen[box.ClsName] = true
			pests = append(pests, box.ClsName)
		}
	}

	line := fmt.Sprintf("#%d  %s  %s", det.ID, date, strings.Join(pests, ", "))
	if det.Note != nil && *det.Note != "" {
		line += fmt.Sprintf("  note: %q", *det.Note)
	}
	if !det.IsSynced {
		line += "  (unsynced)"
	}
	return line
}
