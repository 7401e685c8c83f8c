package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/hive/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded sessions",
	Long: `List every session recorded in the session index, newest first.

Statuses:
  active    the session is (or was last seen) running
  stopped   the main instance exited cleanly
  crashed   the main instance exited abnormally
  aborted   startup failed or the run was interrupted
  restored  the session was resumed from a prior run`,
	RunE: runSessions,
}

func init() {
	sessionsCmd.Flags().StringVar(&runRootDir, "root-dir", "", "Override the sessions root directory")
}

func runSessions(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	indexPath := session.IndexPath(settings.SessionRoot)
	if _, err := os.Stat(indexPath); os.IsNotExist(err) {
		fmt.Println("No sessions recorded. Run 'hive run' to start one.")
		return nil
	}

	index, err := session.OpenIndex(indexPath)
	if err != nil {
		return err
	}
	defer index.Close()
	if err := index.Migrate(); err != nil {
		return err
	}

	entries, err := index.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No sessions recorded. Run 'hive run' to start one.")
		return nil
	}

	fmt.Printf("%-34s  %-20s  %-19s  %s\n", "SESSION", "SWARM", "CREATED", "STATUS")
	for _, e := range entries {
		fmt.Printf("%-34s  %-20s  %-19s  %s\n",
			e.ID, e.Name, e.CreatedAt.Local().Format("2006-01-02 15:04:05"), statusLabel(e.Status))
	}
	return nil
}

func statusLabel(status session.IndexStatus) string {
	switch status {
	case session.IndexActive, session.IndexRestored:
		return color.GreenString(string(status))
	case session.IndexCrashed:
		return color.RedString(string(status))
	case session.IndexAborted:
		return color.YellowString(string(status))
	default:
		return string(status)
	}
}
