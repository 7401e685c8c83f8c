package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/hive/internal/config"
	"github.com/ShayCichocki/hive/internal/session"
	"github.com/ShayCichocki/hive/internal/supervisor"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <session-id>",
	Short: "Resume a previously recorded session",
	Long: `Rehydrate a recorded session and relaunch its main instance.

The session's own topology snapshot is used, not the live hive.yaml:
editing or deleting the document after a run does not affect restoring
it. Prior terminal history is replayed before interaction resumes.

A session is only restorable if its main instance actually started; an
aborted startup leaves nothing to restore.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		return restoreSwarm(settings, args[0])
	},
}

func init() {
	restoreCmd.Flags().StringVar(&runRootDir, "root-dir", "", "Override the sessions root directory")
}

func restoreSwarm(settings *config.Settings, sessionID string) error {
	if err := CheckClaudeCLI(settings.ClaudeBinary); err != nil {
		return err
	}

	store := session.NewStore(settings.SessionRoot)
	snap, err := store.Restore(sessionID)
	if err != nil {
		return err
	}

	fmt.Printf("Restoring session %s: swarm %q, main instance %q\n",
		snap.Session.ID, snap.Definition.Name, snap.Definition.MainID)

	return superviseSession(settings, supervisor.Options{
		Definition: snap.Definition,
		Resolved:   snap.Resolved,
		Store:      store,
		Session:    snap.Session,
		Settings:   settings,
		Restored:   true,
	})
}
