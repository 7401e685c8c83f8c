package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/hive/internal/session"
	"github.com/ShayCichocki/hive/internal/tail"
)

var logsFollow bool

var logsCmd = &cobra.Command{
	Use:   "logs <session-id> <instance-id>",
	Short: "Print an instance's log stream",
	Long: `Print the recorded log stream of one instance of a session.

With --follow the stream stays open and new output is printed as the
instance produces it, which is the way to watch a satellite instance
while the swarm is running.`,
	Args: cobra.ExactArgs(2),
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Stream new output as it is written")
	logsCmd.Flags().StringVar(&runRootDir, "root-dir", "", "Override the sessions root directory")
}

func runLogs(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	store := session.NewStore(settings.SessionRoot)
	logPath := store.LogPath(args[0], args[1])

	if !logsFollow {
		_, err := tail.Replay(logPath, 0, os.Stdout)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	_, err = tail.Follow(ctx, logPath, 0, os.Stdout)
	return err
}
