package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/hive/internal/config"
	"github.com/ShayCichocki/hive/internal/session"
	"github.com/ShayCichocki/hive/internal/supervisor"
	"github.com/ShayCichocki/hive/internal/workdir"
)

var (
	runConfigPath string
	runSessionID  string
	runRootDir    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Launch a swarm from a topology document",
	Long: `Load and validate the topology document, resolve every instance's
working directory against the current directory, create a session, and
launch the main instance in the foreground.

Satellite instances are not started here: the main instance spawns them
on demand through the MCP manifests hive writes into the session.

Examples:
  hive run                           # hive.yaml in the current directory
  hive run --config team.yaml        # a specific document
  hive run --session-id 20260825-103000-1a2b3c4d   # resume a prior session`,
	Args: cobra.NoArgs,
	RunE: runSwarm,
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", config.DefaultDocumentName, "Topology document to load")
	runCmd.Flags().StringVar(&runSessionID, "session-id", "", "Resume a previously recorded session instead of starting fresh")
	runCmd.Flags().StringVar(&runRootDir, "root-dir", "", "Override the sessions root directory")
}

func runSwarm(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	if runSessionID != "" {
		return restoreSwarm(settings, runSessionID)
	}

	if err := CheckClaudeCLI(settings.ClaudeBinary); err != nil {
		return err
	}

	def, err := config.Load(runConfigPath)
	if err != nil {
		return err
	}

	// The launch directory is captured exactly once; every relative
	// instance directory resolves against it, never against the document's
	// own location.
	baseDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	resolver, err := workdir.NewResolver(baseDir)
	if err != nil {
		return err
	}
	resolved := resolver.ResolveAll(def)

	store := session.NewStore(settings.SessionRoot)
	sess, err := store.Create(def, resolved, baseDir)
	if err != nil {
		return err
	}

	fmt.Printf("Session %s: swarm %q, main instance %q (%d instances)\n",
		sess.ID, def.Name, def.MainID, len(def.Instances))

	return superviseSession(settings, supervisor.Options{
		Definition: def,
		Resolved:   resolved,
		Store:      store,
		Session:    sess,
		Settings:   settings,
	})
}

// superviseSession wires the optional pieces (index, debug log) around the
// supervisor and runs the session to completion.
func superviseSession(settings *config.Settings, opts supervisor.Options) error {
	if index, err := session.OpenIndex(session.IndexPath(settings.SessionRoot)); err == nil {
		if err := index.Migrate(); err == nil {
			opts.Index = index
		}
		defer index.Close()
	}

	debug, err := supervisor.NewDebugLogger(settings.DebugLog)
	if err != nil {
		return err
	}
	defer debug.Close()
	opts.Debug = debug

	sup, err := supervisor.New(opts)
	if err != nil {
		return err
	}
	return sup.Run(context.Background())
}

// loadSettings loads tool settings and applies command-line overrides.
func loadSettings() (*config.Settings, error) {
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, err
	}
	if runRootDir != "" {
		settings.SessionRoot = runRootDir
	}
	return settings, nil
}
