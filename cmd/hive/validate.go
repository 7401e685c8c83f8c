package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/hive/internal/config"
)

var validateConfigPath string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a topology document",
	Long: `Load and validate the topology document without launching anything,
then print the compiled topology.

Validation stops at the first problem and reports which instance and
field it concerns. Working directories are not probed here; a missing
directory only surfaces when its instance is about to be spawned.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVarP(&validateConfigPath, "config", "c", config.DefaultDocumentName, "Topology document to load")
}

func runValidate(cmd *cobra.Command, args []string) error {
	def, err := config.Load(validateConfigPath)
	if err != nil {
		return err
	}

	fmt.Printf("%s %s is valid\n\n", color.GreenString("✓"), validateConfigPath)
	fmt.Printf("Swarm: %s\n", def.Name)
	for _, id := range def.InstanceIDs() {
		inst := def.Instances[id]
		marker := " "
		if id == def.MainID {
			marker = "*"
		}
		fmt.Printf("  %s %s: %s\n", marker, id, inst.Description)
		if len(inst.Connections) > 0 {
			fmt.Printf("      connects to %s\n", strings.Join(inst.Connections, ", "))
		}
	}
	fmt.Println("\n* main instance")
	return nil
}
