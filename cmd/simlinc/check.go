package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// checkCmd represents the check command.
var checkCmd = &cobra.Command{
	Use:   "check [flags] project_file",
	Short: "Check a project (or one of its models) for errors.",
	Long: `Check a project against the engine's invariants: name
uniqueness, reference closure, topological soundness and unit consistency.
Prints every diagnostic detail and exits non-zero if the model is not
simulatable.`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) != 1 {
			fmt.Println(cmd.UsageString())
			os.Exit(1)
		}

		proj := openProject(cmd, args[0])
		defer proj.Unref()

		if ferr := proj.GetErrors(); ferr != nil {
			for i := 0; i < ferr.DetailCount(); i++ {
				d, _ := ferr.Detail(i)
				log.Errorf("%s: %s", d.ModelName, d.Error())
			}
		}

		name := GetString(cmd, "model")
		if name == "" {
			names := proj.Names()
			if len(names) == 0 {
				fmt.Println("project has no models")
				os.Exit(1)
			}
			name = names[0]
		}
		if !proj.IsSimulatable(name) {
			fmt.Printf("%s: not simulatable\n", name)
			os.Exit(1)
		}
		fmt.Printf("%s: ok\n", name)
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
