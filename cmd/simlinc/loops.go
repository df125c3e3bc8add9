package main

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bpowers/simlin/internal/analysis"
)

// loopsCmd represents the loops command.
var loopsCmd = &cobra.Command{
	Use:   "loops [flags] project_file",
	Short: "Enumerate the structural feedback loops of a model.",
	Long: `Enumerate every elementary cycle in a model's step-dependency
graph (Johnson's algorithm), reporting each loop's stable id, vertex
sequence, and statically-inferred polarity.`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) != 1 {
			fmt.Println(cmd.UsageString())
			os.Exit(1)
		}

		proj := openProject(cmd, args[0])
		defer proj.Unref()

		name := GetString(cmd, "model")
		if name == "" {
			names := proj.Names()
			if len(names) == 0 {
				fmt.Println("project has no models")
				os.Exit(1)
			}
			name = names[0]
		}

		loops, ferr := proj.AnalyzeGetLoops(name)
		if ferr != nil {
			log.Errorln(ferr.Message())
			os.Exit(1)
		}
		defer loops.Unref()

		for i := 0; i < loops.Count(); i++ {
			l, _ := loops.Get(i)
			fmt.Printf("%s\t%s\t%s\n", l.ID, polarityString(l.Polarity), strings.Join(l.Vertices, " -> "))
		}
	},
}

func polarityString(p analysis.Polarity) string {
	switch p {
	case analysis.PolarityPositive:
		return "R"
	case analysis.PolarityNegative:
		return "B"
	default:
		return "?"
	}
}

func init() {
	rootCmd.AddCommand(loopsCmd)
}
