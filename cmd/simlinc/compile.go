package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bpowers/simlin/pkg/simlin"
)

// compileCmd represents the compile command.
var compileCmd = &cobra.Command{
	Use:   "compile [flags] project_file",
	Short: "Compile a model and report its variable count.",
	Long: `Run the full resolve -> units -> compile pipeline against a model
and report success, or every diagnostic blocking simulation.`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) != 1 {
			fmt.Println(cmd.UsageString())
			os.Exit(1)
		}

		proj := openProject(cmd, args[0])
		defer proj.Unref()

		m := pickModel(cmd, proj)
		defer m.Unref()

		if !proj.IsSimulatable(m.GetName()) {
			if ferr := proj.GetErrors(); ferr != nil {
				for i := 0; i < ferr.DetailCount(); i++ {
					d, _ := ferr.Detail(i)
					log.Errorf("%s: %s", d.ModelName, d.Error())
				}
			}
			os.Exit(1)
		}

		names := m.GetVarNames(simlin.MaskAll, "")
		fmt.Printf("%s: compiled ok, %d variables\n", m.GetName(), len(names))

		if out := GetString(cmd, "out"); out != "" {
			b, ferr := proj.SerializeProtobuf()
			if ferr != nil {
				log.Errorln(ferr.Message())
				os.Exit(1)
			}
			if err := os.WriteFile(out, b, 0644); err != nil {
				log.Errorln(err)
				os.Exit(1)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(compileCmd)
	compileCmd.Flags().String("out", "", "write the recompiled project back out in the binary wire format")
}
