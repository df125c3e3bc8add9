package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// patchCmd represents the patch command.
var patchCmd = &cobra.Command{
	Use:   "patch [flags] project_file patch_file",
	Short: "Apply a patch document to a model and write the result back out.",
	Long: `Apply a JSON array of patch operations to a model: upsert/delete/rename variables, edit views, or replace
sim-specs. By default new errors introduced by the patch reject the whole
patch unchanged; --allow-errors commits anyway, and --dry-run always rolls
back while still reporting what would have happened.`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) != 2 {
			fmt.Println(cmd.UsageString())
			os.Exit(1)
		}

		proj := openProject(cmd, args[0])
		defer proj.Unref()

		patchJSON, err := os.ReadFile(args[1])
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
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

		dryRun := GetFlag(cmd, "dry-run")
		allowErrors := GetFlag(cmd, "allow-errors")
		if ferr := proj.ApplyPatch(name, patchJSON, dryRun, allowErrors); ferr != nil {
			for i := 0; i < ferr.DetailCount(); i++ {
				d, _ := ferr.Detail(i)
				log.Errorf("%s: %s", d.ModelName, d.Error())
			}
			if !allowErrors {
				os.Exit(1)
			}
		}

		if dryRun {
			fmt.Println("dry run: project left unchanged")
			return
		}

		out := GetString(cmd, "out")
		if out == "" {
			out = args[0]
		}
		b, ferr := proj.SerializeProtobuf()
		if ferr != nil {
			log.Errorln(ferr.Message())
			os.Exit(1)
		}
		if err := os.WriteFile(out, b, 0644); err != nil {
			log.Errorln(err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", out)
	},
}

func init() {
	rootCmd.AddCommand(patchCmd)
	patchCmd.Flags().Bool("dry-run", false, "validate the patch without committing it")
	patchCmd.Flags().Bool("allow-errors", false, "commit the patch even if it introduces new errors")
	patchCmd.Flags().String("out", "", "output file (defaults to overwriting project_file)")
}
