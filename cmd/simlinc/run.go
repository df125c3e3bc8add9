package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/segmentio/encoding/json"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bpowers/simlin/internal/model/patch"
	"github.com/bpowers/simlin/pkg/simlin"
)

// runCmd represents the run command.
var runCmd = &cobra.Command{
	Use:   "run [flags] project_file",
	Short: "Simulate a model and print its saved series.",
	Long: `Run a model to its sim-specs stop time (or to --to, if given) and
print a tab-separated table of every saved snapshot, one row per step.`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) != 1 {
			fmt.Println(cmd.UsageString())
			os.Exit(1)
		}

		proj := openProject(cmd, args[0])
		defer proj.Unref()

		applySimSpecsOverrides(cmd, proj)

		m := pickModel(cmd, proj)
		defer m.Unref()

		sim, serr := simlin.New(m, simlin.SimOptions{EnableLTM: GetFlag(cmd, "ltm")})
		if serr != nil {
			log.Errorln(serr.Message())
			os.Exit(1)
		}
		defer sim.Unref()

		if to := GetFloat64(cmd, "to"); to != 0 {
			if ferr := sim.RunTo(to); ferr != nil {
				log.Errorln(ferr.Message())
				os.Exit(1)
			}
		} else if ferr := sim.RunToEnd(); ferr != nil {
			log.Errorln(ferr.Message())
			os.Exit(1)
		}

		idents := GetStringArrayFlag(cmd, "var")
		if len(idents) == 0 {
			idents = sim.GetVarNames()
		}
		printTable(cmd, sim, idents)
	},
}

func applySimSpecsOverrides(cmd *cobra.Command, proj *simlin.Project) {
	dt := GetFloat64(cmd, "dt")
	method := GetString(cmd, "method")
	if dt == 0 && method == "" {
		return
	}

	name := GetString(cmd, "model")
	if name == "" {
		names := proj.Names()
		if len(names) == 0 {
			return
		}
		name = names[0]
	}
	m, ok := proj.ByName(name)
	if !ok {
		return
	}
	defer m.Unref()

	b, ferr := m.GetSimSpecsJSON()
	if ferr != nil {
		log.Errorln(ferr.Message())
		os.Exit(1)
	}
	var cur struct {
		Start     float64  `json:"start"`
		Stop      float64  `json:"stop"`
		Dt        string   `json:"dt"`
		SaveStep  *float64 `json:"saveStep,omitempty"`
		Method    string   `json:"method"`
		TimeUnits string   `json:"timeUnits,omitempty"`
	}
	if err := json.Unmarshal(b, &cur); err != nil {
		log.Errorln(err)
		os.Exit(1)
	}

	if dt != 0 {
		cur.Dt = strconv.FormatFloat(dt, 'g', -1, 64)
	}
	if method != "" {
		cur.Method = method
	}

	ops := []patch.Op{{
		Op: patch.SetSimSpecs,
		SimSpecs: &patch.SimSpecsPatch{
			Start: cur.Start, Stop: cur.Stop, Dt: cur.Dt,
			SaveStep: cur.SaveStep, Method: cur.Method, TimeUnits: cur.TimeUnits,
		},
	}}
	opsJSON, err := json.Marshal(ops)
	if err != nil {
		log.Errorln(err)
		os.Exit(1)
	}
	if ferr := proj.ApplyPatch(name, opsJSON, false, false); ferr != nil {
		log.Errorln(ferr.Message())
		os.Exit(1)
	}
}

func printTable(cmd *cobra.Command, sim *simlin.Sim, idents []string) {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		width = 80
	}

	header := strings.Join(idents, "\t")
	fmt.Println(header)
	steps := sim.GetStepCount()
	series := make([][]float64, len(idents))
	for i, ident := range idents {
		s, ok := sim.GetSeries(ident)
		if !ok {
			s = make([]float64, steps)
		}
		series[i] = s
	}
	for row := 0; row < steps; row++ {
		cells := make([]string, len(idents))
		for i := range idents {
			cells[i] = strconv.FormatFloat(series[i][row], 'g', -1, 64)
		}
		line := strings.Join(cells, "\t")
		if len(line) > width && width > 3 {
			line = line[:width-3] + "..."
		}
		fmt.Println(line)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Float64("to", 0, "run only until this time (0 runs to sim_specs.stop)")
	runCmd.Flags().Bool("ltm", false, "enable Loops-That-Matter score accumulation")
	runCmd.Flags().StringArray("var", nil, "restrict output to these variables (repeatable; defaults to all)")
}
