package main

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bpowers/simlin/pkg/simlin"
)

// GetFlag gets an expected flag, or exits if an error arises.
func GetFlag(cmd *cobra.Command, flag string) bool {
	r, err := cmd.Flags().GetBool(flag)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	return r
}

// GetString gets an expected string flag, or exits if an error arises.
func GetString(cmd *cobra.Command, flag string) string {
	r, err := cmd.Flags().GetString(flag)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	return r
}

// GetUint gets an expected unsigned integer flag, or exits if an error
// arises.
func GetUint(cmd *cobra.Command, flag string) uint {
	r, err := cmd.Flags().GetUint(flag)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	return r
}

// GetFloat64 gets an expected float64 flag, or exits if an error arises.
func GetFloat64(cmd *cobra.Command, flag string) float64 {
	r, err := cmd.Flags().GetFloat64(flag)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	return r
}

// GetStringArrayFlag gets an expected string-array flag, or exits if an
// error arises.
func GetStringArrayFlag(cmd *cobra.Command, flag string) []string {
	r, err := cmd.Flags().GetStringArray(flag)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	return r
}

// openProject reads filename and parses it as a Project, picking the wire
// format from the --format flag (or the file extension when format is
// "auto", mirroring the way an embedder would dispatch between the
// open_* variants).
func openProject(cmd *cobra.Command, filename string) *simlin.Project {
	data, err := os.ReadFile(filename)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	format := GetString(cmd, "format")
	if format == "auto" {
		format = formatFromExt(filename)
	}

	var proj *simlin.Project
	var ferr *simlin.Error
	switch format {
	case "json":
		proj, ferr = simlin.OpenJSON(data)
	case "xmile":
		proj, ferr = simlin.OpenXMILE(data)
	case "vensim":
		proj, ferr = simlin.OpenVensim(data)
	default:
		proj, ferr = simlin.OpenProtobuf(data)
	}
	if ferr != nil {
		fmt.Println(ferr.Message())
		os.Exit(1)
	}
	return proj
}

func formatFromExt(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".json":
		return "json"
	case ".xmile", ".xml", ".itmx":
		return "xmile"
	case ".mdl":
		return "vensim"
	default:
		return "pb"
	}
}

// pickModel resolves the --model flag against proj, defaulting to the first
// declared model when the flag is unset (most test fixtures carry a single
// model).
func pickModel(cmd *cobra.Command, proj *simlin.Project) *simlin.Model {
	name := GetString(cmd, "model")
	if name == "" {
		names := proj.Names()
		if len(names) == 0 {
			fmt.Println("project has no models")
			os.Exit(1)
		}
		name = names[0]
	}
	m, ok := proj.ByName(name)
	if !ok {
		fmt.Printf("unknown model: %s\n", name)
		os.Exit(1)
	}
	return m
}
