// Command mustach renders Mustache templates from the command line.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-mustach/mustach/pkg/mustach"
	"gopkg.in/yaml.v3"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "render":
		err = runRender(os.Args[2:])
	case "check":
		err = runCheck(os.Args[2:])
	case "version":
		fmt.Println("mustach version " + version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "mustach: "+err.Error())
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: mustach <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  render [-d <data.yaml|data.json>] [-o <output>] <template> render a template")
	fmt.Println("  check <template>                                          compile a template and report errors")
	fmt.Println("  version                                                   show version information")
}

func runRender(args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	dataPath := fs.String("d", "", "path to a YAML or JSON data file")
	outPath := fs.String("o", "", "output path (default: stdout)")
	strict := fs.Bool("strict", false, "abort on missing top-level names instead of rendering empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("render requires a template path")
	}
	templatePath := fs.Arg(0)

	data := map[string]any{}
	if *dataPath != "" {
		var err error
		data, err = loadDataFile(*dataPath)
		if err != nil {
			return fmt.Errorf("loading data: %w", err)
		}
	}

	engine := mustach.New()
	prog, err := engine.PrepareFile(templatePath)
	if err != nil {
		return err
	}

	out, err := mustach.RenderStrict(prog, data, *strict)
	if err != nil {
		return err
	}

	if *outPath == "" {
		_, err = fmt.Print(out)
		return err
	}
	return os.WriteFile(*outPath, []byte(out), 0o644)
}

func runCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("check requires a template path")
	}
	templatePath := fs.Arg(0)

	engine := mustach.New()
	prog, err := engine.PrepareFile(templatePath)
	if err != nil {
		return err
	}
	fmt.Printf("OK: %s (%d instructions, %d bytes of data, %d templates)\n",
		templatePath, prog.InstructionCount(), prog.DataLen(), prog.DirectoryEntries())
	return nil
}

func loadDataFile(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	data := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, err
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unrecognized data file extension %q", filepath.Ext(path))
	}
	return data, nil
}
