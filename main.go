package main

import (
	"fmt"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/hauke96/sigolo/v2"
	"github.com/hjanetzek/geodesk-fdw/gol"
	"github.com/hjanetzek/geodesk-fdw/importing"
	ownIo "github.com/hjanetzek/geodesk-fdw/io"
	"github.com/hjanetzek/geodesk-fdw/pushdown"
	"github.com/hjanetzek/geodesk-fdw/scan"
	"github.com/hjanetzek/geodesk-fdw/web"
)

const VERSION = "v0.1.0"

var cli struct {
	Logging string      `help:"Logging verbosity." enum:"info,debug,trace" short:"l" default:"info"`
	Version VersionFlag `help:"Print version information and quit" name:"version" short:"v"`
	Import  struct {
		Input  string `help:"The input file. Either .osm or .osm.pbf." placeholder:"<input-file>" arg:"" type:"existingfile"`
		Output string `help:"The store file to write." placeholder:"<store-file>" short:"o" default:"features.gol"`
	} `cmd:"" help:"Imports the given OSM file into a feature store."`
	Query struct {
		Store  string `help:"The store file to query." placeholder:"<store-file>" arg:"" type:"existingfile"`
		Filter string `help:"The filter expression. Empty matches all features." placeholder:"<filter>" arg:"" optional:""`
		Fields string `help:"Comma separated fields to materialize." default:"tags,geometry"`
		Output string `help:"The GeoJSON file to write." short:"o" default:"result.geojson"`
	} `cmd:"" help:"Scans the store and writes matching features as GeoJSON."`
	Explain struct {
		Store  string `help:"The store file to query." placeholder:"<store-file>" arg:"" type:"existingfile"`
		Filter string `help:"The filter expression." placeholder:"<filter>" arg:"" optional:""`
	} `cmd:"" help:"Shows the scan plan and row estimate for a filter."`
	Serve struct {
		Store string `help:"The store file to serve." placeholder:"<store-file>" arg:"" type:"existingfile"`
		Port  string `help:"The port to listen on." default:"8080"`
	} `cmd:"" help:"Starts the HTTP API serving features from the store."`
}

type VersionFlag string

func (v VersionFlag) Decode(ctx *kong.DecodeContext) error { return nil }
func (v VersionFlag) IsBool() bool                         { return true }
func (v VersionFlag) BeforeApply(app *kong.Kong, vars kong.Vars) error {
	fmt.Println(vars["version"])
	app.Exit(0)
	return nil
}

func main() {
	ctx := kong.Parse(
		&cli,
		kong.Name("geodesk-fdw"),
		kong.Description("A columnar feature store for OSM data with filter pushdown."),
		kong.Vars{
			"version": VERSION,
		},
	)

	if strings.ToLower(cli.Logging) == "debug" {
		sigolo.SetDefaultLogLevel(sigolo.LOG_DEBUG)
	} else if strings.ToLower(cli.Logging) == "trace" {
		sigolo.SetDefaultLogLevel(sigolo.LOG_TRACE)
	} else if strings.ToLower(cli.Logging) == "info" {
		sigolo.SetDefaultLogLevel(sigolo.LOG_INFO)
		sigolo.SetDefaultFormatFunctionAll(sigolo.LogPlain)
	} else {
		sigolo.SetDefaultFormatFunctionAll(sigolo.LogPlain)
		sigolo.Fatalf("Unknown logging level '%s'", cli.Logging)
	}

	switch ctx.Command() {
	case "import <input>":
		err := importing.Import(cli.Import.Input, cli.Import.Output)
		sigolo.FatalCheck(err)
	case "query <store>", "query <store> <filter>":
		runQuery()
	case "explain <store>", "explain <store> <filter>":
		runExplain()
	case "serve <store>":
		web.StartServer(cli.Serve.Port, cli.Serve.Store)
	default:
		sigolo.Errorf("Unknown command '%s'", ctx.Command())
	}
}

func runQuery() {
	store, err := gol.Open(cli.Query.Store)
	sigolo.FatalCheck(err)
	defer store.Close()

	fields, err := scan.ParseFields(cli.Query.Fields)
	sigolo.FatalCheck(err)

	scanner, err := scan.NewScanner(store, cli.Query.Filter, fields, scan.DefaultOptions())
	sigolo.FatalCheck(err)
	defer scanner.Close()

	var rows []*scan.Row
	for {
		row, err := scanner.Next()
		sigolo.FatalCheck(err)
		if row == nil {
			break
		}
		rows = append(rows, row)
	}

	sigolo.Infof("Found %d features", len(rows))

	err = ownIo.WriteRowsAsGeoJsonFile(rows, cli.Query.Output)
	sigolo.FatalCheck(err)
}

func runExplain() {
	store, err := gol.Open(cli.Explain.Store)
	sigolo.FatalCheck(err)
	defer store.Close()

	filter, err := pushdown.ParseFilter(cli.Explain.Filter)
	sigolo.FatalCheck(err)

	plan := pushdown.Translate(filter)

	fmt.Printf("store query : %q\n", plan.StoreQuery())
	if plan.Box != nil {
		fmt.Printf("box         : %v\n", *plan.Box)
	}
	fmt.Printf("pushed      : %d predicates\n", len(plan.Pushed))
	fmt.Printf("residual    : %d predicates\n", len(plan.Residual))
	fmt.Printf("row estimate: %.0f\n", pushdown.EstimateRows(plan))
}
