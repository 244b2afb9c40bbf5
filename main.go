// ClimDiag
package main

import (
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/climdiag/climdiag-go/climdiag"
	"github.com/hhkbp2/go-logging"
)

func main() {
	parser := argparse.NewParser("climdiag", "Diagnostic post-processing for climate-model output")

	tasChange := parser.NewCommand("tas-change", "Per-year percentile distribution of the normalized temperature change")
	uajet := parser.NewCommand("uajet", "Latitude of maximum eastward wind speed at 850 hPa")
	mlrPlot := parser.NewCommand("mlr-plot", "Absolute and bias plots for regression-model output")

	settingsPath := parser.String("s", "settings", &argparse.Options{
		Default: "",
		Help:    "Settings YAML file"})

	inputFiles := parser.StringList("i", "input", &argparse.Options{
		Help: "Metadata YAML file(s) describing the input data"})

	outputDir := parser.String("o", "output_dir", &argparse.Options{
		Default: ".",
		Help:    "Directory for tables, plots and provenance records"})

	refStart := parser.Int("", "ref_start", &argparse.Options{
		Default: 1980,
		Help:    "First year of the reference period"})

	refEnd := parser.Int("", "ref_end", &argparse.Options{
		Default: 2009,
		Help:    "Last year of the reference period"})

	startYear := parser.Int("", "start_year", &argparse.Options{
		Default: 1961,
		Help:    "First year of the output period"})

	endYear := parser.Int("", "end_year", &argparse.Options{
		Default: 2099,
		Help:    "End year of the output period (exclusive)"})

	matchBy := parser.Selector("", "match_by", []string{"ensemble", "model"}, &argparse.Options{
		Default: "ensemble",
		Help:    "Key used to pair scenario runs with historical runs"})

	onNoMatch := parser.Selector("", "on_no_match", []string{"error", "remove", "random", "randomrun"}, &argparse.Options{
		Default: "randomrun",
		Help:    "Policy for scenario runs without an exact historical match"})

	historical := parser.String("", "historical", &argparse.Options{
		Default: "historical",
		Help:    "Experiment name of the historical branch"})

	normBy := parser.Selector("", "normby", []string{"run", "model", "experiment"}, &argparse.Options{
		Default: "run",
		Help:    "Normalization granularity"})

	relative := parser.Flag("", "relative", &argparse.Options{
		Help: "Report percentual change instead of absolute change"})

	season := parser.Selector("", "season", []string{"djf", "mam", "jja", "son"}, &argparse.Options{
		Default: "",
		Help:    "Restrict to one season before averaging"})

	monthly := parser.Flag("", "monthly", &argparse.Options{
		Help: "Keep monthly resolution instead of averaging to years"})

	averageExps := parser.Flag("", "average_experiments", &argparse.Options{
		Help: "Average within experiment groups before taking percentiles"})

	logLevel := parser.Selector("", "log_level", []string{"debug", "info", "warn", "error"}, &argparse.Options{
		Default: "info",
		Help:    "Log verbosity"})

	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(2)
	}

	logger := logging.GetLogger("climdiag")
	switch *logLevel {
	case "debug":
		logger.SetLevel(logging.LevelDebug)
	case "warn":
		logger.SetLevel(logging.LevelWarn)
	case "error":
		logger.SetLevel(logging.LevelError)
	default:
		logger.SetLevel(logging.LevelInfo)
	}

	settings := climdiag.DefaultSettings()
	if *settingsPath != "" {
		settings, err = climdiag.LoadSettings(*settingsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	} else {
		settings.RefStart = *refStart
		settings.RefEnd = *refEnd
		settings.PeriodStart = *startYear
		settings.PeriodEnd = *endYear
		settings.MatchBy = *matchBy
		settings.OnNoMatch = *onNoMatch
		settings.HistoricalKey = *historical
		settings.NormBy = *normBy
		settings.Relative = *relative
		settings.Season = *season
		settings.Yearly = !*monthly
		settings.AverageExperiments = *averageExps
	}
	if len(*inputFiles) > 0 {
		settings.InputFiles = *inputFiles
	}
	settings.OutputDir = *outputDir

	if err := settings.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(settings.OutputDir, os.ModePerm); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch {
	case tasChange.Happened():
		err = climdiag.TasChange(settings)
	case uajet.Happened():
		err = climdiag.UAJet(settings)
	case mlrPlot.Happened():
		err = climdiag.MLRPlot(settings)
	default:
		fmt.Print(parser.Usage(nil))
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger.Infof("done")
}
