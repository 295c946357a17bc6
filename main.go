package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// Version is set at build time via -ldflags
var Version = "dev"

var (
	configFile    = flag.String("config", "config.yaml", "Path to configuration file")
	slidePath     = flag.String("slide", "", "Path to a single slide image")
	manifestFile  = flag.String("manifest", "", "CSV manifest of slides to classify (first column, header skipped)")
	dataDir       = flag.String("data-dir", ".", "Directory containing the slides named in the manifest")
	outputFile    = flag.String("output", "submission.csv", "Output file for --manifest mode")
	votesFile     = flag.String("votes", "", "Optional CSV of raw per-class vote histograms for downstream ensembling")
	detectOnly    = flag.Bool("detect-only", false, "Run foreground detection on --slide and print region stats")
	overlayOut    = flag.String("overlay", "", "Render detected tissue regions of --slide to this file and exit")
	overlayFormat = flag.String("overlay-format", "svg", "Overlay output format: svg or png")
	endpoint      = flag.String("endpoint", "", "Classifier endpoint (overrides config)")
	verbose       = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()
	fmt.Printf("slidescreen version: %s\n", Version)

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	app := NewApp(logger)
	app.ApplyOptions(AppOptions{
		ConfigFile:    *configFile,
		SlidePath:     *slidePath,
		ManifestFile:  *manifestFile,
		DataDir:       *dataDir,
		OutputFile:    *outputFile,
		VotesFile:     *votesFile,
		OverlayOut:    *overlayOut,
		OverlayFormat: *overlayFormat,
		Endpoint:      *endpoint,
	})

	switch {
	case *detectOnly:
		app.RunDetectOnly()
	case *overlayOut != "":
		app.RunOverlay()
	case *manifestFile != "":
		app.RunManifest()
	case *slidePath != "":
		app.RunSingle()
	default:
		fmt.Println("slidescreen classifies whole-slide images into one of four classes.")
		fmt.Println("Use --slide FILE to classify a single slide")
		fmt.Println("Use --manifest FILE to classify a batch and write a submission CSV")
		fmt.Println("Use --detect-only --slide FILE to inspect foreground detection")
		fmt.Println("Use --overlay OUT --slide FILE to render detected tissue regions")
		fmt.Println("\nConfiguration:")
		fmt.Println("  config.yaml - pipeline parameters and classifier endpoint")
		os.Exit(2)
	}
}
