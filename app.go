package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aderaedt/slidescreen/slide"
)

// App encapsulates the application state and dependencies
type App struct {
	Config *slide.Config
	Logger zerolog.Logger

	// CLI flags (effectively dependencies)
	ConfigFile    string
	SlidePath     string
	ManifestFile  string
	DataDir       string
	OutputFile    string
	VotesFile     string
	OverlayOut    string
	OverlayFormat string
	Endpoint      string
}

// AppOptions carries parsed CLI options into the App.
type AppOptions struct {
	ConfigFile    string
	SlidePath     string
	ManifestFile  string
	DataDir       string
	OutputFile    string
	VotesFile     string
	OverlayOut    string
	OverlayFormat string
	Endpoint      string
}

// NewApp creates a new App instance
func NewApp(logger zerolog.Logger) *App {
	return &App{Logger: logger}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.SlidePath = opts.SlidePath
	a.ManifestFile = opts.ManifestFile
	a.DataDir = opts.DataDir
	a.OutputFile = opts.OutputFile
	a.VotesFile = opts.VotesFile
	a.OverlayOut = opts.OverlayOut
	a.OverlayFormat = opts.OverlayFormat
	a.Endpoint = opts.Endpoint
}

// loadConfig loads the YAML config, falling back to defaults when the
// default config path does not exist.
func (a *App) loadConfig() {
	if a.Config != nil {
		return
	}
	cfg, err := slide.LoadConfig(a.ConfigFile)
	if err != nil {
		if os.IsNotExist(err) || strings.Contains(err.Error(), "not found") {
			def := slide.DefaultConfig()
			a.Config = &def
			fmt.Printf("No config at %s, using defaults\n", a.ConfigFile)
			return
		}
		log.Fatalf("Error loading config: %v", err)
	}
	a.Config = cfg
}

func (a *App) newPredictor() *slide.SlidePredictor {
	a.loadConfig()

	endpoint := a.Config.Classifier.Endpoint
	if a.Endpoint != "" {
		endpoint = a.Endpoint
	}
	if endpoint == "" {
		log.Fatal("No classifier endpoint configured (set classifier.endpoint or --endpoint)")
	}
	classifier := slide.NewHTTPClassifier(endpoint,
		slide.WithPredictTimeout(time.Duration(a.Config.Classifier.TimeoutSeconds)*time.Second))

	return slide.NewSlidePredictor(*a.Config, classifier, slide.NewImageNetTransform(), a.Logger)
}

// RunSingle classifies one slide and prints the decision.
func (a *App) RunSingle() {
	predictor := a.newPredictor()

	fmt.Printf("--- %s ---\n", a.SlidePath)
	result := predictor.PredictFile(context.Background(), a.SlidePath)
	printResult(result)
	if result.Outcome == slide.OutcomeFailed {
		os.Exit(1)
	}
}

// RunManifest classifies every slide listed in the manifest and writes
// the one-hot submission CSV plus, optionally, the raw vote histograms.
func (a *App) RunManifest() {
	predictor := a.newPredictor()

	files, err := readManifest(a.ManifestFile)
	if err != nil {
		log.Fatalf("Error reading manifest: %v", err)
	}
	fmt.Printf("Total of %d file(s) to process.\n", len(files))

	results := make([]slide.Result, len(files))
	for i, name := range files {
		path := filepath.Join(a.DataDir, name)
		fmt.Printf("--- %s ---\n", path)
		results[i] = predictor.PredictFile(context.Background(), path)
		printResult(results[i])
		fmt.Printf("-> %3.2f%% - %d / %d\n", 100*float64(i+1)/float64(len(files)), i+1, len(files))
	}

	if err := writeSubmission(a.OutputFile, files, results); err != nil {
		log.Fatalf("Error writing submission: %v", err)
	}
	fmt.Printf("Submission written to %s\n", a.OutputFile)

	if a.VotesFile != "" {
		if err := writeVotes(a.VotesFile, files, results); err != nil {
			log.Fatalf("Error writing votes: %v", err)
		}
		fmt.Printf("Vote histograms written to %s\n", a.VotesFile)
	}
}

// RunDetectOnly runs foreground detection and prints region stats.
func (a *App) RunDetectOnly() {
	a.loadConfig()

	pyr, err := slide.OpenImagePyramid(a.SlidePath)
	if err != nil {
		log.Fatalf("Error opening slide: %v", err)
	}
	defer pyr.Close()

	detector := slide.NewForegroundDetector(a.Config.Foreground, a.Logger)
	start := time.Now()
	regions, err := detector.Detect(pyr)
	if err != nil {
		log.Fatalf("Detection failed: %v", err)
	}

	fmt.Printf("=== %s ===\n", filepath.Base(a.SlidePath))
	fmt.Printf("Regions: %d (%.2fs)\n", len(regions), time.Since(start).Seconds())
	for i, r := range regions {
		b := r.Bound()
		fmt.Printf("  region %d: bounds (%.0f,%.0f)-(%.0f,%.0f) area %.0f aspect %.1f\n",
			i, b.Min[0], b.Min[1], b.Max[0], b.Max[1], r.Area(), r.AspectRatio())
	}
}

// RunOverlay renders the detected tissue regions to an SVG or PNG.
func (a *App) RunOverlay() {
	a.loadConfig()

	pyr, err := slide.OpenImagePyramid(a.SlidePath)
	if err != nil {
		log.Fatalf("Error opening slide: %v", err)
	}
	defer pyr.Close()

	detector := slide.NewForegroundDetector(a.Config.Foreground, a.Logger)
	regions, err := detector.Detect(pyr)
	if err != nil {
		log.Fatalf("Detection failed: %v", err)
	}

	level, err := slide.DetectionLevel(pyr, a.Config.Foreground.TargetSize)
	if err != nil {
		log.Fatalf("Level selection failed: %v", err)
	}
	width, height, err := pyr.Dimensions(level)
	if err != nil {
		log.Fatalf("Reading dimensions failed: %v", err)
	}

	out, err := os.Create(a.OverlayOut)
	if err != nil {
		log.Fatalf("Error creating %s: %v", a.OverlayOut, err)
	}
	defer out.Close()

	renderer := slide.NewOverlayRenderer()
	scale := 1 / slide.LevelScale(level)
	switch a.OverlayFormat {
	case "svg":
		err = renderer.RenderSVG(out, regions, float64(width), float64(height), scale)
	case "png":
		err = renderer.RenderPNG(out, regions, float64(width), float64(height), scale)
	default:
		log.Fatalf("Unknown overlay format %q (want svg or png)", a.OverlayFormat)
	}
	if err != nil {
		log.Fatalf("Rendering overlay failed: %v", err)
	}
	fmt.Printf("Overlay written to %s (%d regions)\n", a.OverlayOut, len(regions))
}

func printResult(r slide.Result) {
	switch r.Outcome {
	case slide.OutcomeNoTissue:
		fmt.Printf(">> no tissue found, predicting %d\n", r.Class)
	case slide.OutcomeFailed:
		fmt.Printf("/!\\ error during prediction: %v\n", r.Err)
		fmt.Printf("/!\\ ... predicting %d\n", r.Class)
	default:
		fmt.Printf(">> predicting %d (votes %v over %d tiles)\n", r.Class, r.Votes, r.Tiles)
	}
}

// readManifest returns the first column of a CSV file, skipping the
// header row.
func readManifest(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) <= 1 {
		return nil, fmt.Errorf("manifest %s has no data rows", path)
	}

	files := make([]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) > 0 && row[0] != "" {
			files = append(files, row[0])
		}
	}
	return files, nil
}

// writeSubmission writes the one-hot class CSV keyed by base filename.
func writeSubmission(path string, files []string, results []slide.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"filename"}
	for c := 0; c < slide.NumClasses; c++ {
		header = append(header, strconv.Itoa(c))
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for i, name := range files {
		row := []string{filepath.Base(name)}
		for c := 0; c < slide.NumClasses; c++ {
			if results[i].Class == c {
				row = append(row, "1")
			} else {
				row = append(row, "0")
			}
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// writeVotes writes the raw per-class vote histograms for the
// downstream ensembling step.
func writeVotes(path string, files []string, results []slide.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"filename", "outcome"}
	for c := 0; c < slide.NumClasses; c++ {
		header = append(header, "votes_"+strconv.Itoa(c))
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for i, name := range files {
		row := []string{filepath.Base(name), results[i].Outcome.String()}
		for c := 0; c < slide.NumClasses; c++ {
			row = append(row, strconv.Itoa(results[i].Votes[c]))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
