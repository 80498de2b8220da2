package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"histotile/pkg/config"
	"histotile/pkg/pipeline"
	"histotile/pkg/report"
	"histotile/pkg/slide"
)

func main() {
	// Optional .env file for deployment overrides; absence is fine.
	_ = godotenv.Load()

	// Parse command line arguments
	inputPath := flag.String("input", os.Getenv("HISTOTILE_INPUT"), "Slide file or directory of slides")
	outputPath := flag.String("output", os.Getenv("HISTOTILE_OUTPUT"), "Output directory for tiles and reports")
	configPath := flag.String("config", "", "Optional YAML configuration file")
	processes := flag.Int("processes", 0, "Number of slides to process in parallel (default: config value)")
	tileSize := flag.Int("size", 256, "Desired size of the tiles")
	magnification := flag.Float64("magnification", 40, "Desired magnification level")
	overlap := flag.Int("overlap", 0, "Overlap divisor between tiles (0 = no overlap)")
	tissueThreshold := flag.Float64("tissue-threshold", 0.8, "Tissue coverage threshold for tile acceptance")
	blurThreshold := flag.Float64("blur-threshold", 0.015, "Laplacian variance threshold for the blur filter")
	naturalMag := flag.Float64("natural-mag", 0, "Native magnification assumed for plain image slides (default: config value)")
	flag.Parse()

	// Validate inputs
	if *inputPath == "" || *outputPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// CLI flags win over file configuration. Note the CLI default target
	// magnification (40) intentionally differs from the library default (20).
	cfg.Pipeline.TileSize = *tileSize
	cfg.Pipeline.Magnification = *magnification
	cfg.Pipeline.Overlap = *overlap
	cfg.Pipeline.TissueThreshold = *tissueThreshold
	cfg.Pipeline.BlurThreshold = *blurThreshold
	if *processes > 0 {
		cfg.Workers = *processes
	}
	if *naturalMag > 0 {
		cfg.Slide.Magnification = *naturalMag
	}

	// An invalid input path is the only process-fatal condition.
	if _, err := os.Stat(*inputPath); err != nil {
		log.Fatalf("The input path %q does not exist: %v", *inputPath, err)
	}
	if err := os.MkdirAll(*outputPath, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	fmt.Println("================================")
	fmt.Println("WSI TILE PREPROCESSING PIPELINE")
	fmt.Println("================================")

	entries, err := slide.Discover(*inputPath, *outputPath)
	if err != nil {
		log.Fatalf("Slide discovery failed: %v", err)
	}
	fmt.Printf("Found %d slides to process\n", len(entries))

	if _, err := report.WriteInventory(entries, *outputPath); err != nil {
		log.Fatalf("Failed to write slide inventory: %v", err)
	}

	p := pipeline.New(pipeline.Config{
		OutputSize:      cfg.Pipeline.TileSize,
		Magnification:   cfg.Pipeline.Magnification,
		Overlap:         cfg.Pipeline.Overlap,
		TissueThreshold: cfg.Pipeline.TissueThreshold,
		BlurThreshold:   cfg.Pipeline.BlurThreshold,
		MaskDownsample:  cfg.Pipeline.MaskDownsample,
	}, func(path string) (slide.Reader, error) {
		return slide.OpenImage(path, cfg.Slide.Magnification, cfg.Slide.Scale)
	}, nil, nil)

	startTime := time.Now()
	outcomes, errs := p.ProcessAll(entries, cfg.Workers)
	fmt.Printf("\nProcessed %d slides in %.2f seconds\n", len(outcomes), time.Since(startTime).Seconds())

	if err := report.WriteSummary(outcomes, *outputPath); err != nil {
		log.Fatalf("Failed to write summary report: %v", err)
	}
	if err := report.WriteErrors(errs, *outputPath); err != nil {
		log.Fatalf("Failed to write error report: %v", err)
	}

	totalTiles := 0
	totalFocus := 0
	for _, o := range outcomes {
		if o.TileCount != nil {
			totalTiles += *o.TileCount
		}
		if o.InFocusCount != nil {
			totalFocus += *o.InFocusCount
		}
	}
	fmt.Printf("Accepted tiles: %d, in focus after filtering: %d\n", totalTiles, totalFocus)
	if len(errs) > 0 {
		fmt.Printf("%d errors recorded, see %s\n", len(errs), report.ErrorFile)
	}
}
