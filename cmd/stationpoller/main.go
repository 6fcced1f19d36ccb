package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/florianw/stationpoller/internal/app"
	"github.com/florianw/stationpoller/internal/log"
	"github.com/florianw/stationpoller/pkg/config"
)

const version = "1.2-" + runtime.GOOS + "/" + runtime.GOARCH

func main() {
	cfgFile := flag.String("config", "config.yaml", "Path to YAML configuration file")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("stationpoller %s\n", version)
		os.Exit(0)
	}

	filename, _ := filepath.Abs(*cfgFile)
	provider := config.NewYAMLProvider(filename)

	cfgData, err := provider.LoadConfig()
	if err != nil {
		fmt.Printf("Error reading config file. Did you pass the -config flag? Run with -h for help: %v\n", err)
		os.Exit(1)
	}

	// Set up logging, with the rotating file output when configured
	if err := log.InitWithFile(*debug, log.FileOptions{
		Path:       cfgData.Logging.File,
		MaxSizeMB:  cfgData.Logging.MaxSizeMB,
		MaxBackups: cfgData.Logging.MaxBackups,
	}); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Create and run the application
	application := app.New(provider, log.GetSugaredLogger())
	if err := application.Run(context.Background()); err != nil {
		log.Errorf("Application error: %v", err)
		os.Exit(1)
	}
}
