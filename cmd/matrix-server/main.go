// @title Matrix Server API
// @version 1.0
// @description Pushes images to LED matrix displays as raw RGBA frames.
// @host localhost:8080
// @BasePath /api
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"matrix-server-go/internal/bootstrap"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: search .config.yaml, config.yaml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	fmt.Printf("[%s] [INFO] [Bootstrap] starting matrix-server %s...\n", time.Now().Format("2006-01-02 15:04:05.000"), version)
	if err := bootstrap.Run(context.Background(), bootstrap.Options{
		ConfigPath: *configPath,
		Version:    version,
	}); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "matrix-server failed: %v\n", err)
		os.Exit(1)
	}
}
