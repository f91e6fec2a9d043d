package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/yookoala/realpath"

	options "github.com/stronnag/altimap/pkg/options"
	progress "github.com/stronnag/altimap/pkg/progress"
	runner "github.com/stronnag/altimap/pkg/runner"
)

var GitCommit = "local"
var GitTag = "0.0.0"

func getVersion() string {
	return fmt.Sprintf("%s %s, commit: %s", filepath.Base(os.Args[0]), GitTag, GitCommit)
}

func show_output(k, outfn string) {
	rp, err := realpath.Realpath(outfn)
	if err != nil || rp == "" {
		rp = outfn
	}
	fmt.Printf("%-8.8s : %s\n", k, rp)
}

func main() {
	options.ParseCLI(getVersion)
	cfg := options.Config

	svc, err := cfg.NewService()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bar := progress.New(os.Stderr, "requests")
	p := &runner.Pipeline{Settings: cfg, Service: svc, Progress: bar.Update}
	rep, err := p.Run(ctx)
	bar.Finish()
	if rep == nil {
		log.Fatalf("altimap: %v", err)
	}

	for _, kv := range rep.Summary() {
		switch {
		case kv[0] == "Raster" && rep.RasterErr == nil,
			kv[0] == "Export" && rep.ExportErr == nil,
			kv[0] == "Image" && rep.ImageErr == nil,
			kv[0] == "Overlay" && rep.OverlayErr == nil:
			show_output(kv[0], kv[1])
		default:
			fmt.Printf("%-8.8s : %s\n", kv[0], kv[1])
		}
	}
	if rep.Missing > 0 {
		fmt.Fprintf(os.Stderr, "*** %s of %s cells missing\n",
			humanize.Comma(int64(rep.Missing)), humanize.Comma(int64(rep.Cells)))
	}

	switch {
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, "*** interrupted, raster is incomplete")
		os.Exit(130)
	case err != nil || rep.Failed():
		os.Exit(1)
	}
}
