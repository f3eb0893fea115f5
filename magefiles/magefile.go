//go:build mage

// Package main contains Mage build targets for ads-query-eval developer tooling.
package main

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"

	"github.com/pdiddy/ads-query-eval/internal/seed"
)

// dataDirs lists the local directories the default configuration writes to.
var dataDirs = []string{
	"data",
	"data/objects",
	".secrets",
}

// Init creates the local data and secrets directories.
func Init() error {
	for _, dir := range dataDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		fmt.Println("  ", dir)
	}
	fmt.Println("Data directories initialized.")
	return nil
}

const (
	binDir  = "bin"
	binName = "ads-query-eval"
	cmdPkg  = "./cmd/ads-query-eval"
)

func binPath() string { return filepath.Join(binDir, binName) }

// Build compiles the CLI binary into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	version, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil {
		version = "dev"
	}
	if err := sh.RunV("go", "build", "-ldflags", "-X main.version="+version, "-o", binPath(), cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s\n", binPath())
	return nil
}

// Test runs the unit tests. Redis-backed tests skip unless Redis listens on localhost:6379.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Vet runs go vet.
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Bootstrap seeds the local store with the built-in queries.
func Bootstrap() error {
	mg.Deps(Init, Build)
	return sh.RunV(binPath(), "bootstrap")
}

// Serve starts the reviewer UI with pretty logs.
func Serve() error {
	mg.Deps(Build)
	return sh.RunWithV(map[string]string{"ADS_QUERY_EVAL_LOG_PRETTY": "true"}, binPath(), "serve")
}

// Crontab prints the crontab for the daily jobs.
func Crontab() error {
	mg.Deps(Build)
	abs, err := filepath.Abs(binPath())
	if err != nil {
		return err
	}
	return sh.RunV(binPath(), "jobs", "crontab", "--command", abs)
}

// Stats prints non-blank Go lines (production and tests) and the number of
// page templates and seeded queries.
func Stats() error {
	var prod, tests int
	err := filepath.WalkDir(".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}
		n, err := nonBlankLines(path)
		if err != nil {
			return err
		}
		if strings.HasSuffix(path, "_test.go") {
			tests += n
		} else {
			prod += n
		}
		return nil
	})
	if err != nil {
		return err
	}

	templates, err := filepath.Glob("internal/web/templates/*.html")
	if err != nil {
		return err
	}

	fmt.Printf("Go lines (production): %d\n", prod)
	fmt.Printf("Go lines (tests):      %d\n", tests)
	fmt.Printf("Page templates:        %d\n", len(templates))
	fmt.Printf("Seeded queries:        %d\n", len(seed.Default().Queries))
	return nil
}

func skipDir(path string) bool {
	base := filepath.Base(path)
	return path != "." && (strings.HasPrefix(base, "_") || strings.HasPrefix(base, ".") || base == binDir || base == "data")
}

func nonBlankLines(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	n := 0
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) > 0 {
			n++
		}
	}
	return n, nil
}
