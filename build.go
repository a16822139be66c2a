//go:build ignore

// build.go - aquaexport build script
// Usage: go run build.go [-target=TARGET] [-v]
// Targets: all, server, export, test, clean, release

package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const versionPkg = "aquaexport/pkg/contracts"

var (
	rootDir string
	distDir string

	// key = directory under cmd/, value = output name without extension
	executables = map[string]string{
		"server": "aquaexport-server",
		"export": "aquaexport",
	}

	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorBlue  = "\033[34m"
	colorCyan  = "\033[36m"
)

func init() {
	cwd, err := os.Getwd()
	if err != nil {
		panic(fmt.Sprintf("Failed to get current directory: %v", err))
	}
	rootDir = cwd
	distDir = filepath.Join(rootDir, "dist")

	if _, err := os.Stat(filepath.Join(rootDir, "go.mod")); os.IsNotExist(err) {
		panic("build.go must be run from the module root")
	}
}

func main() {
	target := flag.String("target", "all", "Build target")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	fmt.Println(colorCyan + "=== aquaexport build ===" + colorReset)
	startTime := time.Now()

	switch *target {
	case "all":
		buildAll(*verbose)
	case "server", "export":
		buildExecutable(*target, *verbose)
	case "test":
		runTests(*verbose)
	case "clean":
		clean()
	case "release":
		buildRelease(*verbose)
	default:
		showHelp()
		os.Exit(1)
	}

	printSuccess(fmt.Sprintf("Build completed in %s", time.Since(startTime).Round(time.Millisecond)))
}

func printInfo(msg string) {
	fmt.Printf("%s[INFO]%s %s\n", colorBlue, colorReset, msg)
}

func printSuccess(msg string) {
	fmt.Printf("%s[SUCCESS]%s %s\n", colorGreen, colorReset, msg)
}

func printError(msg string) {
	fmt.Printf("%s[ERROR]%s %s\n", colorRed, colorReset, msg)
}

func buildAll(verbose bool) {
	printInfo("Building all executables...")
	if err := os.MkdirAll(distDir, 0755); err != nil {
		printError(fmt.Sprintf("Failed to create dist directory: %v", err))
		os.Exit(1)
	}
	for name := range executables {
		buildExecutable(name, verbose)
	}
	copyConfig()
}

// buildExecutable compiles cmd/<name> with the build time and commit stamped
// into the contracts package. go-sqlite3 needs cgo, so CGO_ENABLED is left
// to the environment.
func buildExecutable(name string, verbose bool) {
	outName, ok := executables[name]
	if !ok {
		printError(fmt.Sprintf("Unknown executable: %s", name))
		os.Exit(1)
	}
	if runtime.GOOS == "windows" {
		outName += ".exe"
	}
	printInfo(fmt.Sprintf("Building %s...", name))

	outputPath := filepath.Join(distDir, outName)
	ldflags := fmt.Sprintf("-s -w -X %s.BuildTime=%s -X %s.GitCommit=%s",
		versionPkg, time.Now().UTC().Format(time.RFC3339), versionPkg, gitCommit())

	args := []string{"build"}
	if verbose {
		args = append(args, "-v")
	}
	args = append(args, "-ldflags", ldflags, "-o", outputPath, "./cmd/"+name)

	cmd := exec.Command("go", args...)
	cmd.Dir = rootDir
	cmd.Stderr = os.Stderr
	if verbose {
		fmt.Printf("go %s\n", strings.Join(args, " "))
		cmd.Stdout = os.Stdout
	}
	if err := cmd.Run(); err != nil {
		printError(fmt.Sprintf("Failed to build %s: %v", name, err))
		os.Exit(1)
	}

	if info, err := os.Stat(outputPath); err == nil {
		printSuccess(fmt.Sprintf("Built %s (%.1f MB)", outName, float64(info.Size())/1024/1024))
	}
}

func gitCommit() string {
	out, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}

func copyConfig() {
	src := filepath.Join(rootDir, "configs", "aquaexport.yaml")
	data, err := os.ReadFile(src)
	if err != nil {
		printError(fmt.Sprintf("Failed to read %s: %v", src, err))
		return
	}
	dest := filepath.Join(distDir, "configs", "aquaexport.yaml")
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		printError(fmt.Sprintf("Failed to create %s: %v", filepath.Dir(dest), err))
		return
	}
	if err := os.WriteFile(dest, data, 0644); err != nil {
		printError(fmt.Sprintf("Failed to write %s: %v", dest, err))
	}
}

func runTests(verbose bool) {
	printInfo("Running Go tests...")
	args := []string{"test", "-race"}
	if verbose {
		args = append(args, "-v")
	}
	args = append(args, "./...")

	cmd := exec.Command("go", args...)
	cmd.Dir = rootDir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		printError(fmt.Sprintf("Go tests failed: %v", err))
		os.Exit(1)
	}
	printSuccess("All tests passed")
}

func clean() {
	printInfo("Cleaning build artifacts...")
	if err := os.RemoveAll(distDir); err != nil {
		printError(fmt.Sprintf("Failed to clean dist directory: %v", err))
		return
	}
	printSuccess("Build artifacts cleaned")
}

func buildRelease(verbose bool) {
	printInfo("Building release version...")
	clean()
	buildAll(verbose)

	content := fmt.Sprintf("aquaexport\nCommit: %s\nBuilt: %s\n", gitCommit(), time.Now().Format("2006-01-02 15:04:05"))
	if err := os.WriteFile(filepath.Join(distDir, "VERSION.txt"), []byte(content), 0644); err != nil {
		printError(fmt.Sprintf("Failed to write VERSION.txt: %v", err))
	}
	printSuccess("Release build completed")
}

func showHelp() {
	fmt.Println("Usage: go run build.go [-target=TARGET] [-v]")
	fmt.Println()
	fmt.Println("Targets:")
	fmt.Println("  all       Build server and export CLI (default)")
	fmt.Println("  server    Build the HTTP service only")
	fmt.Println("  export    Build the export CLI only")
	fmt.Println("  test      Run all tests with the race detector")
	fmt.Println("  clean     Remove dist/")
	fmt.Println("  release   Clean, build all and write VERSION.txt")
}
