// Command versioner writes internal/config/version.go for a release tag.
//
//	go run ./cmd/versioner v1.2.3
//	go run ./cmd/versioner -o /tmp/version.go v1.3.0-rc.1
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"text/template"
)

// release tags, optionally with a pre-release suffix
var tagRe = regexp.MustCompile(`^v\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?$`)

func templatePath() string {
	_, filename, _, _ := runtime.Caller(0) // nolint:dogsled
	return filepath.Join(filepath.Dir(filename), "version.go.tmpl")
}

func run(tag, output string) error {
	if !tagRe.MatchString(tag) {
		return fmt.Errorf("tag %q is not a release tag", tag)
	}

	tmpl, err := template.ParseFiles(templatePath())
	if err != nil {
		return err
	}

	f, err := os.Create(output)
	if err != nil {
		return err
	}
	if err := tmpl.Execute(f, struct{ Version string }{strings.TrimPrefix(tag, "v")}); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func main() {
	output := flag.String("o", "internal/config/version.go", "file to write")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: versioner [-o file] <tag>")
		os.Exit(2)
	}
	if err := run(flag.Arg(0), *output); err != nil {
		fmt.Fprintln(os.Stderr, "versioner:", err)
		os.Exit(1)
	}
}
