// Command p1stream-configure is an interactive terminal wizard that writes
// the YAML file p1streamd reads at --config. It asks the same questions an
// operator would otherwise hand-edit into the file: output frame size, RTMP
// destinations, and optional automation hooks. It never talks to a running
// daemon; it only produces (or overwrites) a config file on disk.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"gopkg.in/yaml.v3"
)

// docConfig mirrors the subset of keys p1streamd's Reader understands. It
// exists only to control field order and YAML tag names in the written
// file; p1streamd reads these through koanf, not through this type.
type docConfig struct {
	VideoWidth  int      `yaml:"video-width"`
	VideoHeight int      `yaml:"video-height"`
	Relay       relayDoc `yaml:"relay"`
	Hooks       hooksDoc `yaml:"hooks,omitempty"`
}

type relayDoc struct {
	Destinations []string `yaml:"destinations"`
}

type hooksDoc struct {
	Shell       []string `yaml:"shell,omitempty"`
	Webhook     []string `yaml:"webhook,omitempty"`
	StdioFormat string   `yaml:"stdio-format,omitempty"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "p1stream-configure:", err)
		os.Exit(1)
	}
}

func run() error {
	outPath := "p1stream.yaml"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	var (
		widthStr, heightStr  string
		destinationsRaw      string
		wantHooks            bool
		shellRaw, webhookRaw string
		stdioFormat          string
	)

	dimensions := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Output video width").
			Description("Must be positive and even").
			Value(&widthStr).
			Validate(validatePositiveEven),
		huh.NewInput().
			Title("Output video height").
			Description("Must be positive and even").
			Value(&heightStr).
			Validate(validatePositiveEven),
		huh.NewInput().
			Title("RTMP destination URLs").
			Description("Comma-separated, e.g. rtmp://a.example/live/key1,rtmp://b.example/live/key2").
			Value(&destinationsRaw),
		huh.NewConfirm().
			Title("Configure automation hooks?").
			Value(&wantHooks),
	))
	if err := dimensions.Run(); err != nil {
		return fmt.Errorf("configuration form: %w", err)
	}

	if wantHooks {
		hookForm := huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Shell hooks").
				Description("Comma-separated event=script pairs, e.g. running=/usr/local/bin/on-live.sh").
				Value(&shellRaw),
			huh.NewInput().
				Title("Webhook hooks").
				Description("Comma-separated event=url pairs").
				Value(&webhookRaw),
			huh.NewSelect[string]().
				Title("Structured stdio output").
				Options(
					huh.NewOption("disabled", ""),
					huh.NewOption("json", "json"),
					huh.NewOption("env", "env"),
				).
				Value(&stdioFormat),
		))
		if err := hookForm.Run(); err != nil {
			return fmt.Errorf("hooks form: %w", err)
		}
	}

	width, _ := strconv.Atoi(strings.TrimSpace(widthStr))
	height, _ := strconv.Atoi(strings.TrimSpace(heightStr))

	doc := docConfig{
		VideoWidth:  width,
		VideoHeight: height,
		Relay:       relayDoc{Destinations: splitNonEmpty(destinationsRaw)},
		Hooks: hooksDoc{
			Shell:       splitNonEmpty(shellRaw),
			Webhook:     splitNonEmpty(webhookRaw),
			StdioFormat: stdioFormat,
		},
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	fmt.Printf("wrote %s\n", outPath)
	return nil
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func validatePositiveEven(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if n <= 0 {
		return fmt.Errorf("must be positive")
	}
	if n%2 != 0 {
		return fmt.Errorf("must be even")
	}
	return nil
}
