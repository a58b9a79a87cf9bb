package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"manual-polling-tool/internal/form"
	"manual-polling-tool/internal/registry"
)

// chooseProvider asks for a provider unless one was given on the command line.
func chooseProvider(ctx context.Context, p prompter, reg *registry.Registry, given string) (string, error) {
	if given != "" {
		if _, err := reg.Get(given); err != nil {
			return "", fmt.Errorf("%w (known: %s)", err, strings.Join(reg.IDs(), ", "))
		}
		return given, nil
	}
	ids := reg.IDs()
	if len(ids) == 0 {
		return "", fmt.Errorf("no providers configured")
	}
	return p.Select(ctx, "Provider", ids, ids[0])
}

// applyOverrides sets key=value pairs from -set flags on the form.
func applyOverrides(f *form.Form, sets []string) error {
	for _, kv := range sets {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid -set %q (want key=value)", kv)
		}
		in, ok := f.Input(strings.TrimSpace(key))
		if !ok {
			return fmt.Errorf("provider %s has no field %q", f.Schema.ID, key)
		}
		in.Set(value)
	}
	return nil
}

// fillForm prompts for every input not already set, then for the checkbox
// lists. Seeded dates and select defaults are offered as defaults.
func fillForm(ctx context.Context, p prompter, f *form.Form) error {
	for _, in := range f.Inputs {
		if in.Touched() {
			continue
		}
		message := in.Field.Label
		if message == "" {
			message = in.Field.Key
		}

		var (
			v   string
			err error
		)
		switch in.Field.Role {
		case registry.RoleSecret:
			v, err = p.Password(ctx, message, in.Field.Placeholder)
		case registry.RoleSelect:
			v, err = p.Select(ctx, message, in.Field.Options, in.Value)
		default:
			v, err = p.Input(ctx, message, in.Value, in.Field.Placeholder)
		}
		if err != nil {
			return err
		}
		in.Set(v)
	}

	if err := selectGroup(ctx, p, "Dimensions", f.Schema.Dimensions, f.Dimensions); err != nil {
		return err
	}
	return selectGroup(ctx, p, "Metrics", f.Schema.Metrics, f.Metrics)
}

// selectGroup asks which names of a checkbox group to keep. Groups with no
// names are skipped; survey refuses a multi-select without options.
func selectGroup(ctx context.Context, p prompter, message string, names []string, g *form.CheckboxGroup) error {
	if len(names) == 0 {
		return nil
	}
	picked, err := p.MultiSelect(ctx, message, names, g.Checked())
	if err != nil {
		return err
	}
	g.Select(picked)
	return nil
}

// writeReport stores the report body in dir and returns the file path.
func writeReport(dir string, report *form.Report) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, report.Filename)
	if err := os.WriteFile(path, report.Body, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// summary is the line printed after a successful poll.
func summary(report *form.Report, path string) string {
	return fmt.Sprintf("%s rows, %s written to %s", humanize.Comma(int64(report.Rows)),
		humanize.Bytes(uint64(len(report.Body))), path)
}
