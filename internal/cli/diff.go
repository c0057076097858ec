package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	nugetbzl "github.com/albertocavalcante/go-nugetbzl"
	"github.com/albertocavalcante/go-nugetbzl/lockfile"
)

// errDrift is returned by diff --exit-code when the lock files differ.
var errDrift = errors.New("lock file is out of date")

func newDiffCmd() *cobra.Command {
	s := defaultSettings()
	var (
		format   string
		exitCode bool
	)

	cmd := &cobra.Command{
		Use:   "diff <old.lock.json> [new.lock.json]",
		Short: "Compare lock files",
		Long: `Compare two lock files, or a lock file with a fresh resolution of the
package references.

Examples:
  nugetbzl diff packages.lock.json -p Packages.props --exit-code
  nugetbzl diff old/packages.lock.json packages.lock.json --format json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			old, err := lockfile.ReadFile(args[0])
			if err != nil {
				return err
			}

			var current *lockfile.Lockfile
			if len(args) == 2 {
				if current, err = lockfile.ReadFile(args[1]); err != nil {
					return err
				}
			} else {
				if err := s.load(cmd.Flags()); err != nil {
					return err
				}
				files, err := s.packageFiles()
				if err != nil {
					return err
				}
				logger := loggerFromContext(cmd.Context())
				res, err := nugetbzl.ResolveFiles(cmd.Context(), files, append(s.options(), nugetbzl.WithLogger(slogger(logger)))...)
				if err != nil {
					return err
				}
				current = res.LockFile
			}

			diff := nugetbzl.DiffLockfiles(old, current)
			data, err := formatDiff(diff, format)
			if err != nil {
				return err
			}
			if _, err := cmd.OutOrStdout().Write(data); err != nil {
				return err
			}
			if exitCode && !diff.IsEmpty() {
				return errDrift
			}
			return nil
		},
	}

	s.register(cmd.Flags())
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, json")
	cmd.Flags().BoolVar(&exitCode, "exit-code", false, "fail when there are differences")

	return cmd
}

func formatDiff(d *nugetbzl.ResolutionDiff, format string) ([]byte, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case "text", "":
	default:
		return nil, fmt.Errorf("unknown diff format %q", format)
	}

	var b bytes.Buffer
	if d.IsEmpty() {
		b.WriteString("No changes\n")
		return b.Bytes(), nil
	}
	for _, p := range d.Added {
		fmt.Fprintf(&b, "+ %s %s\n", p.ID, p.Version)
	}
	for _, p := range d.Removed {
		fmt.Fprintf(&b, "- %s %s\n", p.ID, p.Version)
	}
	for _, p := range d.Upgraded {
		fmt.Fprintf(&b, "↑ %s %s -> %s\n", p.ID, p.OldVersion, p.NewVersion)
	}
	for _, p := range d.Downgraded {
		fmt.Fprintf(&b, "↓ %s %s -> %s\n", p.ID, p.OldVersion, p.NewVersion)
	}
	fmt.Fprintf(&b, "%d changes\n", d.TotalChanges())
	return b.Bytes(), nil
}
