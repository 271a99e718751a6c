package main

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Stamped with -ldflags "-X main.Version=..." on release builds. Plain
// `go build` and `go install` leave them empty and the module build info
// is used instead.
var (
	Version   string
	GitCommit string
	BuildTime string
)

// BuildInfo describes the running binary
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

var versionJSON bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  "Print the release version, VCS revision and toolchain botkit was built with",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		bi, ok := debug.ReadBuildInfo()
		return writeBuildInfo(cmd.OutOrStdout(), buildInfo(bi, ok), versionJSON)
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Output in JSON format")
}

// buildInfo merges the linker-stamped values with the module build info,
// preferring the stamped ones.
func buildInfo(bi *debug.BuildInfo, ok bool) BuildInfo {
	info := BuildInfo{
		Version:   "dev",
		Commit:    "unknown",
		BuildTime: "unknown",
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if ok && bi != nil {
		if v := bi.Main.Version; v != "" && v != "(devel)" {
			info.Version = v
		}
		if bi.GoVersion != "" {
			info.GoVersion = bi.GoVersion
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.Commit = s.Value
			case "vcs.time":
				info.BuildTime = s.Value
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}

	if Version != "" {
		info.Version = Version
	}
	if GitCommit != "" {
		info.Commit = GitCommit
	}
	if BuildTime != "" {
		info.BuildTime = BuildTime
	}
	if len(info.Commit) > 12 {
		info.Commit = info.Commit[:12]
	}
	return info
}

func writeBuildInfo(w io.Writer, info BuildInfo, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	commit := info.Commit
	if info.Modified {
		commit += " (dirty)"
	}
	_, err := fmt.Fprintf(w, "botkit %s\n  commit:  %s\n  built:   %s\n  go:      %s %s\n",
		info.Version, commit, info.BuildTime, info.GoVersion, info.Platform)
	return err
}
