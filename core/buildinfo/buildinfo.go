// Package buildinfo reports the binary's version. Release builds set the
// variables with -ldflags, for example:
//
//	go build -ldflags "-X github.com/m3rciful/enrollbot/core/buildinfo.Version=v0.3.0"
//
// Otherwise Commit and Date fall back to the VCS stamp the Go toolchain embeds.
package buildinfo

import (
	"fmt"
	"runtime/debug"
	"sync"
)

var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

var fillOnce sync.Once

func fill() {
	fillOnce.Do(func() {
		defer func() {
			if Commit == "" {
				Commit = "local"
			}
		}()
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, s := range info.Settings {
			switch {
			case s.Key == "vcs.revision" && Commit == "":
				Commit = s.Value
				if len(Commit) > 12 {
					Commit = Commit[:12]
				}
			case s.Key == "vcs.time" && Date == "":
				Date = s.Value
			}
		}
	})
}

// Info returns version, commit and build date, resolving VCS defaults once.
func Info() (version, commit, date string) {
	fill()
	return Version, Commit, Date
}

// String formats Info for humans.
func String() string {
	v, c, d := Info()
	if d == "" {
		return fmt.Sprintf("%s (%s)", v, c)
	}
	return fmt.Sprintf("%s (%s, built %s)", v, c, d)
}
