// Package buildinfo carries version stamps set with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/m3rciful/funnelbot/core/buildinfo.Version=v0.3.0" ./cmd/funnelbot
package buildinfo

import (
	"runtime/debug"
	"sync"
)

var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

var vcsOnce sync.Once

// Resolve fills Commit and Date from the embedded VCS stamp when they were
// not set at link time.
func Resolve() {
	vcsOnce.Do(func() {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if Commit == "" {
					Commit = s.Value
				}
			case "vcs.time":
				if Date == "" {
					Date = s.Value
				}
			}
		}
		if Commit == "" {
			Commit = "local"
		}
	})
}

// String renders "version (commit)", with the commit shortened to 7 chars.
func String() string {
	Resolve()
	c := Commit
	if len(c) > 7 {
		c = c[:7]
	}
	return Version + " (" + c + ")"
}
