package enroll

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// ShowHelp prints usage information for the registry build tool.
func ShowHelp(w io.Writer) {
	_, _ = io.WriteString(w, `facetally registry build
========================

Embeds every enrolled face crop through the face service, computes one
centroid per identity and writes the registry file the server loads.

Usage:
  registry-build [options]

Options:
  -users string
        Directory with one sub-directory of .jpg/.jpeg/.png crops per identity (default "data/users")
  -out string
        Registry file to write (default "data/registry.db")
  -url string
        Base URL of the face service (default "http://localhost:8000")
  -reload string
        Base URL of a running server to reload after saving (default: none)
  -face-size int
        Side of the square crops sent to the face service (default 160)
  -timeout duration
        Face service request timeout (default 30s)
  -workers int
        Concurrent embedding requests (default 4)
  -verbose
        Log every identity
  -help
        Show help
`)
}

// Summary renders stats for the terminal.
func Summary(s *Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "identities: %d\n", s.Identities)
	fmt.Fprintf(&b, "images embedded: %d\n", s.ImagesEmbedded)
	fmt.Fprintf(&b, "images unusable: %d\n", s.ImagesUnusable)
	if len(s.Skipped) > 0 {
		fmt.Fprintf(&b, "skipped: %s\n", strings.Join(s.Skipped, ", "))
	}
	if s.ReloadedServing != nil {
		fmt.Fprintf(&b, "server now serves: %s\n", strings.Join(s.ReloadedServing, ", "))
	}
	fmt.Fprintf(&b, "took: %s\n", s.Duration.Round(time.Millisecond))
	return b.String()
}
