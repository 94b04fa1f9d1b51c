// Package config reads the loader's spinnaker.ini file (spec.md §6) and
// applies environment-variable overrides on top of it, in the teacher's
// plain-stdlib-parsing style (no struct-tag config library appears
// anywhere in the retrieval pack).
package config

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/xyproto/env/v2"

	"github.com/xyproto/damsonloader/internal/damsonerr"
)

// Config is the external collaborator spec.md §1 calls "the .ini config
// reader (yielding {ip, grid_w, grid_h})".
type Config struct {
	IP     net.IP
	GridW  int
	GridH  int
	Debug  bool // DAMSON_DEBUG env override; independent of per-node debug_node args
}

// Load reads path ("spinnaker.ini" by convention) and overlays
// environment overrides: DAMSON_IP, DAMSON_GRID_W, DAMSON_GRID_H,
// DAMSON_DEBUG. A missing file is ConfigMissing; a malformed single
// line is ConfigMalformed.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, damsonerr.Wrap(damsonerr.ConfigMissing, err, "open %s", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return nil, damsonerr.New(damsonerr.ConfigMalformed, "%s is empty", path)
	}
	line := strings.TrimSpace(scanner.Text())

	var ipStr string
	var gridW, gridH int
	if _, err := fmt.Sscanf(line, "%s %d %d", &ipStr, &gridW, &gridH); err != nil {
		return nil, damsonerr.Wrap(damsonerr.ConfigMalformed, err, "parse %s", path)
	}

	ipStr = env.Str("DAMSON_IP", ipStr)
	gridW = env.Int("DAMSON_GRID_W", gridW)
	gridH = env.Int("DAMSON_GRID_H", gridH)

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return nil, damsonerr.New(damsonerr.BadIP, "invalid ip %q in %s", ipStr, path)
	}
	if gridW <= 0 || gridH <= 0 {
		return nil, damsonerr.New(damsonerr.ConfigMalformed, "grid dimensions must be positive, got %dx%d", gridW, gridH)
	}

	return &Config{
		IP:    ip,
		GridW: gridW,
		GridH: gridH,
		Debug: env.Bool("DAMSON_DEBUG"),
	}, nil
}
