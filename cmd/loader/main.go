// Command loader is the host-side driver of spec.md §6: it reads
// spinnaker.ini and a linker file, plans placement and routing, boots
// and loads the fabric over SDP, supervises execution until the
// shutdown handshake, and drains per-core logs to text files.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/xyproto/damsonloader/internal/config"
	"github.com/xyproto/damsonloader/internal/damsonerr"
	"github.com/xyproto/damsonloader/internal/damsonrt"
	"github.com/xyproto/damsonloader/internal/image"
	"github.com/xyproto/damsonloader/internal/linker"
	"github.com/xyproto/damsonloader/internal/placement"
	"github.com/xyproto/damsonloader/internal/routing"
	"github.com/xyproto/damsonloader/internal/sdp"
	"github.com/xyproto/damsonloader/internal/session"
	"github.com/xyproto/damsonloader/internal/supervisor"
)

func main() {
	configPath := flag.String("config", "spinnaker.ini", "path to the board config file")
	bootPath := flag.String("boot", "boot.bin", "path to the boot image")
	skipBoot := flag.Bool("skip-boot", false, "skip the boot-ROM upload (device already booted)")
	validate := flag.Bool("validate", false, "read back every written region and report mismatches")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: loader [flags] <linker_file> [debug_node...]")
		flag.PrintDefaults()
		os.Exit(1)
	}
	linkerPath := args[0]

	cfg, err := config.Load(*configPath)
	if err != nil {
		session.DefaultErrorCallback(err)
	}
	sdp.VerboseMode = cfg.Debug

	sess := session.New(cfg)
	for _, a := range args[1:] {
		n, err := strconv.ParseUint(a, 10, 32)
		if err != nil {
			sess.Fatal(damsonerr.New(damsonerr.ConfigMalformed, "invalid debug_node %q", a))
		}
		sess.DebugNodes[uint32(n)] = true
	}

	if warn := damsonrt.CheckLogItemsInvariant(); warn != "" {
		sess.Logger.Errorf("%s\n", warn)
	}

	if err := run(sess, linkerPath, *bootPath, *skipBoot, *validate); err != nil {
		sess.Fatal(err)
	}
}

func run(sess *session.Session, linkerPath, bootPath string, skipBoot, validate bool) error {
	rdr, err := linker.Open(linkerPath)
	if err != nil {
		return err
	}

	nodes, err := rdr.PassOne()
	if err != nil {
		return err
	}

	gridW, gridH := uint32(sess.Config.GridW), uint32(sess.Config.GridH)

	m, err := placement.Place(nodes, gridW, gridH)
	if err != nil {
		return err
	}
	sess.Placement = m

	table := routing.NewTable()
	for _, n := range nodes {
		for _, iv := range n.Interrupts {
			if err := routing.Route(m, iv.SrcNode, n.NodeID, table); err != nil {
				return err
			}
		}
	}
	sess.Routing = table

	if !skipBoot {
		bootImage, err := os.ReadFile(bootPath)
		if err != nil {
			return damsonerr.Wrap(damsonerr.BootFileMissing, err, "read boot image %s", bootPath)
		}
		if err := sdp.UploadBoot(sess.Config.IP, bootImage); err != nil {
			return err
		}
	}

	if err := sess.Open(); err != nil {
		return err
	}
	defer sess.Close()

	for x := uint32(0); x < gridW; x++ {
		for y := uint32(0); y < gridH; y++ {
			if err := sess.Control.ConfigureIPTag(byte(x), byte(y)); err != nil {
				return err
			}
			id := y + x*gridW
			if err := sess.Control.ConfigureP2PC(byte(x), byte(y), id, gridW, gridH); err != nil {
				return err
			}
		}
	}

	nodes2, err := rdr.PassTwo()
	if err != nil {
		return err
	}
	for _, n := range nodes2 {
		debugMode := sess.DebugNodes[n.NodeID]
		if err := image.LoadNode(sess.Control, n, m, table, gridW, gridH, debugMode, loadPrototype); err != nil {
			return err
		}
	}

	if validate {
		for _, n := range nodes2 {
			ok, mismatches, err := image.CheckNodeMemory(sess.Control, n, m, gridW, gridH)
			if err != nil {
				return err
			}
			if !ok {
				for _, mm := range mismatches {
					sess.Logger.Errorf("node %d: %s\n", n.NodeID, mm)
				}
			}
		}
	}

	sv := supervisor.New(m, func(line string) { fmt.Println(line) })
	sess.Supervisor = sv
	sess.Debug.Start(sv.HandleDebugFrame)

	if err := startApplications(sess.Control, m, gridW, gridH); err != nil {
		return err
	}

	sv.Wait()

	return sv.Drain(sess.Control, gridW, gridH)
}

// startApplications launches every populated core in the reversed
// order spec.md §4.H mandates: chip (W-1,H-1)..(0,0), core 16..1, so
// core 1 of chip (0,0) is the last to begin executing.
type starter interface {
	StartApplicationAt(x, y byte, core byte, entryPoint uint32) error
}

func startApplications(c starter, m *placement.Map, gridW, gridH uint32) error {
	for x := int(gridW) - 1; x >= 0; x-- {
		for y := int(gridH) - 1; y >= 0; y-- {
			cm := m.CoreMap(uint32(x), uint32(y))
			for core := 16; core >= 1; core-- {
				if cm&(1<<uint(core)) == 0 {
					continue
				}
				if err := c.StartApplicationAt(byte(x), byte(y), byte(core), damsonrt.DTCMProgramStart); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// loadPrototype reads a node's prototype object file verbatim: the
// linker file's prototype_name is itself the path, opened and read as
// opaque bytes (original_source/spiNN_runtime.c's
// spiNN_load_application_at, which fopen()s the name directly). The
// image always lands at DTCMProgramStart, so that is the entry point
// start_application_at launches later.
func loadPrototype(prototypeName string) ([]byte, uint32, error) {
	data, err := os.ReadFile(prototypeName)
	if err != nil {
		return nil, 0, err
	}
	return data, damsonrt.DTCMProgramStart, nil
}
