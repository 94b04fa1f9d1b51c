package sdp

import (
	"net"
	"testing"
	"time"

	"github.com/xyproto/damsonloader/internal/damsonrt"
)

// fakeMonitor answers every request on a loopback UDP socket with
// whatever reply returns for it; a nil reply sends nothing back.
func fakeMonitor(t *testing.T, reply func(req []byte) []byte) *net.UDPAddr {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 1500)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			resp := reply(buf[:n])
			if resp != nil {
				conn.WriteToUDP(resp, addr)
			}
		}
	}()

	return conn.LocalAddr().(*net.UDPAddr)
}

func TestClientSendCmdRoundTrip(t *testing.T) {
	raddr := fakeMonitor(t, func(req []byte) []byte {
		resp := make([]byte, ResponseHeaderSize)
		resp[2] = req[2] // echo flags
		resp[10] = 1     // rc = 1 (OK)
		return resp
	})

	c, err := dialPort(raddr.IP, raddr.Port)
	if err != nil {
		t.Fatalf("dialPort: %v", err)
	}
	defer c.Close()

	resp, err := c.SendCmd(0, 0, damsonrt.MonitorCoreID, damsonrt.CmdVersion, 0, 0, 0)
	if err != nil {
		t.Fatalf("SendCmd: %v", err)
	}
	if resp.RC != 1 {
		t.Fatalf("rc = %d, want 1", resp.RC)
	}
}

func TestClientSendCmdTimeout(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer conn.Close()
	raddr := conn.LocalAddr().(*net.UDPAddr)

	c, err := dialPort(raddr.IP, raddr.Port)
	if err != nil {
		t.Fatalf("dialPort: %v", err)
	}
	defer c.Close()

	start := time.Now()
	_, err = c.SendCmd(0, 0, damsonrt.MonitorCoreID, damsonrt.CmdVersion, 0, 0, 0)
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("timeout took %s, want close to SdpTimeout", elapsed)
	}
}

func TestStartApplicationRejectsMonitorCore(t *testing.T) {
	raddr := fakeMonitor(t, func(req []byte) []byte {
		resp := make([]byte, ResponseHeaderSize)
		return resp
	})
	c, err := dialPort(raddr.IP, raddr.Port)
	if err != nil {
		t.Fatalf("dialPort: %v", err)
	}
	defer c.Close()

	if err := c.StartApplicationAt(0, 0, damsonrt.MonitorCoreID, 0); err == nil {
		t.Fatal("expected error starting application on monitor core")
	}
}

func TestConfigureIPTagSendsClrThenAuto(t *testing.T) {
	var seen [][4]uint32 // cmd, arg1, arg2, arg3
	raddr := fakeMonitor(t, func(req []byte) []byte {
		cmd := uint32(req[10]) | uint32(req[11])<<8
		arg1 := uint32(req[14]) | uint32(req[15])<<8 | uint32(req[16])<<16 | uint32(req[17])<<24
		arg2 := uint32(req[18]) | uint32(req[19])<<8 | uint32(req[20])<<16 | uint32(req[21])<<24
		arg3 := uint32(req[22]) | uint32(req[23])<<8 | uint32(req[24])<<16 | uint32(req[25])<<24
		seen = append(seen, [4]uint32{cmd, arg1, arg2, arg3})
		return make([]byte, ResponseHeaderSize)
	})

	c, err := dialPort(raddr.IP, raddr.Port)
	if err != nil {
		t.Fatalf("dialPort: %v", err)
	}
	defer c.Close()

	if err := c.ConfigureIPTag(0, 0); err != nil {
		t.Fatalf("ConfigureIPTag: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("got %d commands, want 2 (CLR, AUTO)", len(seen))
	}
	if seen[0][0] != CmdIPTag || seen[0][1] != uint32(IPTagSubClr)<<16 {
		t.Fatalf("CLR = %+v, want cmd=%d arg1=0x%x", seen[0], CmdIPTag, uint32(IPTagSubClr)<<16)
	}
	if seen[1][0] != CmdIPTag || seen[1][1] != uint32(IPTagSubAuto)<<16 || seen[1][2] != damsonrt.DebugPort {
		t.Fatalf("AUTO = %+v, want cmd=%d arg1=0x%x arg2=%d", seen[1], CmdIPTag, uint32(IPTagSubAuto)<<16, damsonrt.DebugPort)
	}
}

func TestConfigureP2PCPacksGridAndID(t *testing.T) {
	var arg1, arg2, arg3 uint32
	raddr := fakeMonitor(t, func(req []byte) []byte {
		arg1 = uint32(req[14]) | uint32(req[15])<<8 | uint32(req[16])<<16 | uint32(req[17])<<24
		arg2 = uint32(req[18]) | uint32(req[19])<<8 | uint32(req[20])<<16 | uint32(req[21])<<24
		arg3 = uint32(req[22]) | uint32(req[23])<<8 | uint32(req[24])<<16 | uint32(req[25])<<24
		return make([]byte, ResponseHeaderSize)
	})

	c, err := dialPort(raddr.IP, raddr.Port)
	if err != nil {
		t.Fatalf("dialPort: %v", err)
	}
	defer c.Close()

	if err := c.ConfigureP2PC(0, 0, 7, 8, 8); err != nil {
		t.Fatalf("ConfigureP2PC: %v", err)
	}
	if want := uint32(0x003e0000) | 7; arg1 != want {
		t.Fatalf("arg1 = 0x%x, want 0x%x", arg1, want)
	}
	if want := uint32(8<<24) | uint32(8<<16); arg2 != want {
		t.Fatalf("arg2 = 0x%x, want 0x%x", arg2, want)
	}
	if arg3 != 0x00003ff8 {
		t.Fatalf("arg3 = 0x%x, want 0x3ff8", arg3)
	}
}

func TestReadMemoryChunking(t *testing.T) {
	want := make([]byte, damsonrt.MaxWriteChunk+10)
	for i := range want {
		want[i] = byte(i)
	}

	raddr := fakeMonitor(t, func(req []byte) []byte {
		arg1 := uint32(req[14]) | uint32(req[15])<<8 | uint32(req[16])<<16 | uint32(req[17])<<24
		arg2 := uint32(req[18]) | uint32(req[19])<<8 | uint32(req[20])<<16 | uint32(req[21])<<24
		resp := make([]byte, ResponseHeaderSize)
		resp = append(resp, want[arg1:arg1+arg2]...)
		return resp
	})

	c, err := dialPort(raddr.IP, raddr.Port)
	if err != nil {
		t.Fatalf("dialPort: %v", err)
	}
	defer c.Close()

	got, err := c.ReadMemory(0, 0, 1, 0, len(want))
	if err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d bytes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], want[i])
		}
	}
}
