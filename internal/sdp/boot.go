package sdp

import (
	"net"
	"time"

	"github.com/xyproto/damsonloader/internal/damsonerr"
	"github.com/xyproto/damsonloader/internal/damsonrt"
)

// UploadBoot sends image verbatim to boardIP's boot port as a
// START/DATA.../END sequence (spec.md §6): one packet per
// BootBlockBytes-sized block, a 10ms sleep after every send, and a
// final 100ms sleep before handing off to the SDP control channel.
// image must not exceed BootMaxBlocks*BootBlockBytes bytes.
func UploadBoot(boardIP net.IP, image []byte) error {
	if len(image) > damsonrt.BootMaxBlocks*damsonrt.BootBlockBytes {
		return damsonerr.New(damsonerr.BootFileTooLarge, "boot image is %d bytes, exceeds %d", len(image), damsonrt.BootMaxBlocks*damsonrt.BootBlockBytes)
	}

	raddr := &net.UDPAddr{IP: boardIP, Port: damsonrt.BootPort}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return damsonerr.Wrap(damsonerr.SocketCreate, err, "dial boot port on %s", boardIP)
	}
	defer conn.Close()

	blocks := (len(image) + damsonrt.BootBlockBytes - 1) / damsonrt.BootBlockBytes
	if blocks == 0 {
		blocks = 1
	}

	send := func(b []byte) error {
		if _, err := conn.Write(b); err != nil {
			return damsonerr.Wrap(damsonerr.BootSend, err, "send boot packet")
		}
		time.Sleep(10 * time.Millisecond)
		return nil
	}

	if err := send(MarshalBootStart(blocks)); err != nil {
		return err
	}

	for i := 0; i < blocks; i++ {
		start := i * damsonrt.BootBlockBytes
		end := start + damsonrt.BootBlockBytes
		block := make([]byte, damsonrt.BootBlockBytes)
		if end > len(image) {
			end = len(image)
		}
		copy(block, image[start:end])
		if err := send(MarshalBootData(i, block)); err != nil {
			return err
		}
	}

	if err := send(MarshalBootEnd()); err != nil {
		return err
	}

	time.Sleep(100 * time.Millisecond)
	return nil
}
