package pcap

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/tspipe/internal/ts"
)

// Summary describes the transport stream carried in a capture file.
type Summary struct {
	Datagrams uint64            // matching UDP datagrams
	Packets   uint64            // transport packets extracted
	Bytes     uint64            // transport payload bytes
	PIDs      map[ts.PID]uint64 // packet count per PID
	First     time.Time         // capture timestamp of the first matching datagram
	Last      time.Time         // capture timestamp of the last matching datagram
}

// BitRate estimates the stream bitrate over the captured interval, 0 when
// the capture spans no measurable time.
func (s *Summary) BitRate() ts.BitRate {
	if s.Packets < 2 {
		return 0
	}
	return ts.BitRateOver(int64(s.Packets), s.Last.Sub(s.First))
}

// Analyze reads a capture file and summarizes the transport stream found in
// its UDP datagrams. A non-zero port restricts the scan to datagrams sent to
// that destination port.
func Analyze(path string, port int) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening capture file: %w", err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("reading capture file header: %w", err)
	}

	sum := &Summary{PIDs: make(map[ts.PID]uint64)}
	for {
		data, ci, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return sum, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading capture record: %w", err)
		}
		udp, ok := decodeUDP(data, r.LinkType())
		if !ok {
			continue
		}
		if port != 0 && int(udp.DstPort) != port {
			continue
		}

		sum.Datagrams++
		if sum.First.IsZero() {
			sum.First = ci.Timestamp
		}
		sum.Last = ci.Timestamp
		run := TransportPackets(udp.Payload)
		sum.Bytes += uint64(len(run))
		for off := 0; off+ts.PacketSize <= len(run); off += ts.PacketSize {
			var pkt ts.Packet
			copy(pkt[:], run[off:off+ts.PacketSize])
			sum.Packets++
			sum.PIDs[pkt.PID()]++
		}
	}
}
