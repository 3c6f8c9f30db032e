// Package pcap provides the pcap input plugin: it replays transport packets
// carried in UDP datagrams of a capture file, using the pure-Go pcap reader.
// The extraction and analysis helpers are shared with the capture inspector
// tool.
package pcap

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/tspipe/internal/plugin"
	"github.com/banshee-data/tspipe/internal/ts"
)

// Register adds the pcap input plugin to reg.
func Register(reg *plugin.Registry) {
	reg.RegisterInput("pcap", func(h plugin.Host) plugin.Input { return &input{host: h} })
}

type input struct {
	host plugin.Host
	path string
	port int

	f       *os.File
	r       *pcapgo.Reader
	pending []byte
}

func (i *input) Configure(args []string) error {
	fs := flag.NewFlagSet("pcap", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.IntVar(&i.port, "port", 0, "only use datagrams sent to this UDP port, 0 for any")
	if err := fs.Parse(args); err != nil {
		return err
	}
	i.path = fs.Arg(0)
	if i.path == "" {
		return errors.New("missing capture file name")
	}
	if i.port < 0 || i.port > 65535 {
		return fmt.Errorf("invalid port %d", i.port)
	}
	return nil
}

func (i *input) Start() error {
	f, err := os.Open(i.path)
	if err != nil {
		return fmt.Errorf("opening capture file: %w", err)
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("reading capture file header: %w", err)
	}
	i.f = f
	i.r = r
	return nil
}

func (i *input) Stop() error {
	if i.f != nil {
		return i.f.Close()
	}
	return nil
}

func (i *input) IsRealTime() bool { return false }

func (i *input) BitRate() (ts.BitRate, ts.BitRateConfidence) { return 0, ts.ConfidenceLow }

func (i *input) Receive(pkts []ts.Packet, metas []ts.Metadata) (int, error) {
	n := 0
	for n < len(pkts) {
		if len(i.pending) >= ts.PacketSize {
			copy(pkts[n][:], i.pending[:ts.PacketSize])
			i.pending = i.pending[ts.PacketSize:]
			n++
			continue
		}
		payload, err := i.nextDatagram()
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, err
		}
		i.pending = TransportPackets(payload)
	}
	return n, nil
}

// nextDatagram returns the payload of the next UDP datagram matching the
// port filter. Non-UDP capture records are skipped.
func (i *input) nextDatagram() ([]byte, error) {
	for {
		data, _, err := i.r.ReadPacketData()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("reading capture record: %w", err)
		}
		udp, ok := decodeUDP(data, i.r.LinkType())
		if !ok {
			continue
		}
		if i.port != 0 && int(udp.DstPort) != i.port {
			continue
		}
		return udp.Payload, nil
	}
}

func decodeUDP(data []byte, link layers.LinkType) (*layers.UDP, bool) {
	pkt := gopacket.NewPacket(data, link, gopacket.Lazy)
	layer := pkt.Layer(layers.LayerTypeUDP)
	if layer == nil {
		return nil, false
	}
	udp, ok := layer.(*layers.UDP)
	return udp, ok
}

// TransportPackets extracts the run of 188-byte transport packets carried in
// a UDP payload. Most streams align packets on the datagram start; when they
// do not, the scan finds the first offset where every 188-byte stride lands
// on a sync byte.
func TransportPackets(payload []byte) []byte {
	for off := 0; off+ts.PacketSize <= len(payload); off++ {
		if payload[off] != ts.SyncByte {
			continue
		}
		end := off
		for end+ts.PacketSize <= len(payload) && payload[end] == ts.SyncByte {
			end += ts.PacketSize
		}
		return payload[off:end]
	}
	return nil
}
