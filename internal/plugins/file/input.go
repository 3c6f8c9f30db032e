// Package file provides the file input and file output plugins: raw
// 188-byte packet files, with "-" standing for stdin/stdout.
package file

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/tspipe/internal/plugin"
	"github.com/banshee-data/tspipe/internal/ts"
)

// Register adds the file input and output plugins to reg.
func Register(reg *plugin.Registry) {
	reg.RegisterInput("file", func(h plugin.Host) plugin.Input { return &input{host: h} })
	reg.RegisterOutput("file", func(h plugin.Host) plugin.Output { return &output{host: h} })
}

type input struct {
	host     plugin.Host
	path     string
	infinite bool

	f       *os.File
	r       *bufio.Reader
	skipped uint64
	warned  bool
}

func (i *input) Configure(args []string) error {
	fs := flag.NewFlagSet("file", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolVar(&i.infinite, "infinite", false, "loop over the file forever")
	if err := fs.Parse(args); err != nil {
		return err
	}
	i.path = fs.Arg(0)
	if i.path == "" {
		return errors.New("missing input file name")
	}
	if i.infinite && i.path == "-" {
		return errors.New("-infinite cannot be used with standard input")
	}
	return nil
}

func (i *input) Start() error {
	if i.path == "-" {
		i.f = os.Stdin
	} else {
		f, err := os.Open(i.path)
		if err != nil {
			return fmt.Errorf("opening input file: %w", err)
		}
		i.f = f
	}
	i.r = bufio.NewReaderSize(i.f, 64*ts.PacketSize)
	return nil
}

func (i *input) Stop() error {
	if i.skipped > 0 {
		i.host.Logf("skipped %d garbage bytes while resynchronizing", i.skipped)
	}
	if i.f != nil && i.f != os.Stdin {
		return i.f.Close()
	}
	return nil
}

func (i *input) IsRealTime() bool { return false }

func (i *input) BitRate() (ts.BitRate, ts.BitRateConfidence) { return 0, ts.ConfidenceLow }

func (i *input) Receive(pkts []ts.Packet, metas []ts.Metadata) (int, error) {
	n := 0
	for n < len(pkts) {
		err := i.readPacket(&pkts[n])
		if err == io.EOF {
			if i.infinite && i.rewind() {
				continue
			}
			break
		}
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// readPacket reads one packet, discarding garbage bytes until a sync byte is
// found. A truncated trailing packet counts as end of file.
func (i *input) readPacket(pkt *ts.Packet) error {
	for {
		b, err := i.r.ReadByte()
		if err != nil {
			return io.EOF
		}
		if b == ts.SyncByte {
			pkt[0] = b
			break
		}
		i.skipped++
		if !i.warned {
			i.host.Logf("synchronization lost in input file, scanning for sync byte")
			i.warned = true
		}
	}
	if _, err := io.ReadFull(i.r, pkt[1:]); err != nil {
		return io.EOF
	}
	return nil
}

func (i *input) rewind() bool {
	if _, err := i.f.Seek(0, io.SeekStart); err != nil {
		i.host.Logf("rewind failed, ending input: %v", err)
		return false
	}
	i.r.Reset(i.f)
	return true
}
