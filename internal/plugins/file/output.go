package file

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/tspipe/internal/plugin"
	"github.com/banshee-data/tspipe/internal/ts"
)

type output struct {
	host    plugin.Host
	path    string
	appends bool

	f *os.File
	w *bufio.Writer
}

func (o *output) Configure(args []string) error {
	fs := flag.NewFlagSet("file", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolVar(&o.appends, "append", false, "append to the file instead of truncating")
	if err := fs.Parse(args); err != nil {
		return err
	}
	o.path = fs.Arg(0)
	if o.path == "" {
		o.path = "-"
	}
	return nil
}

func (o *output) Start() error {
	if o.path == "-" {
		o.f = os.Stdout
	} else {
		mode := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		if o.appends {
			mode = os.O_WRONLY | os.O_CREATE | os.O_APPEND
		}
		f, err := os.OpenFile(o.path, mode, 0o644)
		if err != nil {
			return fmt.Errorf("opening output file: %w", err)
		}
		o.f = f
	}
	o.w = bufio.NewWriterSize(o.f, 64*ts.PacketSize)
	return nil
}

func (o *output) Stop() error {
	if o.w == nil {
		return nil
	}
	err := o.w.Flush()
	if o.f != nil && o.f != os.Stdout {
		if cerr := o.f.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (o *output) Send(pkts []ts.Packet, metas []ts.Metadata) error {
	for i := range pkts {
		if _, err := o.w.Write(pkts[i][:]); err != nil {
			return fmt.Errorf("writing output file: %w", err)
		}
	}
	return nil
}
