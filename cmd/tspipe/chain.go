package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/tspipe/internal/pipeline"
)

// parseChain turns the post-flag arguments into a chain specification. The
// grammar is `-I <name> [args…] [-P <name> [args…]]… [-O <name> [args…]]`:
// exactly one input, processors in order, at most one output as the last
// segment. An omitted output defaults to the drop plugin.
func parseChain(args []string) (pipeline.Chain, error) {
	type segment struct {
		marker string
		name   string
		args   []string
	}
	var segs []segment
	for i := 0; i < len(args); i++ {
		tok := args[i]
		switch tok {
		case "-I", "-P", "-O":
			if i+1 >= len(args) || isMarker(args[i+1]) {
				return pipeline.Chain{}, fmt.Errorf("%s needs a plugin name", tok)
			}
			segs = append(segs, segment{marker: tok, name: args[i+1]})
			i++
		default:
			if len(segs) == 0 {
				return pipeline.Chain{}, fmt.Errorf("unexpected argument %q before -I", tok)
			}
			s := &segs[len(segs)-1]
			s.args = append(s.args, tok)
		}
	}

	var chain pipeline.Chain
	inputs, outputs := 0, 0
	for i, s := range segs {
		switch s.marker {
		case "-I":
			if i != 0 {
				return pipeline.Chain{}, fmt.Errorf("-I %s must come first in the chain", s.name)
			}
			inputs++
			chain.Input = pipeline.PluginSpec{Name: s.name, Args: s.args}
		case "-P":
			if outputs > 0 {
				return pipeline.Chain{}, fmt.Errorf("-P %s appears after -O", s.name)
			}
			chain.Processors = append(chain.Processors, pipeline.PluginSpec{Name: s.name, Args: s.args})
		case "-O":
			outputs++
			chain.Output = pipeline.PluginSpec{Name: s.name, Args: s.args}
		}
	}
	if inputs != 1 {
		return pipeline.Chain{}, fmt.Errorf("the chain needs exactly one -I, got %d", inputs)
	}
	if outputs > 1 {
		return pipeline.Chain{}, fmt.Errorf("the chain allows at most one -O, got %d", outputs)
	}
	if outputs == 0 {
		chain.Output = pipeline.PluginSpec{Name: "drop"}
	}
	return chain, nil
}

func isMarker(tok string) bool {
	return tok == "-I" || tok == "-P" || tok == "-O"
}

// parseStuffing parses the "nullpkt/inpkt" form of the interleaved stuffing
// flag.
func parseStuffing(s string) (nullPkt, inPkt int, err error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("stuffing must be of the form nullpkt/inpkt, got %q", s)
	}
	nullPkt, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid null packet count %q", parts[0])
	}
	inPkt, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid input packet count %q", parts[1])
	}
	if nullPkt <= 0 || inPkt <= 0 {
		return 0, 0, fmt.Errorf("stuffing counts must be positive, got %q", s)
	}
	return nullPkt, inPkt, nil
}
