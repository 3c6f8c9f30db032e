// Package main provides a capture inspector for UDP-carried transport
// streams: datagram and packet counts, a PID histogram and a wall-clock
// bitrate estimate, with JSON and CSV export. It shares the extraction
// logic of the pcap input plugin.
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/banshee-data/tspipe/internal/plugins/pcap"
	"github.com/banshee-data/tspipe/internal/ts"
)

var (
	udpPort    = flag.Int("port", 0, "only use datagrams sent to this UDP port, 0 for any")
	exportJSON = flag.Bool("json", false, "print the report as JSON instead of text")
	exportCSV  = flag.String("csv", "", "write the PID histogram to this CSV file")
)

// Report is the exportable analysis result.
type Report struct {
	File         string     `json:"file"`
	Datagrams    uint64     `json:"datagrams"`
	Packets      uint64     `json:"packets"`
	Bytes        uint64     `json:"bytes"`
	DurationSecs float64    `json:"duration_secs"`
	BitRate      uint64     `json:"bitrate_bps"`
	PIDs         []PIDCount `json:"pids"`
}

// PIDCount is one PID histogram entry.
type PIDCount struct {
	PID     string `json:"pid"`
	Packets uint64 `json:"packets"`
}

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: pcap-analyze [flags] <capture.pcap>\n")
		flag.PrintDefaults()
		os.Exit(2)
	}
	path := flag.Arg(0)

	sum, err := pcap.Analyze(path, *udpPort)
	if err != nil {
		log.Fatalf("analysis failed: %v", err)
	}
	report := buildReport(path, sum)

	if *exportCSV != "" {
		if err := writeCSV(*exportCSV, report); err != nil {
			log.Fatalf("CSV export failed: %v", err)
		}
	}

	if *exportJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			log.Fatalf("JSON export failed: %v", err)
		}
		return
	}
	printReport(report)
}

func buildReport(path string, sum *pcap.Summary) Report {
	r := Report{
		File:      path,
		Datagrams: sum.Datagrams,
		Packets:   sum.Packets,
		Bytes:     sum.Bytes,
		BitRate:   uint64(sum.BitRate()),
	}
	if !sum.First.IsZero() {
		r.DurationSecs = sum.Last.Sub(sum.First).Seconds()
	}

	pids := make([]ts.PID, 0, len(sum.PIDs))
	for pid := range sum.PIDs {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	for _, pid := range pids {
		r.PIDs = append(r.PIDs, PIDCount{
			PID:     fmt.Sprintf("0x%04X", uint16(pid)),
			Packets: sum.PIDs[pid],
		})
	}
	return r
}

func printReport(r Report) {
	fmt.Printf("File:        %s\n", r.File)
	fmt.Printf("Datagrams:   %d\n", r.Datagrams)
	fmt.Printf("TS packets:  %d (%d bytes)\n", r.Packets, r.Bytes)
	fmt.Printf("Duration:    %.3f s\n", r.DurationSecs)
	fmt.Printf("Bitrate:     %s\n", ts.BitRate(r.BitRate))
	fmt.Printf("PIDs:        %d\n", len(r.PIDs))
	for _, pc := range r.PIDs {
		fmt.Printf("  %s  %d packets\n", pc.PID, pc.Packets)
	}
}

func writeCSV(path string, r Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"pid", "packets"}); err != nil {
		return err
	}
	for _, pc := range r.PIDs {
		if err := w.Write([]string{pc.PID, fmt.Sprintf("%d", pc.Packets)}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
