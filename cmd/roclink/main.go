// Command roclink is a headless introspection tool for a persisted
// linker: dump its interface table, or replay a captured raw output
// bitstream against it and print which blocks would change.
//
// Grounded on cmd/cpurunner/main.go's flag-declared, log.Fatal-on-missing-
// required-argument headless runner style.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/voltplot/roc/internal/linker"
)

func main() {
	linkerPath := flag.String("linker", "", "path to a persisted linker.json (required)")
	bitstreamPath := flag.String("bitstream", "", "path to a raw output bitstream to replay (optional)")
	bitstreamHex := flag.String("bitstream-hex", "", "hex-encoded output bitstream to replay, in place of -bitstream")
	flag.Parse()

	if *linkerPath == "" {
		log.Fatal("roclink: -linker is required")
	}

	lk, err := linker.Load(*linkerPath)
	if err != nil {
		log.Fatalf("roclink: load linker: %v", err)
	}

	dumpLinker(lk)

	data, ok := readBitstream(*bitstreamPath, *bitstreamHex)
	if !ok {
		return
	}
	if len(data) < lk.OutputBytes() {
		log.Fatalf("roclink: bitstream is %d bytes, linker expects at least %d", len(data), lk.OutputBytes())
	}

	changed := lk.BlocksToChange(data)
	if len(changed) == 0 {
		fmt.Println("no output blocks changed")
		return
	}
	fmt.Println("changed blocks:")
	for _, blk := range changed {
		fmt.Printf("  %s at %+v -> %d\n", blk.Kind, blk.Pos, blk.State)
	}
}

func dumpLinker(lk *linker.Linker) {
	fmt.Printf("linker %q: %d output bits (%d bytes), %d input bits (%d bytes)\n",
		lk.Name, lk.OutputBits, lk.OutputBytes(), lk.InputBits, lk.InputBytes())
	fmt.Println("outputs:")
	for _, blk := range lk.Outputs {
		fmt.Printf("  %s at %+v, state=%d\n", blk.Kind, blk.Pos, blk.State)
	}
	fmt.Println("inputs:")
	for _, blk := range lk.Inputs {
		fmt.Printf("  %s at %+v, state=%d\n", blk.Kind, blk.Pos, blk.State)
	}
}

// readBitstream returns the replay payload from either flag, preferring
// -bitstream-hex when both are given. The bool result is false when
// neither flag was set, meaning there is nothing to replay.
func readBitstream(path, hexStr string) ([]byte, bool) {
	if hexStr != "" {
		data, err := hex.DecodeString(hexStr)
		if err != nil {
			log.Fatalf("roclink: decode -bitstream-hex: %v", err)
		}
		return data, true
	}
	if path == "" {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("roclink: read bitstream: %v", err)
	}
	return data, true
}
