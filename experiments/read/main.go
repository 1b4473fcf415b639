package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/peakfs/hdfsclient/client"
	"github.com/peakfs/hdfsclient/common"
)

func main() {
	// Define command line flags
	namenodes := flag.String("namenodes", "localhost:8020", "Comma-separated namenode addresses")
	nBlocks := flag.Int("n", 1, "Number of blocks to read")
	logFile := flag.String("log", "experiments/read_performance.log", "Log file to store the results")
	path := flag.String("path", "/tmp/test-read-perf", "Path of the file to read")

	flag.Parse()

	c, err := client.New(common.Config{Addresses: strings.Split(*namenodes, ",")})
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	ctx := context.Background()
	length := int64(common.DefaultBlockSize) * int64(*nBlocks)

	// Create the file first if it is not already there
	if exists, _ := c.Exists(ctx, *path); !exists {
		w, err := c.Create(ctx, *path)
		if err != nil {
			log.Fatal(err)
		}
		payload := make([]byte, common.DefaultBlockSize)
		for i := 0; i < *nBlocks; i++ {
			if _, err := w.Write(payload); err != nil {
				log.Fatal(err)
			}
		}
		if err := w.Close(); err != nil {
			log.Fatal(err)
		}
	}

	// Measure read performance
	startTime := time.Now()

	r, err := c.Open(ctx, *path)
	if err != nil {
		log.Fatal(err)
	}
	defer r.Close()
	if _, err := io.Copy(io.Discard, r); err != nil {
		log.Fatal("Read failed: ", err)
	}

	duration := time.Since(startTime).Seconds()
	bandwidth := float64(length) / duration / (1024 * 1024) // in MB/s

	// Log the results
	logFileHandle, err := os.OpenFile(*logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatal("Failed to open log file: ", err)
	}
	defer logFileHandle.Close()

	logFileHandle.WriteString(fmt.Sprintf("%f\n", bandwidth))
}
