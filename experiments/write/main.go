package main

import (
	"context"
	"flag"
	"fmt"
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
	nBlocks := flag.Int("n", 1, "Number of blocks to write")
	logFile := flag.String("log", "experiments/write_performance.log", "Log file to store the results")
	path := flag.String("path", "/tmp/test-write-perf", "Path of the file to write")

	flag.Parse()

	c, err := client.New(common.Config{Addresses: strings.Split(*namenodes, ",")})
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	ctx := context.Background()
	if exists, _ := c.Exists(ctx, *path); exists {
		if err := c.Delete(ctx, *path, false); err != nil {
			log.Fatal(err)
		}
	}

	length := int64(common.DefaultBlockSize) * int64(*nBlocks)
	payload := make([]byte, common.DefaultBlockSize)

	// Measure write performance
	startTime := time.Now()

	w, err := c.Create(ctx, *path)
	if err != nil {
		log.Fatal(err)
	}
	for i := 0; i < *nBlocks; i++ {
		if _, err := w.Write(payload); err != nil {
			log.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		log.Fatal(err)
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
