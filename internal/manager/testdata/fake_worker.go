package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const sentinel = "Model worker started."

func main() {
	var mode string
	var delay time.Duration
	var dump string
	flag.StringVar(&mode, "mode", "ready", "ready|stderr|never|crash|ignore-term")
	flag.DurationVar(&delay, "delay", 0, "delay before the sentinel is written")
	flag.StringVar(&dump, "dump", "", "write the stdin payload to this file")
	flag.Parse()

	payload, _ := io.ReadAll(os.Stdin)
	if dump != "" {
		_ = os.WriteFile(dump, payload, 0o644)
	}

	sigCh := make(chan os.Signal, 1)
	if mode == "ignore-term" {
		signal.Ignore(syscall.SIGTERM)
	} else {
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	}

	time.Sleep(delay)
	switch mode {
	case "ready", "ignore-term":
		fmt.Fprintln(os.Stdout, sentinel)
	case "stderr":
		fmt.Fprintln(os.Stderr, "loading")
		fmt.Fprintln(os.Stderr, sentinel)
	case "crash":
		fmt.Fprintln(os.Stderr, "boom")
		os.Exit(3)
	case "never":
		fmt.Fprintln(os.Stdout, "still loading")
	}

	if mode == "ignore-term" {
		for {
			time.Sleep(time.Hour)
		}
	}
	<-sigCh
}
