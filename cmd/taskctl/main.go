package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"
)

func main() {
	server := flag.String("server", os.Getenv("TASKCTL_SERVER"), "tasks-server base URL (default from login or "+defaultServer+")")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	r := &runner{server: *server, out: os.Stdout, errOut: os.Stderr}
	code := r.run(ctx, flag.Args())
	if code != 0 {
		fmt.Fprintln(os.Stderr)
	}
	cancel()
	stop()
	os.Exit(code)
}
