// Command kelpied runs a single kelpie node: it loads a config file,
// brings up storage/transport/ops via bootstrap, serves metrics, and
// blocks until signaled to stop.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sandialabs/faodel-sub003/bootstrap"
	"github.com/sandialabs/faodel-sub003/cmn/config"
	"github.com/sandialabs/faodel-sub003/cmn/nlog"
)

func main() {
	configPath := flag.String("config", "", "path to a kelpie JSON config file (defaults used if omitted)")
	metricsAddr := flag.String("metrics-addr", ":9091", "address to serve Prometheus metrics on")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			nlog.Errorln("kelpied: loading config:", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	nlog.SetVerbosity(cfg.Verbosity)

	node, err := bootstrap.New(cfg)
	if err != nil {
		nlog.Errorln("kelpied: bootstrap:", err)
		os.Exit(1)
	}

	go func() {
		if err := http.ListenAndServe(*metricsAddr, node.Stats.Handler()); err != nil {
			nlog.Errorln("kelpied: metrics listener exited:", err)
		}
	}()

	if err := node.Start(); err != nil {
		nlog.Errorln("kelpied: start:", err)
		os.Exit(1)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	nlog.Infoln("kelpied: shutting down")
	node.Finish()
}
