// Package bootstrap brings up a kelpie node's services in leaves-first
// order and tears them down in reverse, the way the teacher's own
// daemon construction sequences its core before its gateway/target
// services: a Node owns every collaborator and Finish() unwinds them.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package bootstrap

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/sandialabs/faodel-sub003/backburner"
	"github.com/sandialabs/faodel-sub003/cmn"
	"github.com/sandialabs/faodel-sub003/cmn/config"
	"github.com/sandialabs/faodel-sub003/cmn/nlog"
	"github.com/sandialabs/faodel-sub003/iom"
	"github.com/sandialabs/faodel-sub003/iom/driver/azureblob"
	"github.com/sandialabs/faodel-sub003/iom/driver/bunt"
	"github.com/sandialabs/faodel-sub003/iom/driver/gcs"
	"github.com/sandialabs/faodel-sub003/iom/driver/hdfs"
	"github.com/sandialabs/faodel-sub003/iom/driver/s3"
	"github.com/sandialabs/faodel-sub003/localkv"
	"github.com/sandialabs/faodel-sub003/opengine"
	"github.com/sandialabs/faodel-sub003/ops"
	"github.com/sandialabs/faodel-sub003/pool"
	"github.com/sandialabs/faodel-sub003/stats"
	"github.com/sandialabs/faodel-sub003/transport"
	"github.com/sandialabs/faodel-sub003/wire"
)

// Node bundles every service a kelpie process runs, held in the
// leaves-first construction order New uses: cmn/config -> stats ->
// iom -> backburner -> opengine -> localkv -> transport -> ops. Pools
// are added afterwards by NewPool.
type Node struct {
	Config    config.Config
	Stats     *stats.Registry
	IOMs      *iom.Registry
	Store     *localkv.LocalKV
	Work      *backburner.Pool
	Engine    *opengine.Engine
	Transport *transport.FastHTTPTransport
	Ops       *ops.Context
	Pools     map[string]*pool.Pool
}

// New constructs every service named by cfg but does not start network
// I/O or background workers; call Start for that.
func New(cfg config.Config) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := &Node{Config: cfg, Pools: make(map[string]*pool.Pool)}

	n.Stats = stats.NewRegistry("kelpie")

	n.IOMs = iom.NewRegistry()
	for _, iomCfg := range cfg.IOMs {
		driver, err := openDriver(iomCfg)
		if err != nil {
			return nil, errors.Wrapf(err, "bootstrap: opening IOM %q", iomCfg.Name)
		}
		n.IOMs.Register(iomCfg.Name, driver)
	}

	n.Work = backburner.New(backburner.Config{
		WorkerCount: cfg.BackburnerWorkers,
		Wakeup:      backburner.WakeupSleep,
	})

	n.Engine = opengine.New(1)
	n.Store = localkv.New(n.Engine, n.Work, n.IOMs)
	n.Transport = transport.NewFastHTTPTransport(cfg.Self)
	n.Transport.RegisterRecvCallback(func(peer cmn.NodeID, env wire.Envelope) {
		if err := n.Engine.Dispatch(peer, env); err != nil {
			nlog.Warningln("bootstrap: dispatch:", err)
		}
	})

	n.Ops = &ops.Context{
		Engine:    n.Engine,
		Transport: n.Transport,
		Store:     n.Store,
		IOMs:      n.IOMs,
		Self:      cfg.Self,
		Computes:  ops.NewComputeRegistry(),
		Stats:     n.Stats,
	}
	n.Ops.Register()

	return n, nil
}

func openDriver(cfg config.IOMConfig) (iom.Driver, error) {
	switch cfg.Driver {
	case "bunt":
		return bunt.Open(cfg.Params["dir"])
	case "s3":
		return s3.Open(context.Background(), cfg.Params["bucket"])
	case "azureblob":
		return azureblob.Open(cfg.Params["connection_string"], cfg.Params["container"])
	case "gcs":
		return gcs.Open(context.Background(), cfg.Params["bucket"])
	case "hdfs":
		return hdfs.Open(cfg.Params["namenode"], cfg.Params["root"])
	default:
		return nil, fmt.Errorf("bootstrap: unknown IOM driver %q", cfg.Driver)
	}
}

// NewPool builds and registers a DHT pool bound to url, using members
// as its already-resolved membership (spec §4.6: the core consumes a
// resolved list; something outside this package -- a directory
// manager, a static config, a k8s endpoint watcher -- decides who's in
// it).
func (n *Node) NewPool(name string, url cmn.ResourceURL, members []cmn.NodeID) *pool.Pool {
	p := pool.New(url, n.Config.Self, pool.NewMembership(members), n.Store, n.Ops)
	n.Pools[name] = p
	return p
}

// Start brings up the transport listener and the background worker
// pool. It does not block; the listener runs in its own goroutine.
func (n *Node) Start() error {
	n.Work.Start()
	go func() {
		if err := n.Transport.Serve(n.Config.ListenAddr); err != nil {
			nlog.Errorln("bootstrap: transport listener exited:", err)
		}
	}()
	nlog.Infoln("bootstrap: node", n.Config.Self, "listening on", n.Config.ListenAddr)
	return nil
}

// Finish tears every service down in reverse construction order:
// the background worker pool, then the configured IOM drivers.
func (n *Node) Finish() {
	n.Work.Finish()
	for _, iomCfg := range n.Config.IOMs {
		if d, ok := n.IOMs.Lookup(iom.HashName(iomCfg.Name)); ok {
			d.Finish()
		}
	}
}
