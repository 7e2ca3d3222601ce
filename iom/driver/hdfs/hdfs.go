// Package hdfs is an IOM backend that stores each object as a single
// file in an HDFS cluster, for deployments that already run one
// alongside their compute.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package hdfs

import (
	"fmt"
	"io"
	"os"
	"path"

	"github.com/colinmarc/hdfs/v2"

	"github.com/sandialabs/faodel-sub003/cmn"
	"github.com/sandialabs/faodel-sub003/cmn/nlog"
	"github.com/sandialabs/faodel-sub003/ldo"
)

// Driver stores objects as files under one root directory in HDFS,
// keyed by "<root>/<bucket>/<row>/<column>".
type Driver struct {
	client *hdfs.Client
	root   string
}

// Open builds a Driver against the namenode at address, storing
// objects under root (created if missing).
func Open(address, root string) (*Driver, error) {
	client, err := hdfs.New(address)
	if err != nil {
		return nil, fmt.Errorf("kelpie: hdfs: connecting to namenode %s: %w", address, err)
	}
	if err := client.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("kelpie: hdfs: creating root %s: %w", root, err)
	}
	return &Driver{client: client, root: root}, nil
}

func objectPath(root string, bucket cmn.Bucket, key cmn.Key) string {
	return path.Join(root, fmt.Sprintf("%d", bucket), key.K1, key.K2)
}

// WriteObject implements iom.Driver.
func (d *Driver) WriteObject(bucket cmn.Bucket, key cmn.Key, obj ldo.DataObject) cmn.RC {
	p := objectPath(d.root, bucket, key)
	if err := d.client.MkdirAll(path.Dir(p), 0o755); err != nil {
		nlog.Warningln("hdfs: WriteObject: mkdir:", err)
		return cmn.RCEIO
	}
	d.client.Remove(p) // CreateFile fails if the path already exists
	w, err := d.client.CreateFile(p, 1, 128<<20, 0o644)
	if err != nil {
		nlog.Warningln("hdfs: WriteObject: create:", err)
		return cmn.RCEIO
	}
	if _, err := w.Write(obj.GetBasePtr()); err != nil {
		w.Close()
		nlog.Warningln("hdfs: WriteObject: write:", err)
		return cmn.RCEIO
	}
	if err := w.Close(); err != nil {
		nlog.Warningln("hdfs: WriteObject: closing:", err)
		return cmn.RCEIO
	}
	return cmn.RCOk
}

// ReadObject implements iom.Driver.
func (d *Driver) ReadObject(bucket cmn.Bucket, key cmn.Key) (ldo.DataObject, cmn.RC) {
	p := objectPath(d.root, bucket, key)
	r, err := d.client.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return ldo.DataObject{}, cmn.RCENoEnt
		}
		nlog.Warningln("hdfs: ReadObject:", err)
		return ldo.DataObject{}, cmn.RCEIO
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		nlog.Warningln("hdfs: reading body:", err)
		return ldo.DataObject{}, cmn.RCEIO
	}
	obj, err := ldo.FromBytes(raw)
	if err != nil {
		nlog.Warningln("hdfs: rebuilding ldo:", err)
		return ldo.DataObject{}, cmn.RCEIO
	}
	return obj, cmn.RCOk
}

// GetInfo implements iom.Driver via a Stat call, no file open.
func (d *Driver) GetInfo(bucket cmn.Bucket, key cmn.Key) (cmn.ObjectInfo, cmn.RC) {
	fi, err := d.client.Stat(objectPath(d.root, bucket, key))
	if err != nil {
		if os.IsNotExist(err) {
			return cmn.ObjectInfo{}, cmn.RCENoEnt
		}
		nlog.Warningln("hdfs: GetInfo:", err)
		return cmn.ObjectInfo{}, cmn.RCEIO
	}
	return cmn.ObjectInfo{ColUserBytes: uint64(fi.Size()), ColAvailability: cmn.InDisk}, cmn.RCOk
}

// Finish implements iom.Driver.
func (d *Driver) Finish() {
	if err := d.client.Close(); err != nil {
		nlog.Warningln("hdfs: closing client:", err)
	}
}
