// Package gcs is an IOM backend that stores each object as a single
// object in one Google Cloud Storage bucket.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"github.com/sandialabs/faodel-sub003/cmn"
	"github.com/sandialabs/faodel-sub003/cmn/nlog"
	"github.com/sandialabs/faodel-sub003/ldo"
)

// Driver stores objects in a single GCS bucket, keyed by
// "<bucket>/<row>/<column>".
type Driver struct {
	client     *storage.Client
	bucketName string
}

// Open builds a Driver against bucketName using application default
// credentials.
func Open(ctx context.Context, bucketName string) (*Driver, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("kelpie: gcs: connecting: %w", err)
	}
	return &Driver{client: client, bucketName: bucketName}, nil
}

func objectName(bucket cmn.Bucket, key cmn.Key) string {
	return fmt.Sprintf("%d/%s/%s", bucket, key.K1, key.K2)
}

func (d *Driver) object(bucket cmn.Bucket, key cmn.Key) *storage.ObjectHandle {
	return d.client.Bucket(d.bucketName).Object(objectName(bucket, key))
}

// WriteObject implements iom.Driver.
func (d *Driver) WriteObject(bucket cmn.Bucket, key cmn.Key, obj ldo.DataObject) cmn.RC {
	ctx := context.Background()
	w := d.object(bucket, key).NewWriter(ctx)
	if _, err := w.Write(obj.GetBasePtr()); err != nil {
		w.Close()
		nlog.Warningln("gcs: WriteObject:", err)
		return cmn.RCEIO
	}
	if err := w.Close(); err != nil {
		nlog.Warningln("gcs: WriteObject: closing:", err)
		return cmn.RCEIO
	}
	return cmn.RCOk
}

// ReadObject implements iom.Driver.
func (d *Driver) ReadObject(bucket cmn.Bucket, key cmn.Key) (ldo.DataObject, cmn.RC) {
	ctx := context.Background()
	r, err := d.object(bucket, key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ldo.DataObject{}, cmn.RCENoEnt
		}
		nlog.Warningln("gcs: ReadObject:", err)
		return ldo.DataObject{}, cmn.RCEIO
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		nlog.Warningln("gcs: reading body:", err)
		return ldo.DataObject{}, cmn.RCEIO
	}
	obj, err := ldo.FromBytes(raw)
	if err != nil {
		nlog.Warningln("gcs: rebuilding ldo:", err)
		return ldo.DataObject{}, cmn.RCEIO
	}
	return obj, cmn.RCOk
}

// GetInfo implements iom.Driver via an attributes fetch, no body
// transfer.
func (d *Driver) GetInfo(bucket cmn.Bucket, key cmn.Key) (cmn.ObjectInfo, cmn.RC) {
	attrs, err := d.object(bucket, key).Attrs(context.Background())
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return cmn.ObjectInfo{}, cmn.RCENoEnt
		}
		nlog.Warningln("gcs: GetInfo:", err)
		return cmn.ObjectInfo{}, cmn.RCEIO
	}
	return cmn.ObjectInfo{ColUserBytes: uint64(attrs.Size), ColAvailability: cmn.InDisk}, cmn.RCOk
}

// Finish implements iom.Driver.
func (d *Driver) Finish() {
	if err := d.client.Close(); err != nil {
		nlog.Warningln("gcs: closing client:", err)
	}
}
