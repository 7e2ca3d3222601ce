// Package azureblob is an IOM backend that stores each object as a
// single blob in one Azure Storage container.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package azureblob

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/sandialabs/faodel-sub003/cmn"
	"github.com/sandialabs/faodel-sub003/cmn/nlog"
	"github.com/sandialabs/faodel-sub003/ldo"
)

// Driver stores objects as blobs in one container, keyed by
// "<bucket>/<row>/<column>".
type Driver struct {
	client        *azblob.Client
	containerName string
}

// Open builds a Driver against containerName using connectionString,
// the simplest of azblob's credential paths and a reasonable default
// for a single-tenant deployment; retries are capped at 3 since a
// pool op waiting on this call already carries its own caller timeout.
func Open(connectionString, containerName string) (*Driver, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: 3},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("kelpie: azureblob: connecting: %w", err)
	}
	return &Driver{client: client, containerName: containerName}, nil
}

func blobName(bucket cmn.Bucket, key cmn.Key) string {
	return fmt.Sprintf("%d/%s/%s", bucket, key.K1, key.K2)
}

// WriteObject implements iom.Driver.
func (d *Driver) WriteObject(bucket cmn.Bucket, key cmn.Key, obj ldo.DataObject) cmn.RC {
	_, err := d.client.UploadBuffer(context.Background(), d.containerName, blobName(bucket, key), obj.GetBasePtr(), nil)
	if err != nil {
		nlog.Warningln("azureblob: WriteObject:", err)
		return cmn.RCEIO
	}
	return cmn.RCOk
}

// ReadObject implements iom.Driver.
func (d *Driver) ReadObject(bucket cmn.Bucket, key cmn.Key) (ldo.DataObject, cmn.RC) {
	resp, err := d.client.DownloadStream(context.Background(), d.containerName, blobName(bucket, key), nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return ldo.DataObject{}, cmn.RCENoEnt
		}
		nlog.Warningln("azureblob: ReadObject:", err)
		return ldo.DataObject{}, cmn.RCEIO
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		nlog.Warningln("azureblob: reading body:", err)
		return ldo.DataObject{}, cmn.RCEIO
	}
	obj, err := ldo.FromBytes(raw)
	if err != nil {
		nlog.Warningln("azureblob: rebuilding ldo:", err)
		return ldo.DataObject{}, cmn.RCEIO
	}
	return obj, cmn.RCOk
}

// GetInfo implements iom.Driver. azblob has no separate metadata-only
// call cheaper than a stream download's headers, so this pays for the
// stream open (but not the body read).
func (d *Driver) GetInfo(bucket cmn.Bucket, key cmn.Key) (cmn.ObjectInfo, cmn.RC) {
	resp, err := d.client.DownloadStream(context.Background(), d.containerName, blobName(bucket, key), nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return cmn.ObjectInfo{}, cmn.RCENoEnt
		}
		nlog.Warningln("azureblob: GetInfo:", err)
		return cmn.ObjectInfo{}, cmn.RCEIO
	}
	defer resp.Body.Close()
	var size uint64
	if resp.ContentLength != nil {
		size = uint64(*resp.ContentLength)
	}
	return cmn.ObjectInfo{ColUserBytes: size, ColAvailability: cmn.InDisk}, cmn.RCOk
}

// Finish implements iom.Driver; the SDK client owns no resources this
// driver needs to release explicitly.
func (d *Driver) Finish() {}
