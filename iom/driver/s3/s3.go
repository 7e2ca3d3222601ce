// Package s3 is an IOM backend that stores each object as a single S3
// object, for deployments that want durable off-node storage without
// running their own service.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithy "github.com/aws/smithy-go"
	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/sandialabs/faodel-sub003/cmn"
	"github.com/sandialabs/faodel-sub003/cmn/nlog"
	"github.com/sandialabs/faodel-sub003/ldo"
)

// existenceFilterCapacity bounds the cuckoo filter's memory; a false
// positive only costs an extra round trip, never a wrong answer.
const existenceFilterCapacity = 1 << 20

// Driver stores objects in a single S3-compatible bucket, keyed by
// "<bucket>/<row>/<column>". A cuckoo filter of keys known to exist
// lets MaybeHas (iom.ExistenceHint) answer "definitely absent" without
// a network round trip; a filter hit still requires the real call,
// since a cuckoo filter can false-positive but never false-negative.
type Driver struct {
	bucketName string
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	seen       *cuckoo.Filter
}

// Open builds a Driver against bucketName using the default AWS
// credential chain (environment, shared config, or instance role).
func Open(ctx context.Context, bucketName string) (*Driver, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("kelpie: s3: loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &Driver{
		bucketName: bucketName,
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		seen:       cuckoo.NewFilter(existenceFilterCapacity),
	}, nil
}

func objectKey(bucket cmn.Bucket, key cmn.Key) string {
	return fmt.Sprintf("%d/%s/%s", bucket, key.K1, key.K2)
}

// MaybeHas implements iom.ExistenceHint.
func (d *Driver) MaybeHas(bucket cmn.Bucket, key cmn.Key) bool {
	return d.seen.Lookup([]byte(objectKey(bucket, key)))
}

// WriteObject implements iom.Driver.
func (d *Driver) WriteObject(bucket cmn.Bucket, key cmn.Key, obj ldo.DataObject) cmn.RC {
	k := objectKey(bucket, key)
	_, err := d.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(d.bucketName),
		Key:    aws.String(k),
		Body:   bytes.NewReader(obj.GetBasePtr()),
	})
	if err != nil {
		nlog.Warningln("s3: WriteObject:", err)
		return cmn.RCEIO
	}
	d.seen.InsertUnique([]byte(k))
	return cmn.RCOk
}

// ReadObject implements iom.Driver.
func (d *Driver) ReadObject(bucket cmn.Bucket, key cmn.Key) (ldo.DataObject, cmn.RC) {
	k := objectKey(bucket, key)
	buf := manager.NewWriteAtBuffer(nil)
	_, err := d.downloader.Download(context.Background(), buf, &s3.GetObjectInput{
		Bucket: aws.String(d.bucketName),
		Key:    aws.String(k),
	})
	if err != nil {
		if isNotFound(err) {
			return ldo.DataObject{}, cmn.RCENoEnt
		}
		nlog.Warningln("s3: ReadObject:", err)
		return ldo.DataObject{}, cmn.RCEIO
	}
	obj, err := ldo.FromBytes(buf.Bytes())
	if err != nil {
		nlog.Warningln("s3: rebuilding ldo:", err)
		return ldo.DataObject{}, cmn.RCEIO
	}
	d.seen.InsertUnique([]byte(k))
	return obj, cmn.RCOk
}

// GetInfo implements iom.Driver with a HEAD request, no body transfer.
func (d *Driver) GetInfo(bucket cmn.Bucket, key cmn.Key) (cmn.ObjectInfo, cmn.RC) {
	out, err := d.client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String(d.bucketName),
		Key:    aws.String(objectKey(bucket, key)),
	})
	if err != nil {
		if isNotFound(err) {
			return cmn.ObjectInfo{}, cmn.RCENoEnt
		}
		nlog.Warningln("s3: GetInfo:", err)
		return cmn.ObjectInfo{}, cmn.RCEIO
	}
	var size uint64
	if out.ContentLength != nil {
		size = uint64(*out.ContentLength)
	}
	return cmn.ObjectInfo{ColUserBytes: size, ColAvailability: cmn.InDisk}, cmn.RCOk
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

// Finish implements iom.Driver; the SDK client owns no resources this
// driver needs to release explicitly.
func (d *Driver) Finish() {}
