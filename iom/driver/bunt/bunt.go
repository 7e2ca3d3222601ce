// Package bunt is kelpie's embedded default IOM backend: one buntdb
// file per bucket, sharded under a data directory, with objects
// lz4-compressed and xxhash-checksummed before they hit disk. A
// deployment with no external IOM configured gets this driver.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package bunt

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/OneOfOne/xxhash"
	"github.com/karrick/godirwalk"
	"github.com/pierrec/lz4/v3"
	"github.com/tidwall/buntdb"

	"github.com/sandialabs/faodel-sub003/cmn"
	"github.com/sandialabs/faodel-sub003/cmn/nlog"
	"github.com/sandialabs/faodel-sub003/ldo"
)

// Driver shards objects across one buntdb file per bucket.
type Driver struct {
	dir string

	mu     sync.Mutex
	shards map[cmn.Bucket]*buntdb.DB
}

// Open discovers any shard files already present under dir (named
// "<bucket-hex>.db") and opens them eagerly; a bucket seen for the
// first time gets a shard lazily on its first write. godirwalk is used
// for the discovery walk rather than os.ReadDir so a data directory
// with many bucket shards scans without per-entry Lstat overhead.
func Open(dir string) (*Driver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("kelpie: bunt: creating data dir: %w", err)
	}
	d := &Driver{dir: dir, shards: make(map[cmn.Bucket]*buntdb.DB)}
	err := godirwalk.Walk(dir, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() || filepath.Ext(path) != ".db" {
				return nil
			}
			bucket, ok := bucketFromShardPath(path)
			if !ok {
				return nil
			}
			db, err := buntdb.Open(path)
			if err != nil {
				return fmt.Errorf("kelpie: bunt: opening shard %s: %w", path, err)
			}
			d.shards[bucket] = db
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	nlog.Infoln("bunt: opened", len(d.shards), "existing shard(s) under", dir)
	return d, nil
}

func shardPath(dir string, bucket cmn.Bucket) string {
	return filepath.Join(dir, strconv.FormatUint(uint64(bucket), 16)+".db")
}

func bucketFromShardPath(path string) (cmn.Bucket, bool) {
	name := filepath.Base(path)
	name = name[:len(name)-len(filepath.Ext(name))]
	v, err := strconv.ParseUint(name, 16, 32)
	if err != nil {
		return 0, false
	}
	return cmn.Bucket(v), true
}

func (d *Driver) shard(bucket cmn.Bucket, create bool) (*buntdb.DB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if db, ok := d.shards[bucket]; ok {
		return db, nil
	}
	if !create {
		return nil, nil
	}
	db, err := buntdb.Open(shardPath(d.dir, bucket))
	if err != nil {
		return nil, fmt.Errorf("kelpie: bunt: opening shard for bucket %d: %w", bucket, err)
	}
	d.shards[bucket] = db
	return db, nil
}

// rowKey packs (row, column) into a single buntdb key; '\x00' cannot
// appear in a kelpie key component so it's a safe separator.
func rowKey(key cmn.Key) string { return key.K1 + "\x00" + key.K2 }

func splitRowKey(k string) (cmn.Key, bool) {
	for i := 0; i < len(k); i++ {
		if k[i] == 0 {
			return cmn.Key{K1: k[:i], K2: k[i+1:]}, true
		}
	}
	return cmn.Key{}, false
}

// Compress opts every object into lz4 compression before storage
// (iom.Compressor).
func (d *Driver) Compress() bool { return true }

// WriteObject implements iom.Driver.
func (d *Driver) WriteObject(bucket cmn.Bucket, key cmn.Key, obj ldo.DataObject) cmn.RC {
	db, err := d.shard(bucket, true)
	if err != nil {
		nlog.Warningln("bunt: WriteObject:", err)
		return cmn.RCEIO
	}
	raw := obj.GetBasePtr()
	var compressed bytes.Buffer
	w := lz4.NewWriter(&compressed)
	if _, err := w.Write(raw); err != nil {
		nlog.Warningln("bunt: lz4 compress:", err)
		return cmn.RCEIO
	}
	if err := w.Close(); err != nil {
		nlog.Warningln("bunt: lz4 close:", err)
		return cmn.RCEIO
	}
	checksum := xxhash.Checksum64(raw)
	value := make([]byte, 8+compressed.Len())
	for i := 0; i < 8; i++ {
		value[i] = byte(checksum >> (8 * i))
	}
	copy(value[8:], compressed.Bytes())
	err = db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(rowKey(key), string(value), nil)
		return err
	})
	if err != nil {
		nlog.Warningln("bunt: WriteObject:", err)
		return cmn.RCEIO
	}
	return cmn.RCOk
}

// ReadObject implements iom.Driver, verifying the xxhash checksum
// recorded at write time against the decompressed image before
// handing the object back.
func (d *Driver) ReadObject(bucket cmn.Bucket, key cmn.Key) (ldo.DataObject, cmn.RC) {
	db, err := d.shard(bucket, false)
	if err != nil {
		return ldo.DataObject{}, cmn.RCEIO
	}
	if db == nil {
		return ldo.DataObject{}, cmn.RCENoEnt
	}
	var value string
	err = db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(rowKey(key))
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if err != nil {
		return ldo.DataObject{}, cmn.RCENoEnt
	}
	raw := []byte(value)
	if len(raw) < 8 {
		return ldo.DataObject{}, cmn.RCEIO
	}
	var checksum uint64
	for i := 0; i < 8; i++ {
		checksum |= uint64(raw[i]) << (8 * i)
	}
	decompressed, err := io.ReadAll(lz4.NewReader(bytes.NewReader(raw[8:])))
	if err != nil {
		nlog.Warningln("bunt: lz4 decompress:", err)
		return ldo.DataObject{}, cmn.RCEIO
	}
	if xxhash.Checksum64(decompressed) != checksum {
		nlog.Warningln("bunt: checksum mismatch for", key.K1, key.K2)
		return ldo.DataObject{}, cmn.RCEIO
	}
	obj, err := ldo.FromBytes(decompressed)
	if err != nil {
		nlog.Warningln("bunt: rebuilding ldo:", err)
		return ldo.DataObject{}, cmn.RCEIO
	}
	return obj, cmn.RCOk
}

// GetInfo implements iom.Driver. It pays the full decompress/checksum
// cost of ReadObject; buntdb has no way to report a value's logical
// size without reading it back.
func (d *Driver) GetInfo(bucket cmn.Bucket, key cmn.Key) (cmn.ObjectInfo, cmn.RC) {
	obj, rc := d.ReadObject(bucket, key)
	if rc != cmn.RCOk {
		return cmn.ObjectInfo{}, rc
	}
	return cmn.ObjectInfo{ColUserBytes: uint64(obj.GetUserSize()), ColAvailability: cmn.InDisk}, cmn.RCOk
}

// ListObjects implements iom.Lister by scanning the bucket's shard.
func (d *Driver) ListObjects(bucket cmn.Bucket, keyPattern cmn.Key) ([]cmn.Key, []cmn.ObjectInfo, error) {
	db, err := d.shard(bucket, false)
	if err != nil {
		return nil, nil, err
	}
	if db == nil {
		return nil, nil, nil
	}
	var keys []cmn.Key
	var infos []cmn.ObjectInfo
	err = db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(k, v string) bool {
			key, ok := splitRowKey(k)
			if !ok || !key.MatchesKey(keyPattern) {
				return true
			}
			keys = append(keys, key)
			infos = append(infos, cmn.ObjectInfo{ColUserBytes: uint64(len(v)), ColAvailability: cmn.InDisk})
			return true
		})
	})
	if err != nil {
		return nil, nil, fmt.Errorf("kelpie: bunt: listing bucket %d: %w", bucket, err)
	}
	return keys, infos, nil
}

// Finish implements iom.Driver.
func (d *Driver) Finish() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, db := range d.shards {
		db.Close()
	}
}
