/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package ops

import (
	"context"

	"github.com/pkg/errors"

	"github.com/sandialabs/faodel-sub003/behavior"
	"github.com/sandialabs/faodel-sub003/cmn"
	"github.com/sandialabs/faodel-sub003/iom"
	"github.com/sandialabs/faodel-sub003/ldo"
	"github.com/sandialabs/faodel-sub003/opengine"
	"github.com/sandialabs/faodel-sub003/wire"
)

var publishOpID = wire.OpIDOf("OpKelpiePublish")

// publishOrigin drives a remote Publish: register the source LDO for
// RDMA, tell the target where to pull it from, and wait for the
// target's ack (spec §4.5 Publish).
type publishOrigin struct {
	ctx  *Context
	peer cmn.NodeID

	bucket  cmn.Bucket
	key     cmn.Key
	obj     ldo.DataObject
	flags   behavior.Flags
	iomHash iom.Hash

	result ResultFunc
}

// Publish implements pool.RemoteExecutor.Publish by launching an
// origin-side op and blocking until it completes or ctx is done.
func (c *Context) Publish(ctx context.Context, target cmn.NodeID, bucket cmn.Bucket, key cmn.Key, obj ldo.DataObject, flags behavior.Flags, iomHash iom.Hash) (cmn.ObjectInfo, cmn.RC, error) {
	type out struct {
		info cmn.ObjectInfo
		rc   cmn.RC
		err  error
	}
	done := make(chan out, 1)
	c.Engine.StartOrigin(func(uint64) opengine.Op {
		return &publishOrigin{
			ctx: c, peer: target,
			bucket: bucket, key: key, obj: obj, flags: flags, iomHash: iomHash,
			result: func(_ ldo.DataObject, info cmn.ObjectInfo, rc cmn.RC, err error) {
				done <- out{info, rc, err}
			},
		}
	})
	select {
	case o := <-done:
		return o.info, o.rc, o.err
	case <-ctx.Done():
		return cmn.ObjectInfo{}, cmn.RCETimedOut, ctx.Err()
	}
}

func (o *publishOrigin) OpID() uint32 { return publishOpID }

func (o *publishOrigin) Update(args opengine.Args) (opengine.WaitingType, error) {
	switch args.Type {
	case opengine.ArgsStart:
		nbr, err := o.ctx.Transport.GetRdmaPtr(o.obj)
		if err != nil {
			o.result(ldo.DataObject{}, cmn.ObjectInfo{}, cmn.RCEIO, err)
			return opengine.ErrorState, err
		}
		body := wire.BufferBody{
			NBR: nbr, MetaPlusDataSize: uint64(o.obj.GetUserSize()),
			Bucket: uint32(o.bucket), IomHash: o.iomHash, Behavior: o.flags,
			K1: o.key.K1, K2: o.key.K2,
		}
		h := sendHeader(o.ctx.Self, o.peer, args.Mailbox, 0, o.OpID(), wire.CmdPublish, true)
		raw, err := wire.NewBuffer(h, body)
		if err != nil {
			o.result(ldo.DataObject{}, cmn.ObjectInfo{}, cmn.RCEInval, err)
			return opengine.ErrorState, err
		}
		o.ctx.Transport.SendMsg(o.peer, raw, func(err error) {
			t := opengine.ArgsSendSuccess
			if err != nil {
				t = opengine.ArgsSendError
			}
			o.ctx.Engine.Complete(args.Mailbox, t, err)
		})
		return opengine.WaitingOnCQ, nil

	case opengine.ArgsSendSuccess:
		return opengine.WaitingOnCQ, nil

	case opengine.ArgsSendError:
		o.result(ldo.DataObject{}, cmn.ObjectInfo{}, cmn.RCEBadRPC, args.Err)
		return opengine.ErrorState, args.Err

	case opengine.ArgsIncomingMessage:
		status, err := wire.UnmarshalStatusBody(args.Msg.Body)
		if err != nil {
			o.result(ldo.DataObject{}, cmn.ObjectInfo{}, cmn.RCEIO, err)
			return opengine.ErrorState, err
		}
		rc := cmn.RC(status.RemoteRC)
		if !args.Msg.Header.IsSuccess() {
			rc = cmn.RCERemote
		}
		o.result(ldo.DataObject{}, wireToObjectInfo(status.Info), rc, nil)
		return opengine.DoneAndDestroy, nil

	default:
		return opengine.ErrorState, errUnexpectedArgs
	}
}

// publishTarget is instantiated from an inbound BufferBody command: it
// RDMA-pulls the source data, writes it into the local store (which
// write-throughs to the configured IOM itself), then acks.
type publishTarget struct {
	ctx     *Context
	peer    cmn.NodeID
	srcMbox uint64

	bucket       cmn.Bucket
	key          cmn.Key
	flags        behavior.Flags
	iomHash      iom.Hash
	srcNBR       wire.NetBufferRemote
	metaPlusData uint64

	obj ldo.DataObject
}

func (c *Context) newPublishTarget(_ *opengine.Engine, peer cmn.NodeID, env wire.Envelope) (opengine.Op, error) {
	c.observeTargetOp("publish")
	body, err := wire.UnmarshalBufferBody(env.Body)
	if err != nil {
		return nil, errors.Wrap(err, "ops: publish target")
	}
	return &publishTarget{
		ctx: c, peer: peer, srcMbox: env.Header.SrcMailbox,
		bucket: cmn.Bucket(body.Bucket), key: cmn.Key{K1: body.K1, K2: body.K2},
		flags: body.Behavior, iomHash: body.IomHash,
		srcNBR: body.NBR, metaPlusData: body.MetaPlusDataSize,
	}, nil
}

func (o *publishTarget) OpID() uint32 { return publishOpID }

func (o *publishTarget) Update(args opengine.Args) (opengine.WaitingType, error) {
	switch args.Type {
	case opengine.ArgsStart:
		obj, err := o.ctx.Transport.NewMessage(uint32(o.metaPlusData))
		if err != nil {
			return opengine.ErrorState, err
		}
		o.obj = obj
		o.ctx.Transport.Get(o.peer, o.srcNBR, o.obj, func(err error) {
			t := opengine.ArgsGetSuccess
			if err != nil {
				t = opengine.ArgsGetError
			}
			o.ctx.Engine.Complete(args.Mailbox, t, err)
		})
		return opengine.WaitingOnCQ, nil

	case opengine.ArgsGetSuccess:
		info, rc := o.ctx.Store.Put(o.bucket, o.key, o.obj, o.flags, o.iomHash)
		o.reply(args.Mailbox, rc, info)
		return opengine.DoneAndDestroy, nil

	case opengine.ArgsGetError:
		o.reply(args.Mailbox, cmn.RCEIO, cmn.ObjectInfo{})
		return opengine.ErrorState, args.Err

	default:
		return opengine.ErrorState, errUnexpectedArgs
	}
}

func (o *publishTarget) reply(mailbox uint64, rc cmn.RC, info cmn.ObjectInfo) {
	h := statusHeader(o.ctx.Self, o.peer, mailbox, o.srcMbox, rc == cmn.RCOk)
	raw := wire.NewStatus(h, wire.StatusBody{RemoteRC: int32(rc), Info: objectInfoToWire(info)})
	o.ctx.Transport.SendMsg(o.peer, raw, func(err error) {
		logStateError("publish target reply", mailbox, err)
	})
}
