/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package ops

import (
	"context"

	"github.com/pkg/errors"

	"github.com/sandialabs/faodel-sub003/behavior"
	"github.com/sandialabs/faodel-sub003/cmn"
	"github.com/sandialabs/faodel-sub003/ldo"
	"github.com/sandialabs/faodel-sub003/opengine"
	"github.com/sandialabs/faodel-sub003/wire"
)

var getBoundedOpID = wire.OpIDOf("OpKelpieGetBounded")

// getBoundedOrigin handles the case where the caller already knows how
// large the landing buffer needs to be: it registers that buffer for
// RDMA and hands the handle to the target, which pushes data directly
// into it (spec §4.5 Get-Bounded).
type getBoundedOrigin struct {
	ctx  *Context
	peer cmn.NodeID

	bucket  cmn.Bucket
	key     cmn.Key
	flags   behavior.Flags
	landing ldo.DataObject

	result ResultFunc
}

// GetBounded launches a remote Get into a caller-supplied, already
// sized landing buffer.
func (c *Context) GetBounded(ctx context.Context, target cmn.NodeID, bucket cmn.Bucket, key cmn.Key, flags behavior.Flags, landing ldo.DataObject) (cmn.ObjectInfo, cmn.RC, error) {
	type out struct {
		info cmn.ObjectInfo
		rc   cmn.RC
		err  error
	}
	done := make(chan out, 1)
	c.Engine.StartOrigin(func(uint64) opengine.Op {
		return &getBoundedOrigin{
			ctx: c, peer: target, bucket: bucket, key: key, flags: flags, landing: landing,
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

func (o *getBoundedOrigin) OpID() uint32 { return getBoundedOpID }

func (o *getBoundedOrigin) Update(args opengine.Args) (opengine.WaitingType, error) {
	switch args.Type {
	case opengine.ArgsStart:
		nbr, err := o.ctx.Transport.GetRdmaPtr(o.landing)
		if err != nil {
			o.result(ldo.DataObject{}, cmn.ObjectInfo{}, cmn.RCEIO, err)
			return opengine.ErrorState, err
		}
		body := wire.BufferBody{
			NBR: nbr, MetaPlusDataSize: uint64(o.landing.GetUserCapacity()),
			Bucket: uint32(o.bucket), Behavior: o.flags, K1: o.key.K1, K2: o.key.K2,
		}
		h := sendHeader(o.ctx.Self, o.peer, args.Mailbox, 0, o.OpID(), wire.CmdGetBounded, true)
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
			o.result(ldo.DataObject{}, cmn.ObjectInfo{}, rc, nil)
			return opengine.DoneAndDestroy, nil
		}
		o.result(o.landing, wireToObjectInfo(status.Info), rc, nil)
		return opengine.DoneAndDestroy, nil

	default:
		return opengine.ErrorState, errUnexpectedArgs
	}
}

// getBoundedTarget looks the row up locally and one-sided-pushes it
// into the origin's already-registered landing buffer.
type getBoundedTarget struct {
	ctx     *Context
	peer    cmn.NodeID
	srcMbox uint64

	bucket   cmn.Bucket
	key      cmn.Key
	destNBR  wire.NetBufferRemote
	destCap  uint64
	info     cmn.ObjectInfo
}

func (c *Context) newGetBoundedTarget(_ *opengine.Engine, peer cmn.NodeID, env wire.Envelope) (opengine.Op, error) {
	c.observeTargetOp("get-bounded")
	body, err := wire.UnmarshalBufferBody(env.Body)
	if err != nil {
		return nil, errors.Wrap(err, "ops: get-bounded target")
	}
	return &getBoundedTarget{
		ctx: c, peer: peer, srcMbox: env.Header.SrcMailbox,
		bucket: cmn.Bucket(body.Bucket), key: cmn.Key{K1: body.K1, K2: body.K2},
		destNBR: body.NBR, destCap: body.MetaPlusDataSize,
	}, nil
}

func (o *getBoundedTarget) OpID() uint32 { return getBoundedOpID }

func (o *getBoundedTarget) Update(args opengine.Args) (opengine.WaitingType, error) {
	switch args.Type {
	case opengine.ArgsStart:
		obj, info, rc := o.ctx.Store.Get(o.bucket, o.key)
		if rc != cmn.RCOk {
			o.reply(args.Mailbox, rc, cmn.ObjectInfo{})
			return opengine.DoneAndDestroy, nil
		}
		if uint64(obj.GetUserSize()) > o.destCap {
			o.reply(args.Mailbox, cmn.RCEOverflow, cmn.ObjectInfo{})
			return opengine.DoneAndDestroy, nil
		}
		o.info = info
		o.ctx.Transport.Put(o.peer, obj, o.destNBR, func(err error) {
			t := opengine.ArgsPutSuccess
			if err != nil {
				t = opengine.ArgsPutError
			}
			o.ctx.Engine.Complete(args.Mailbox, t, err)
		})
		return opengine.WaitingOnCQ, nil

	case opengine.ArgsPutSuccess:
		o.reply(args.Mailbox, cmn.RCOk, o.info)
		return opengine.DoneAndDestroy, nil

	case opengine.ArgsPutError:
		o.reply(args.Mailbox, cmn.RCEIO, cmn.ObjectInfo{})
		return opengine.ErrorState, args.Err

	default:
		return opengine.ErrorState, errUnexpectedArgs
	}
}

func (o *getBoundedTarget) reply(mailbox uint64, rc cmn.RC, info cmn.ObjectInfo) {
	h := statusHeader(o.ctx.Self, o.peer, mailbox, o.srcMbox, rc == cmn.RCOk)
	raw := wire.NewStatus(h, wire.StatusBody{RemoteRC: int32(rc), Info: objectInfoToWire(info)})
	o.ctx.Transport.SendMsg(o.peer, raw, func(err error) {
		logStateError("get-bounded target reply", mailbox, err)
	})
}
