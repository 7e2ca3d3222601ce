/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package ops

import (
	"context"

	"github.com/pkg/errors"

	"github.com/sandialabs/faodel-sub003/cmn"
	"github.com/sandialabs/faodel-sub003/ldo"
	"github.com/sandialabs/faodel-sub003/opengine"
	"github.com/sandialabs/faodel-sub003/wire"
)

var infoOpID = wire.OpIDOf("OpKelpieInfo")

// infoOrigin drives a single request/reply Info or RowInfo call
// (spec §4.5): RowInfo is just Info with an empty/wildcard column, so
// one op handles both -- the command byte only affects logging on the
// target, never the behavior.
type infoOrigin struct {
	ctx    *Context
	peer   cmn.NodeID
	bucket cmn.Bucket
	key    cmn.Key
	result ResultFunc
}

// Info implements pool.RemoteExecutor.Info.
func (c *Context) Info(ctx context.Context, target cmn.NodeID, bucket cmn.Bucket, key cmn.Key) (cmn.ObjectInfo, cmn.RC, error) {
	type out struct {
		info cmn.ObjectInfo
		rc   cmn.RC
		err  error
	}
	done := make(chan out, 1)
	c.Engine.StartOrigin(func(uint64) opengine.Op {
		return &infoOrigin{
			ctx: c, peer: target, bucket: bucket, key: key,
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

func (o *infoOrigin) OpID() uint32 { return infoOpID }

func (o *infoOrigin) Update(args opengine.Args) (opengine.WaitingType, error) {
	switch args.Type {
	case opengine.ArgsStart:
		cmd := wire.CmdGetColInfo
		if o.key.K2 == "" || o.key.IsColWildcard() {
			cmd = wire.CmdGetRowInfo
		}
		body := wire.SimpleBody{Bucket: uint32(o.bucket), K1: o.key.K1, K2: o.key.K2}
		h := sendHeader(o.ctx.Self, o.peer, args.Mailbox, 0, o.OpID(), cmd, true)
		raw, err := wire.NewSimple(h, body)
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
		if !args.Msg.Header.IsSuccess() && rc == cmn.RCOk {
			rc = cmn.RCERemote
		}
		o.result(ldo.DataObject{}, wireToObjectInfo(status.Info), rc, nil)
		return opengine.DoneAndDestroy, nil

	default:
		return opengine.ErrorState, errUnexpectedArgs
	}
}

// infoTarget answers a single request/reply Info/RowInfo query
// directly from the local store; no RDMA involved.
type infoTarget struct {
	ctx     *Context
	peer    cmn.NodeID
	srcMbox uint64
	bucket  cmn.Bucket
	key     cmn.Key
}

func (c *Context) newInfoTarget(_ *opengine.Engine, peer cmn.NodeID, env wire.Envelope) (opengine.Op, error) {
	c.observeTargetOp("info")
	body, err := wire.UnmarshalSimpleBody(env.Body)
	if err != nil {
		return nil, errors.Wrap(err, "ops: info target")
	}
	return &infoTarget{
		ctx: c, peer: peer, srcMbox: env.Header.SrcMailbox,
		bucket: cmn.Bucket(body.Bucket), key: cmn.Key{K1: body.K1, K2: body.K2},
	}, nil
}

func (o *infoTarget) OpID() uint32 { return infoOpID }

func (o *infoTarget) Update(args opengine.Args) (opengine.WaitingType, error) {
	if args.Type != opengine.ArgsStart {
		return opengine.ErrorState, errUnexpectedArgs
	}
	info, rc := o.ctx.Store.Info(o.bucket, o.key)
	h := statusHeader(o.ctx.Self, o.peer, args.Mailbox, o.srcMbox, rc == cmn.RCOk)
	raw := wire.NewStatus(h, wire.StatusBody{RemoteRC: int32(rc), Info: objectInfoToWire(info)})
	o.ctx.Transport.SendMsg(o.peer, raw, func(err error) {
		logStateError("info target reply", args.Mailbox, err)
	})
	return opengine.DoneAndDestroy, nil
}
