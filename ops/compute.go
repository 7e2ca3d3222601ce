/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package ops

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/sandialabs/faodel-sub003/cmn"
	"github.com/sandialabs/faodel-sub003/ldo"
	"github.com/sandialabs/faodel-sub003/opengine"
	"github.com/sandialabs/faodel-sub003/wire"
)

var computeOpID = wire.OpIDOf("OpKelpieCompute")

// ComputeFunc runs a registered function against the row/column it was
// asked to operate on, given the object already stored there (which
// may be null if the function doesn't need one) and the caller's
// opaque argument bytes.
type ComputeFunc func(bucket cmn.Bucket, key cmn.Key, input ldo.DataObject, fnArgs []byte) (ldo.DataObject, cmn.RC, error)

// ComputeRegistry is the process-wide function-name -> ComputeFunc map
// (spec §4.5 Compute).
type ComputeRegistry struct {
	mu    sync.RWMutex
	funcs map[string]ComputeFunc
}

func NewComputeRegistry() *ComputeRegistry {
	return &ComputeRegistry{funcs: make(map[string]ComputeFunc)}
}

func (r *ComputeRegistry) Register(name string, fn ComputeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

func (r *ComputeRegistry) lookup(name string) (ComputeFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// computeOrigin asks the target to run a registered function and
// receives the result the same way Get-Unbounded does: a handle to
// the target's own memory, pulled once the size is known.
type computeOrigin struct {
	ctx    *Context
	peer   cmn.NodeID
	bucket cmn.Bucket
	key    cmn.Key
	fnName string
	fnArgs []byte

	landing ldo.DataObject
	result  ResultFunc
}

// Compute runs fnName on target against (bucket,key), passing fnArgs
// through opaquely.
func (c *Context) Compute(ctx context.Context, target cmn.NodeID, bucket cmn.Bucket, key cmn.Key, fnName string, fnArgs []byte) (ldo.DataObject, cmn.ObjectInfo, cmn.RC, error) {
	type out struct {
		obj  ldo.DataObject
		info cmn.ObjectInfo
		rc   cmn.RC
		err  error
	}
	done := make(chan out, 1)
	c.Engine.StartOrigin(func(uint64) opengine.Op {
		return &computeOrigin{
			ctx: c, peer: target, bucket: bucket, key: key, fnName: fnName, fnArgs: fnArgs,
			result: func(obj ldo.DataObject, info cmn.ObjectInfo, rc cmn.RC, err error) {
				done <- out{obj, info, rc, err}
			},
		}
	})
	select {
	case o := <-done:
		return o.obj, o.info, o.rc, o.err
	case <-ctx.Done():
		return ldo.DataObject{}, cmn.ObjectInfo{}, cmn.RCETimedOut, ctx.Err()
	}
}

func (o *computeOrigin) OpID() uint32 { return computeOpID }

func (o *computeOrigin) Update(args opengine.Args) (opengine.WaitingType, error) {
	switch args.Type {
	case opengine.ArgsStart:
		body := wire.SimpleBody{Bucket: uint32(o.bucket), K1: o.key.K1, K2: o.key.K2, FnName: o.fnName, FnArgs: o.fnArgs}
		h := sendHeader(o.ctx.Self, o.peer, args.Mailbox, 0, o.OpID(), wire.CmdCompute, true)
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
		if !args.Msg.Header.IsSuccess() {
			status, err := wire.UnmarshalStatusBody(args.Msg.Body)
			if err != nil {
				o.result(ldo.DataObject{}, cmn.ObjectInfo{}, cmn.RCEIO, err)
				return opengine.ErrorState, err
			}
			o.result(ldo.DataObject{}, cmn.ObjectInfo{}, cmn.RC(status.RemoteRC), nil)
			return opengine.DoneAndDestroy, nil
		}
		buf, err := wire.UnmarshalBufferBody(args.Msg.Body)
		if err != nil {
			o.result(ldo.DataObject{}, cmn.ObjectInfo{}, cmn.RCEIO, err)
			return opengine.ErrorState, err
		}
		landing, err := o.ctx.Transport.NewMessage(uint32(buf.MetaPlusDataSize))
		if err != nil {
			o.result(ldo.DataObject{}, cmn.ObjectInfo{}, cmn.RCEIO, err)
			return opengine.ErrorState, err
		}
		o.landing = landing
		o.ctx.Transport.Get(o.peer, buf.NBR, o.landing, func(err error) {
			t := opengine.ArgsGetSuccess
			if err != nil {
				t = opengine.ArgsGetError
			}
			o.ctx.Engine.Complete(args.Mailbox, t, err)
		})
		return opengine.WaitingOnCQ, nil

	case opengine.ArgsGetSuccess:
		info := cmn.ObjectInfo{ColUserBytes: uint64(o.landing.GetUserSize()), ColAvailability: cmn.InRemoteMemory}
		o.result(o.landing, info, cmn.RCOk, nil)
		return opengine.DoneAndDestroy, nil

	case opengine.ArgsGetError:
		o.result(ldo.DataObject{}, cmn.ObjectInfo{}, cmn.RCEIO, args.Err)
		return opengine.ErrorState, args.Err

	default:
		return opengine.ErrorState, errUnexpectedArgs
	}
}

// computeTarget runs the registered function and hands the result
// back through the Get-Unbounded handle pattern.
type computeTarget struct {
	ctx     *Context
	peer    cmn.NodeID
	srcMbox uint64
	bucket  cmn.Bucket
	key     cmn.Key
	fnName  string
	fnArgs  []byte
}

func (c *Context) newComputeTarget(_ *opengine.Engine, peer cmn.NodeID, env wire.Envelope) (opengine.Op, error) {
	c.observeTargetOp("compute")
	body, err := wire.UnmarshalSimpleBody(env.Body)
	if err != nil {
		return nil, errors.Wrap(err, "ops: compute target")
	}
	return &computeTarget{
		ctx: c, peer: peer, srcMbox: env.Header.SrcMailbox,
		bucket: cmn.Bucket(body.Bucket), key: cmn.Key{K1: body.K1, K2: body.K2},
		fnName: body.FnName, fnArgs: body.FnArgs,
	}, nil
}

func (o *computeTarget) OpID() uint32 { return computeOpID }

func (o *computeTarget) Update(args opengine.Args) (opengine.WaitingType, error) {
	if args.Type != opengine.ArgsStart {
		return opengine.ErrorState, errUnexpectedArgs
	}
	fn, ok := o.ctx.Computes.lookup(o.fnName)
	if !ok {
		o.nak(args.Mailbox, cmn.RCNXIO)
		return opengine.DoneAndDestroy, nil
	}
	input, _, _ := o.ctx.Store.Get(o.bucket, o.key)
	result, rc, err := fn(o.bucket, o.key, input, o.fnArgs)
	if err != nil || rc != cmn.RCOk {
		o.nak(args.Mailbox, rc)
		return opengine.DoneAndDestroy, nil
	}
	nbr, err := o.ctx.Transport.GetRdmaPtr(result)
	if err != nil {
		return opengine.ErrorState, err
	}
	body := wire.BufferBody{NBR: nbr, MetaPlusDataSize: uint64(result.GetUserSize()), Bucket: uint32(o.bucket), K1: o.key.K1, K2: o.key.K2}
	h := statusHeader(o.ctx.Self, o.peer, args.Mailbox, o.srcMbox, true)
	raw, err := wire.NewBuffer(h, body)
	if err != nil {
		return opengine.ErrorState, err
	}
	o.ctx.Transport.SendMsg(o.peer, raw, func(err error) {
		logStateError("compute target reply", args.Mailbox, err)
	})
	return opengine.DoneAndDestroy, nil
}

func (o *computeTarget) nak(mailbox uint64, rc cmn.RC) {
	h := statusHeader(o.ctx.Self, o.peer, mailbox, o.srcMbox, false)
	raw := wire.NewStatus(h, wire.StatusBody{RemoteRC: int32(rc)})
	o.ctx.Transport.SendMsg(o.peer, raw, func(err error) {
		logStateError("compute target nak", mailbox, err)
	})
}
