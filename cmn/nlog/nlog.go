// Package nlog is kelpie's leveled logger. It is hand-rolled rather
// than built on a third-party logging library because that is what the
// teacher itself does for its own cmn/nlog -- see DESIGN.md.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

// verbosity is a process-wide atomic gate, mirroring the teacher's
// `cmn.Rom.FastV(level, module)` pattern but collapsed to a single
// global level since kelpie has no per-module smodule registry.
var verbosity int32

func SetVerbosity(v int) { atomic.StoreInt32(&verbosity, int32(v)) }

// FastV reports whether logging at level should proceed -- an
// allocation-free check callers can use to skip building a log line
// that would be discarded.
func FastV(level int) bool { return int32(level) <= atomic.LoadInt32(&verbosity) }

var std = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)

func Infof(format string, args ...any)    { std.Output(2, "I "+fmt.Sprintf(format, args...)) }
func Infoln(args ...any)                  { std.Output(2, "I "+fmt.Sprintln(args...)) }
func Warningf(format string, args ...any) { std.Output(2, "W "+fmt.Sprintf(format, args...)) }
func Warningln(args ...any)               { std.Output(2, "W "+fmt.Sprintln(args...)) }
func Errorf(format string, args ...any)   { std.Output(2, "E "+fmt.Sprintf(format, args...)) }
func Errorln(args ...any)                 { std.Output(2, "E "+fmt.Sprintln(args...)) }
