package common

import (
	"fmt"

	"github.com/devlights/gomy/output"
)

type LogLevel int32

const (
	DEBUG_INFO_DETAIL LogLevel = 1
	DEBUG_INFO        LogLevel = 2
	RDB_OP_FUNC_CALL  LogLevel = 4
	DEBUGGING         LogLevel = 8
	INFO              LogLevel = 16
	WARN              LogLevel = 32
	ERROR             LogLevel = 64
	FATAL             LogLevel = 128
)

// LogLevelSetting is the bitmask of levels ShPrintf actually emits.
// EnableDebug widens it to include RDB_OP_FUNC_CALL traces.
var LogLevelSetting = INFO | WARN | ERROR | FATAL

func init() {
	if EnableDebug {
		LogLevelSetting |= DEBUG_INFO | RDB_OP_FUNC_CALL | DEBUGGING
	}
}

// ShPrintf prints fmtStl/a when logLevel is enabled in LogLevelSetting,
// through gomy/output so every gated line carries the same prefix the
// teacher's own RuntimeStack diagnostic uses.
func ShPrintf(logLevel LogLevel, fmtStl string, a ...interface{}) {
	if logLevel&LogLevelSetting > 0 {
		output.Stdoutl("[waldb] ", fmt.Sprintf(fmtStl, a...))
	}
}

// Dump unconditionally prints label and content through gomy/output,
// for the recovery driver to report state (e.g. the in-progress
// transaction set) when it is about to fail startup on a corrupt WAL.
func Dump(label string, content interface{}) {
	output.Stdoutl(label, fmt.Sprintf("%+v", content))
}
