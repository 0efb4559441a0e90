package common

// Page size bounds, mirrored from the heap file format: a DBFile's
// page size must be a power of two in this range so it fits the
// single exponent byte page 0 encodes.
const (
	MinPageSize     = 512
	MaxPageSize     = 65536
	DefaultPageSize = 4096
)

// WAL sizing. A WAL file spans at most MaxWALFileSize; the file number
// wraps modulo MaxWALFileNo+1. MaxWALFileSize is a var, not a const,
// so tests can shrink it to exercise the wraparound path without
// writing 10 MiB of fixture data.
var MaxWALFileSize uint64 = 10 * 1024 * 1024

const (
	MaxWALFileNo      = 65535
	OffsetFirstRecord = 6
)

// Header layout shared by every DBFile: byte 0 is the file-type tag,
// byte 1 is log2(pageSize).
const (
	OffsetFileType    = 0
	OffsetPageSizeExp = 1
	DBFileHeaderSize  = 2
)

// DefaultBufferPoolSize is the frame count the buffer manager uses
// when the caller does not configure one explicitly.
const DefaultBufferPoolSize = 64

// EnableDebug gates the RDB_OP_FUNC_CALL trace level; off by default
// so ordinary runs stay quiet.
var EnableDebug = false
