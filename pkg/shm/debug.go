package shm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/srediag/spsc-shm/internal/logger"
)

// Log levels accepted by SetLogLevel.
const (
	LogLevelTrace   = logger.LevelTrace
	LogLevelDebug   = logger.LevelDebug
	LogLevelInfo    = logger.LevelInfo
	LogLevelWarn    = logger.LevelWarn
	LogLevelError   = logger.LevelError
	LogLevelNoPrint = logger.LevelNoPrint
)

// SetLogLevel sets the level of the internal logger. The default level is
// Warn, and the process env `SHM_LOG_LEVEL` could also set it.
func SetLogLevel(l int) {
	logger.SetLevel(l)
}

// SegmentInfo is a snapshot of a segment header read from its file.
type SegmentInfo struct {
	Path       string
	MagicOK    bool
	Version    uint32
	HeaderSize uint32
	Capacity   uint64
	Ready      bool
	Head       uint64
	Tail       uint64
}

// Used returns tail - head.
func (i SegmentInfo) Used() uint64 {
	return i.Tail - i.Head
}

// ReadSegmentInfo reads the header of the segment file at path without
// mapping it.
func ReadSegmentInfo(path string) (SegmentInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return SegmentInfo{}, err
	}
	defer f.Close()

	mem := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, mem); err != nil {
		return SegmentInfo{}, fmt.Errorf("read header of %s: %w", path, err)
	}
	return SegmentInfo{
		Path:       path,
		MagicOK:    bytes.Equal(mem[offMagic:offMagic+len(magic)], magic[:]),
		Version:    binary.LittleEndian.Uint32(mem[offVersion:]),
		HeaderSize: binary.LittleEndian.Uint32(mem[offHeaderSize:]),
		Capacity:   binary.LittleEndian.Uint64(mem[offCapacity:]),
		Ready:      binary.LittleEndian.Uint32(mem[offState:]) == stateReady,
		Head:       binary.LittleEndian.Uint64(mem[offHead:]),
		Tail:       binary.LittleEndian.Uint64(mem[offTail:]),
	}, nil
}

// DebugSegment prints the header of the segment file at `path`.
func DebugSegment(path string) {
	info, err := ReadSegmentInfo(path)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("path:%s magic:%v version:%d ready:%v cap:%d head:%d tail:%d size:%d\n",
		path, info.MagicOK, info.Version, info.Ready, info.Capacity, info.Head, info.Tail, info.Used())
}
