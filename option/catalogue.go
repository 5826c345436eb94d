package option

import (
	"net"
	"time"
)

// Catalogue of well-known options. Each is registered once, at package
// initialization, and should be referenced by variable rather than by name.
var (
	Allocator            = mustNew[BufferAllocator](`ALLOCATOR`)
	RecvBufAllocator     = mustNew[RecvBufferAllocator](`RCVBUF_ALLOCATOR`)
	MessageSizeEstimator = mustNew[SizeEstimator](`MESSAGE_SIZE_ESTIMATOR`)

	ConnectTimeout       = mustNew(`CONNECT_TIMEOUT`, AtLeast[time.Duration](0))
	WriteSpinCount       = mustNew(`WRITE_SPIN_COUNT`, AtLeast(1))
	WriteBufferWaterMark = mustNew(`WRITE_BUFFER_WATER_MARK`, WaterMark.Validate)
	AllowHalfClosure     = mustNew[bool](`ALLOW_HALF_CLOSURE`)
	AutoRead             = mustNew[bool](`AUTO_READ`)

	// AutoClose closes the connection immediately on write failure.
	AutoClose = mustNew[bool](`AUTO_CLOSE`)

	SoBroadcast = mustNew[bool](`SO_BROADCAST`)
	SoKeepAlive = mustNew[bool](`SO_KEEPALIVE`)
	SoSndBuf    = mustNew(`SO_SNDBUF`, AtLeast(0))
	SoRcvBuf    = mustNew(`SO_RCVBUF`, AtLeast(0))
	SoReuseAddr = mustNew[bool](`SO_REUSEADDR`)
	// SoLinger is in seconds, where -1 disables lingering.
	SoLinger  = mustNew(`SO_LINGER`, AtLeast(-1))
	SoBacklog = mustNew(`SO_BACKLOG`, AtLeast(0))
	SoTimeout = mustNew(`SO_TIMEOUT`, AtLeast[time.Duration](0))

	IPTos                   = mustNew(`IP_TOS`, Between(0, 255))
	IPMulticastAddr         = mustNew[net.IP](`IP_MULTICAST_ADDR`)
	IPMulticastIf           = mustNew[*net.Interface](`IP_MULTICAST_IF`)
	IPMulticastTTL          = mustNew(`IP_MULTICAST_TTL`, Between(0, 255))
	IPMulticastLoopDisabled = mustNew[bool](`IP_MULTICAST_LOOP_DISABLED`)

	TCPNoDelay = mustNew[bool](`TCP_NODELAY`)

	// SingleEventExecutorPerGroup pins all handlers of a connection to a
	// single loop per group.
	SingleEventExecutorPerGroup = mustNew[bool](`SINGLE_EVENTEXECUTOR_PER_GROUP`)
)

func mustNew[T any](name string, validators ...Validator[T]) *Option[T] {
	o, err := NewInstance(name, validators...)
	if err != nil {
		panic(err)
	}
	return o
}
