package connect

import (
	"github.com/golang/glog"
)

// Logging convention for the whiteboard components:
// Info:
//     essential events for abnormal behavior. This level should be silent on normal operation,
//     with the exception of one time (infrequent) initialization data that is useful for monitoring
//     this includes:
//     - dial failures and auth rejections
//     - malformed payloads and unknown boards
//     - abnormal exits
// Warning:
//     unexpected panics even if handled and suppressed for partial operation
// V(LogLevelEvent):
//     key protocol events with board names and channel ids that can be used to filter
//     - share, unshare, subscribe, unsubscribe, accept, reject, delete
// V(LogLevelTrace):
//     every frame sent and received, pings

const LogLevelEvent glog.Level = 1
const LogLevelTrace glog.Level = 2
