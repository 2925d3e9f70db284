package observability

import (
	"testing"
	"time"

	"github.com/danmuck/roslink/internal/testutil/testlog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("listener", "POST", "/rpc", 200, 12*time.Millisecond)
	RecordFrames("/chatter", 3, 96)
	RecordDispatch("/chatter", 3, 1)
	RecordLinkRetry("/chatter")
	SetLinkCounts("/chatter", 2, 1)
}
