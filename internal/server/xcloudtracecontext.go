package server

import (
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/internal/xcloudtracecontext"
	"github.com/blendle/zapdriver"
	"go.uber.org/zap"
	"net/http"
)

func (ts *TerminalServer) TraceContext(request *http.Request) []zap.Field {
	var noContext []zap.Field

	if ts.gcpProjectID == "" {
		return noContext
	}

	headers := request.Header.Values(xcloudtracecontext.Header)
	if len(headers) != 1 {
		return noContext
	}

	traceID, spanID, traceSampled := xcloudtracecontext.DeconstructXCloudTraceContext(headers[0])
	if traceID == "" {
		return noContext
	}

	return zapdriver.TraceContext(traceID, spanID, traceSampled, ts.gcpProjectID)
}
