// Copyright 2016 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// nolint:lll
// https://github.com/googleapis/google-cloud-go/blob/bc93c1f0180801c5c69ef0629721a6f413c0bc9c/logging/logging.go#L774-L801

package xcloudtracecontext

import (
	"regexp"
	"strings"
)

// Header is set by Google Cloud load balancers on every proxied request.
const Header = "X-Cloud-Trace-Context"

var reCloudTraceContext = regexp.MustCompile(
	// Matches on "TRACE_ID"
	`([a-f\d]+)?` +
		// Matches on "/SPAN_ID"
		`(?:/([a-f\d]+))?` +
		// Matches on ";0=TRACE_TRUE"
		`(?:;o=(\d))?`)

// DeconstructXCloudTraceContext parses "TRACE_ID/SPAN_ID;o=TRACE_TRUE", every
// part of which is optional (https://cloud.google.com/trace/docs/setup#force-trace).
// A span ID of "0" is reported as absent.
func DeconstructXCloudTraceContext(s string) (traceID, spanID string, traceSampled bool) {
	matches := reCloudTraceContext.FindStringSubmatch(strings.TrimSpace(s))

	traceID, spanID, traceSampled = matches[1], matches[2], matches[3] == "1"

	if spanID == "0" {
		spanID = ""
	}

	return
}
