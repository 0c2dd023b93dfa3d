package gateway

import (
	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/inboxdigest/internal/instrumentation"
)

func attrRequestID(id string) attribute.KeyValue {
	return attribute.String(instrumentation.SpanAttrRequestID, id)
}

func attrStatus(code int) attribute.KeyValue {
	return attribute.Int(instrumentation.SpanAttrHTTPStatus, code)
}
