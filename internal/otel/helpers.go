package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by room spans.
const (
	AttrRoomID        = attribute.Key("liveroom.room_id")
	AttrParticipantID = attribute.Key("liveroom.participant_id")
	AttrVisitID       = attribute.Key("liveroom.visit_id")
)

// VisitAttrs tags a span with the visit it belongs to.
func VisitAttrs(roomID, participantID, visitID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrRoomID.String(roomID),
		AttrParticipantID.String(participantID),
		AttrVisitID.String(visitID),
	}
}

// StartSpan starts a new span with the given name and attributes
func StartSpan(ctx context.Context, tracer trace.Tracer, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// EndSpan marks the span failed when err is set, then ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
