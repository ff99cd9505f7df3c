// Copyright 2026 © The Avatar Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides OpenTelemetry integration and structured
// logging for the avatar control core.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by spans and metrics.
const (
	AttrAgentID    = "avatar.agent.id"
	AttrPetID      = "avatar.agent.pet_id"
	AttrAgentMode  = "avatar.agent.mode"
	AttrMessageID  = "avatar.message.id"
	AttrSender     = "avatar.message.from"
	AttrSenderRole = "avatar.message.role"
	AttrOutcome    = "avatar.dispatch.outcome"
	AttrTaskName   = "avatar.task.name"
	AttrTaskCycle  = "avatar.task.cycle"
	AttrSchemaName = "avatar.schema.name"
	AttrSchemaKind = "avatar.schema.kind"
	AttrPath       = "avatar.persistence.path"
	AttrComponent  = "avatar.component"
	AttrErrorCode  = "avatar.error.code"
)

// DispatchAttributes returns attributes for a dispatch span.
func DispatchAttributes(messageID, from, role string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrSender, from),
		attribute.String(AttrSenderRole, role),
	}
	if messageID != "" {
		attrs = append(attrs, attribute.String(AttrMessageID, messageID))
	}
	return attrs
}

// TaskAttributes returns attributes for a scheduled task run.
func TaskAttributes(name string, cycle uint64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrTaskName, name),
		attribute.Int64(AttrTaskCycle, int64(cycle)),
	}
}

// SchemaAttributes returns attributes for schema ingestion.
func SchemaAttributes(name, kind string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(AttrSchemaKind, kind)}
	if name != "" {
		attrs = append(attrs, attribute.String(AttrSchemaName, name))
	}
	return attrs
}
