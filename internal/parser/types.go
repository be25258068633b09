package parser

import "github.com/tinytelemetry/tracestore/internal/model"

// Operational event types.
const (
	NodeOpening                 model.RecordType = "NodeOpening"
	NodeOpenSucceeded           model.RecordType = "NodeOpenSucceeded"
	NodeOpenFailed              model.RecordType = "NodeOpenFailed"
	NodeClosing                 model.RecordType = "NodeClosing"
	NodeClosed                  model.RecordType = "NodeClosed"
	NodeUp                      model.RecordType = "NodeUp"
	NodeDown                    model.RecordType = "NodeDown"
	NodeAborted                 model.RecordType = "NodeAborted"
	ApplicationCreated          model.RecordType = "ApplicationCreated"
	ApplicationDeleted          model.RecordType = "ApplicationDeleted"
	ApplicationUpgradeStarted   model.RecordType = "ApplicationUpgradeStarted"
	ApplicationUpgradeCompleted model.RecordType = "ApplicationUpgradeCompleted"
	ClusterUpgradeStarted       model.RecordType = "ClusterUpgradeStarted"
	ClusterUpgradeCompleted     model.RecordType = "ClusterUpgradeCompleted"
	PartitionReconfigured       model.RecordType = "PartitionReconfigured"
	ServiceCreated              model.RecordType = "ServiceCreated"
	ServiceDeleted              model.RecordType = "ServiceDeleted"
)

// Query store types.
const (
	NodeHealthReport        model.RecordType = "NodeHealthReport"
	PartitionHealthReport   model.RecordType = "PartitionHealthReport"
	ReplicaHealthReport     model.RecordType = "ReplicaHealthReport"
	ServiceHealthReport     model.RecordType = "ServiceHealthReport"
	ApplicationHealthReport model.RecordType = "ApplicationHealthReport"
	ClusterHealthReport     model.RecordType = "ClusterHealthReport"
	ReplicaStateChanged     model.RecordType = "ReplicaStateChanged"
	PartitionPrimaryMoved   model.RecordType = "PartitionPrimaryMoved"
	NodeLoadReport          model.RecordType = "NodeLoadReport"
)

var eventTypes = []model.RecordType{
	NodeOpening, NodeOpenSucceeded, NodeOpenFailed, NodeClosing, NodeClosed,
	NodeUp, NodeDown, NodeAborted,
	ApplicationCreated, ApplicationDeleted, ApplicationUpgradeStarted, ApplicationUpgradeCompleted,
	ClusterUpgradeStarted, ClusterUpgradeCompleted,
	PartitionReconfigured, ServiceCreated, ServiceDeleted,
}

var queryTypes = []model.RecordType{
	NodeHealthReport, PartitionHealthReport, ReplicaHealthReport, ServiceHealthReport,
	ApplicationHealthReport, ClusterHealthReport,
	ReplicaStateChanged, PartitionPrimaryMoved, NodeLoadReport,
}

// EventTypes returns the record types understood by the event parser.
func EventTypes() []model.RecordType {
	return append([]model.RecordType(nil), eventTypes...)
}

// QueryTypes returns the record types understood by the query parser.
func QueryTypes() []model.RecordType {
	return append([]model.RecordType(nil), queryTypes...)
}

// NewEventParser returns the parser for operational events.
func NewEventParser(s *Session) Parser {
	return newTypedParser(s, model.CategoryOperational, eventTypes)
}

// NewQueryParser returns the parser for query store traces.
func NewQueryParser(s *Session) Parser {
	return newTypedParser(s, model.CategoryQuery, queryTypes)
}
