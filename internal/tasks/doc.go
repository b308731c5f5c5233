// Package tasks is the dispatch boundary between clients and the appliance
// workflows.
//
// Each workflow is registered under a stable name per appliance kind, for
// example "avamar.create_server" or "avamar.image_ndmp". A Worker accepts
// requests, runs them on a bounded pool and records their progress in a
// ResultStore; clients hold an opaque handle and poll for the outcome.
// Server and Client carry submit and status requests over NATS.
//
// Every outcome is a v1alpha1.TaskResult. Workflow errors never escape a
// task; they become the result's error string.
package tasks
