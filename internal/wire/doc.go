// Package wire defines the JSON shapes exchanged with agents.
//
// Everything here is compatibility surface: socket frames (commands out,
// results back), the heartbeat request/response pair, the enrollment
// exchange, and the result envelope shared by both reporting paths. Field
// names are pinned by frames_test.go because deployed agents parse them;
// changing one is a fleet-wide breaking change, not a refactor.
//
// Command payloads and result stdout stay json.RawMessage/string at this
// layer. Their interpretation belongs to package command.
package wire
