/*
Package types defines the core data structures shared across the
coordination core: tasks, file locks, agents, approval requests,
board threads, messages, and audit entries.

These are plain structs with enumerated status fields, serialized
explicitly to/from the KV backends via each type's MarshalRecord
method and its Unmarshal<Type> function (UnmarshalTask, ...) — one
serialization boundary per type, no reflection-based encoding
tricks. Higher layers (roles, workflows, epics) attach their own data
through Task.Metadata; this package never references anything above
it.
*/
package types
