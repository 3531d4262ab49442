/*
Package approval is the Approval Workflow (spec §4.F): blocking,
multi-approver gates with a timeout, used by higher layers for
deploys, large spends, or any other action a workflow wants a human
(or another agent) to sign off on before proceeding.

The core is role-agnostic: role/capability eligibility checks are the
caller's job, not this package's (spec: "the approver must satisfy the
policy ... delegated to caller via a predicate"). Approve/Reject take
an eligible bool the caller has already computed against its own
required_roles/required_capabilities policy, rather than a callback
closure — keeping the wire-friendly approve/reject calls as plain data
round trips, the same shape the teacher's pkg/manager RPC handlers use
for authorization checks performed by the caller's middleware before
the handler itself ever runs.
*/
package approval
