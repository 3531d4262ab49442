/*
Package board is Board/Channels (spec §4.G): a thin façade over the KV
for threaded conversations plus a narrow broadcast contract. Threads
live at literal "board:thread:{id}" keys (spec §6.1) with a
"board:threads:index" set for enumeration, the same index-set pattern
pkg/registry and pkg/filelock use.

Channel adapters themselves (terminal, file, Slack, Discord, ...) are
an explicit Non-goal of this module — only their contract lives here:
the Channel interface and a ChannelManager that broadcasts a Message
to every registered adapter and reports per-adapter success, so a
higher layer can wire in whatever adapters it needs without this
package depending on any of them.
*/
package board
